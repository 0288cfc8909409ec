// Package router decides which task handles the current turn.
//
// The classification oracle is untrusted: its answer is accepted only when it
// names an enabled task or the direct-response sentinel. Any other outcome
// (error, timeout, malformed output, unknown id) falls back to the sentinel.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dohr-michael/pokus/internal/sessions"
	"github.com/dohr-michael/pokus/internal/tasks"
)

// ErrClassification marks an oracle failure. It never leaves the engine;
// it is recorded in Decision.FallbackReason.
var ErrClassification = errors.New("classification failed")

// Decision sources.
const (
	SourceOracle     = "oracle"
	SourceContinuity = "continuity"
	SourceFallback   = "fallback"
	SourceNoTasks    = "no_tasks"
)

// Decision is the routing outcome for one turn.
type Decision struct {
	TaskID    string `json:"chosen_task_id"`
	Rationale string `json:"rationale,omitempty"` // diagnostic only
	Summary   string `json:"summary,omitempty"`

	Source         string `json:"source"`
	FollowUp       bool   `json:"follow_up,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// IsFallback reports whether the decision comes from a classification failure.
func (d Decision) IsFallback() bool { return d.Source == SourceFallback }

// IsDirect reports whether the decision is the direct-response sentinel.
func (d Decision) IsDirect() bool { return d.TaskID == tasks.DirectResponseID }

// Request is what the classification oracle sees.
type Request struct {
	Tasks             []tasks.RoutingInfo
	Context           []sessions.Message // windowed history, excluding the current message
	EarlierSummary    string             // digest of messages before the window
	Message           string             // current user message
	LastActiveHandler string
	FollowUp          bool
	SnippetChars      int
}

// Verdict is the oracle's raw answer, not yet validated.
type Verdict struct {
	TaskID    string `json:"chosen_task_id"`
	Rationale string `json:"rationale"`
	Summary   string `json:"summary"`
}

// Classifier is the external classification oracle.
type Classifier interface {
	Classify(ctx context.Context, req *Request) (*Verdict, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, req *Request) (*Verdict, error)

func (f ClassifierFunc) Classify(ctx context.Context, req *Request) (*Verdict, error) {
	return f(ctx, req)
}

// Options tune the engine. Zero values take defaults.
type Options struct {
	HistoryWindow     int           // messages sent to the oracle, current one included (default 6)
	SnippetChars      int           // per-message truncation in the prompt (default 200)
	FollowupMaxTokens int           // follow-up threshold in whitespace tokens (default 6)
	Timeout           time.Duration // per-oracle-call bound (default 20s)
	StickyFollowups   bool          // re-select the active handler on follow-ups without asking the oracle
}

func (o *Options) applyDefaults() {
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 6
	}
	if o.SnippetChars <= 0 {
		o.SnippetChars = 200
	}
	if o.FollowupMaxTokens <= 0 {
		o.FollowupMaxTokens = 6
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
}

// Engine is the routing decision engine.
type Engine struct {
	registry   *tasks.Registry
	classifier Classifier
	opts       Options
}

// NewEngine creates an Engine. classifier may be nil, in which case every
// turn falls back to the sentinel.
func NewEngine(registry *tasks.Registry, classifier Classifier, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{registry: registry, classifier: classifier, opts: opts}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Decide picks the handler for the last message of history. It never fails:
// oracle problems degrade to the direct-response sentinel. Callers check
// ctx.Err() afterwards to tell cancellation from a fallback.
func (e *Engine) Decide(ctx context.Context, history []sessions.Message, lastActive string) Decision {
	routing := e.registry.RoutingInfo()
	allowed := make(map[string]bool, len(routing)+1)
	allowed[tasks.DirectResponseID] = true
	for _, t := range routing {
		allowed[t.ID] = true
	}

	current := ""
	if n := len(history); n > 0 {
		current = history[n-1].Content
	}
	followUp := e.isFollowUp(current, lastActive, allowed)

	if followUp && e.opts.StickyFollowups {
		d := Decision{
			TaskID:    lastActive,
			Rationale: "short follow-up to the active handler",
			Source:    SourceContinuity,
			FollowUp:  true,
		}
		slog.Debug("route decided", "task", d.TaskID, "source", d.Source)
		return d
	}

	if len(routing) == 0 {
		return Decision{
			TaskID:    tasks.DirectResponseID,
			Rationale: "no enabled tasks",
			Source:    SourceNoTasks,
		}
	}

	req := e.buildRequest(routing, history, lastActive, followUp)
	verdict, err := e.classify(ctx, req)
	if err != nil {
		slog.Warn("classification failed, using direct response", "error", err)
		return Decision{
			TaskID:         tasks.DirectResponseID,
			Source:         SourceFallback,
			FollowUp:       followUp,
			FallbackReason: err.Error(),
		}
	}

	if !allowed[verdict.TaskID] {
		err := fmt.Errorf("%w: id %q outside the closed set", ErrClassification, verdict.TaskID)
		slog.Warn("classification rejected, using direct response", "error", err)
		return Decision{
			TaskID:         tasks.DirectResponseID,
			Source:         SourceFallback,
			FollowUp:       followUp,
			FallbackReason: err.Error(),
		}
	}

	d := Decision{
		TaskID:    verdict.TaskID,
		Rationale: verdict.Rationale,
		Summary:   verdict.Summary,
		Source:    SourceOracle,
		FollowUp:  followUp,
	}
	slog.Debug("route decided", "task", d.TaskID, "source", d.Source, "rationale", d.Rationale)
	return d
}

func (e *Engine) classify(ctx context.Context, req *Request) (*Verdict, error) {
	if e.classifier == nil {
		return nil, fmt.Errorf("%w: no classifier configured", ErrClassification)
	}

	cctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	verdict, err := e.classifier.Classify(cctx, req)
	if err != nil {
		if errors.Is(err, ErrClassification) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	if verdict == nil {
		return nil, fmt.Errorf("%w: empty verdict", ErrClassification)
	}
	if cctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, cctx.Err())
	}
	return verdict, nil
}

// isFollowUp: short message, no task keyword, and an active handler that is still enabled.
func (e *Engine) isFollowUp(msg, lastActive string, allowed map[string]bool) bool {
	if lastActive == "" || lastActive == tasks.DirectResponseID || !allowed[lastActive] {
		return false
	}
	if len(strings.Fields(msg)) >= e.opts.FollowupMaxTokens {
		return false
	}
	return !e.registry.HasKeyword(msg)
}

func (e *Engine) buildRequest(routing []tasks.RoutingInfo, history []sessions.Message, lastActive string, followUp bool) *Request {
	req := &Request{
		Tasks:             routing,
		LastActiveHandler: lastActive,
		FollowUp:          followUp,
		SnippetChars:      e.opts.SnippetChars,
	}
	if len(history) == 0 {
		return req
	}

	req.Message = history[len(history)-1].Content
	start := max(len(history)-e.opts.HistoryWindow, 0)
	req.Context = history[start : len(history)-1]
	req.EarlierSummary = summarizeEarlier(history[:start], e.opts.SnippetChars)
	return req
}
