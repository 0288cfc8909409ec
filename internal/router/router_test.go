package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/pokus/internal/sessions"
	"github.com/dohr-michael/pokus/internal/tasks"
)

func testRegistry(t *testing.T) *tasks.Registry {
	t.Helper()
	r := tasks.NewRegistry()
	for _, d := range []*tasks.TaskDefinition{
		{ID: "alpha", DisplayName: "Alpha", Description: "alpha things", Keywords: []string{"foo"}, Enabled: true},
		{ID: "beta", DisplayName: "Beta", Description: "beta things", Keywords: []string{"bar"}, Enabled: true},
		{ID: "gamma", DisplayName: "Gamma", Description: "disabled", Keywords: []string{"baz"}, Enabled: false},
	} {
		if err := r.Register(d); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func userMsgs(contents ...string) []sessions.Message {
	out := make([]sessions.Message, len(contents))
	for i, c := range contents {
		role := sessions.RoleUser
		if i%2 == 1 {
			role = sessions.RoleAssistant
		}
		out[i] = sessions.Message{Role: role, Content: c}
	}
	return out
}

func fixed(id string) Classifier {
	return ClassifierFunc(func(context.Context, *Request) (*Verdict, error) {
		return &Verdict{TaskID: id, Rationale: "scripted"}, nil
	})
}

func TestDecide_OracleChoice(t *testing.T) {
	e := NewEngine(testRegistry(t), fixed("beta"), Options{})
	d := e.Decide(context.Background(), userMsgs("help with bar"), "")

	if d.TaskID != "beta" || d.Source != SourceOracle {
		t.Errorf("Decide = %+v, want beta from oracle", d)
	}
	if d.Rationale != "scripted" {
		t.Errorf("Rationale = %q", d.Rationale)
	}
}

func TestDecide_SentinelAccepted(t *testing.T) {
	e := NewEngine(testRegistry(t), fixed(tasks.DirectResponseID), Options{})
	d := e.Decide(context.Background(), userMsgs("hello"), "")
	if !d.IsDirect() || d.IsFallback() {
		t.Errorf("Decide = %+v, want direct response from oracle", d)
	}
}

func TestDecide_OracleErrorFallsBack(t *testing.T) {
	failing := ClassifierFunc(func(context.Context, *Request) (*Verdict, error) {
		return nil, errors.New("connection refused")
	})
	e := NewEngine(testRegistry(t), failing, Options{})
	d := e.Decide(context.Background(), userMsgs("I need foo help"), "")

	if !d.IsDirect() || !d.IsFallback() {
		t.Errorf("Decide = %+v, want sentinel fallback", d)
	}
	if !strings.Contains(d.FallbackReason, "connection refused") {
		t.Errorf("FallbackReason = %q", d.FallbackReason)
	}
}

func TestDecide_NilClassifierFallsBack(t *testing.T) {
	e := NewEngine(testRegistry(t), nil, Options{})
	if d := e.Decide(context.Background(), userMsgs("hi"), ""); !d.IsFallback() {
		t.Errorf("Decide = %+v, want fallback", d)
	}
}

func TestDecide_TimeoutFallsBack(t *testing.T) {
	slow := ClassifierFunc(func(ctx context.Context, _ *Request) (*Verdict, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := NewEngine(testRegistry(t), slow, Options{Timeout: 10 * time.Millisecond})

	start := time.Now()
	d := e.Decide(context.Background(), userMsgs("foo"), "")
	if !d.IsFallback() {
		t.Errorf("Decide = %+v, want fallback", d)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not enforced")
	}
}

func TestDecide_LateAnswerAfterTimeoutRejected(t *testing.T) {
	late := ClassifierFunc(func(ctx context.Context, _ *Request) (*Verdict, error) {
		<-ctx.Done()
		return &Verdict{TaskID: "alpha"}, nil
	})
	e := NewEngine(testRegistry(t), late, Options{Timeout: 5 * time.Millisecond})
	if d := e.Decide(context.Background(), userMsgs("foo"), ""); !d.IsFallback() {
		t.Errorf("Decide = %+v, want fallback", d)
	}
}

// Any oracle output outside {enabled ids} ∪ {sentinel} must fall back.
func TestDecide_FuzzedOracleOutputStaysInClosedSet(t *testing.T) {
	reg := testRegistry(t)
	allowed := map[string]bool{tasks.DirectResponseID: true}
	for _, d := range reg.ListEnabled() {
		allowed[d.ID] = true
	}

	rng := rand.New(rand.NewSource(42))
	candidates := []string{"", " alpha", "alpha ", "ALPHA", "alph", "alpha,beta", "gamma", "delta",
		"direct", "Direct_Response", "null", "beta\n", "álpha"}
	for i := 0; i < 200; i++ {
		b := make([]byte, rng.Intn(12))
		for j := range b {
			b[j] = byte(32 + rng.Intn(95))
		}
		candidates = append(candidates, string(b))
	}

	for _, out := range candidates {
		e := NewEngine(reg, fixed(out), Options{})
		d := e.Decide(context.Background(), userMsgs("anything"), "")

		if !allowed[d.TaskID] {
			t.Fatalf("oracle output %q produced out-of-set id %q", out, d.TaskID)
		}
		if !allowed[out] && !d.IsFallback() {
			t.Errorf("oracle output %q should trigger fallback, got %+v", out, d)
		}
		if allowed[out] && d.TaskID != out {
			t.Errorf("valid oracle output %q replaced by %q", out, d.TaskID)
		}
	}
}

func TestDecide_FollowUpHintsOracle(t *testing.T) {
	var seen *Request
	spy := ClassifierFunc(func(_ context.Context, req *Request) (*Verdict, error) {
		seen = req
		if req.FollowUp {
			return &Verdict{TaskID: req.LastActiveHandler}, nil
		}
		return &Verdict{TaskID: tasks.DirectResponseID}, nil
	})
	e := NewEngine(testRegistry(t), spy, Options{})

	d := e.Decide(context.Background(), userMsgs("I need foo help", "which one?", "yes, that one"), "alpha")
	if d.TaskID != "alpha" || !d.FollowUp {
		t.Errorf("Decide = %+v, want alpha follow-up", d)
	}
	if !strings.Contains(BuildPrompt(seen), `prefer "alpha"`) {
		t.Error("prompt lacks continuity guidance")
	}
}

func TestDecide_NotFollowUp(t *testing.T) {
	e := NewEngine(testRegistry(t), fixed("beta"), Options{StickyFollowups: true})
	ctx := context.Background()

	cases := []struct {
		name, msg, last string
	}{
		{"keyword hit", "now bar please", "alpha"},
		{"long message", "could you please tell me more about this other thing", "alpha"},
		{"no active handler", "yes", ""},
		{"disabled handler", "yes", "gamma"},
		{"sentinel handler", "yes", tasks.DirectResponseID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Decide(ctx, userMsgs(tc.msg), tc.last)
			if d.FollowUp || d.Source != SourceOracle {
				t.Errorf("Decide = %+v, want oracle decision without follow-up", d)
			}
		})
	}
}

func TestDecide_StickyFollowupSkipsOracle(t *testing.T) {
	called := false
	c := ClassifierFunc(func(context.Context, *Request) (*Verdict, error) {
		called = true
		return &Verdict{TaskID: "beta"}, nil
	})
	e := NewEngine(testRegistry(t), c, Options{StickyFollowups: true})

	d := e.Decide(context.Background(), userMsgs("ok thanks"), "alpha")
	if called {
		t.Error("oracle should not be called for sticky follow-up")
	}
	if d.TaskID != "alpha" || d.Source != SourceContinuity {
		t.Errorf("Decide = %+v, want alpha via continuity", d)
	}
}

func TestDecide_NoEnabledTasks(t *testing.T) {
	reg := tasks.NewRegistry()
	e := NewEngine(reg, fixed("alpha"), Options{})
	d := e.Decide(context.Background(), userMsgs("foo"), "")
	if !d.IsDirect() || d.Source != SourceNoTasks {
		t.Errorf("Decide = %+v", d)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	reg := testRegistry(t)
	script := func(_ context.Context, req *Request) (*Verdict, error) {
		switch {
		case strings.Contains(req.Message, "foo"):
			return &Verdict{TaskID: "alpha"}, nil
		case strings.Contains(req.Message, "bar"):
			return &Verdict{TaskID: "beta"}, nil
		case req.FollowUp:
			return &Verdict{TaskID: req.LastActiveHandler}, nil
		}
		return &Verdict{TaskID: tasks.DirectResponseID}, nil
	}
	msgs := []string{"hello", "foo please", "yes", "and bar now", "ok", "something else entirely different here today"}

	run := func() []string {
		e := NewEngine(reg, ClassifierFunc(script), Options{})
		var history []sessions.Message
		var last string
		var ids []string
		for _, m := range msgs {
			history = append(history, sessions.Message{Role: sessions.RoleUser, Content: m})
			d := e.Decide(context.Background(), history, last)
			ids = append(ids, d.TaskID)
			if !d.IsDirect() {
				last = d.TaskID
			}
			history = append(history, sessions.Message{Role: sessions.RoleAssistant, Content: "ok"})
		}
		return ids
	}

	first, second := run(), run()
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Errorf("replay differs: %v vs %v", first, second)
	}
	want := []string{tasks.DirectResponseID, "alpha", "alpha", "beta", "beta", tasks.DirectResponseID}
	if fmt.Sprint(first) != fmt.Sprint(want) {
		t.Errorf("decisions = %v, want %v", first, want)
	}
}

func TestBuildRequest_Window(t *testing.T) {
	e := NewEngine(testRegistry(t), nil, Options{})
	var contents []string
	for i := 0; i < 10; i++ {
		contents = append(contents, fmt.Sprintf("message %d", i))
	}
	req := e.buildRequest(e.registry.RoutingInfo(), userMsgs(contents...), "", false)

	if req.Message != "message 9" {
		t.Errorf("Message = %q", req.Message)
	}
	if len(req.Context) != 5 || req.Context[0].Content != "message 4" {
		t.Errorf("Context = %+v, want messages 4..8", req.Context)
	}
	if !strings.HasPrefix(req.EarlierSummary, "4 earlier messages.") {
		t.Errorf("EarlierSummary = %q", req.EarlierSummary)
	}
	if !strings.Contains(req.EarlierSummary, "message 2") || strings.Contains(req.EarlierSummary, "message 1") {
		t.Errorf("EarlierSummary should keep the user requests it has: %q", req.EarlierSummary)
	}
}
