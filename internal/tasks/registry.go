package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/cloudwego/eino/components/tool"
)

type keywordEntry struct {
	keyword string // lowercased
	taskID  string
}

// Registry holds registered task definitions. It is safe for concurrent use:
// mutations are exclusive with reads.
type Registry struct {
	mu       sync.RWMutex
	order    []string // task ids in registration order
	tasks    map[string]*TaskDefinition
	keywords []keywordEntry // index iteration order
	kwPos    map[string]int // keyword -> position in keywords
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*TaskDefinition),
		kwPos: make(map[string]int),
	}
}

// Register inserts or replaces a task by id. A replaced task keeps its
// registration position. Keywords are rebuilt for the task; on collision
// the keyword is reassigned to this task.
func (r *Registry) Register(def *TaskDefinition) error {
	if def == nil {
		return fmt.Errorf("register task: nil definition")
	}
	id := def.ID
	if id == "" {
		return fmt.Errorf("register task: empty id")
	}
	if id == DirectResponseID {
		return fmt.Errorf("register task: id %q is reserved", id)
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return fmt.Errorf("register task: id %q contains whitespace", id)
	}

	stored := *def
	stored.Keywords = normalizeKeywords(def.Keywords)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; exists {
		slog.Debug("task replaced", "id", id)
	} else {
		r.order = append(r.order, id)
	}
	r.tasks[id] = &stored
	r.reindexLocked(id, stored.Keywords)

	slog.Debug("task registered", "id", id, "keywords", len(stored.Keywords), "enabled", stored.Enabled)
	return nil
}

// reindexLocked drops the task's previous keywords and indexes the new ones.
func (r *Registry) reindexLocked(id string, keywords []string) {
	kept := r.keywords[:0]
	for _, e := range r.keywords {
		if e.taskID != id {
			kept = append(kept, e)
		}
	}
	r.keywords = kept

	clear(r.kwPos)
	for i, e := range r.keywords {
		r.kwPos[e.keyword] = i
	}

	for _, kw := range keywords {
		if pos, ok := r.kwPos[kw]; ok {
			prev := r.keywords[pos].taskID
			r.keywords[pos].taskID = id
			slog.Debug("keyword reassigned", "keyword", kw, "from", prev, "to", id)
			continue
		}
		r.kwPos[kw] = len(r.keywords)
		r.keywords = append(r.keywords, keywordEntry{keyword: kw, taskID: id})
	}
}

// SetEnabled toggles a registered task.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	updated := *def
	updated.Enabled = enabled
	r.tasks[id] = &updated
	return nil
}

// Get returns the task with the given id. The returned definition must not be mutated.
func (r *Registry) Get(id string) (*TaskDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return def, nil
}

// IsEnabled reports whether id is registered and enabled.
func (r *Registry) IsEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tasks[id]
	return ok && def.Enabled
}

// List returns every registered task in registration order.
func (r *Registry) List() []*TaskDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*TaskDefinition, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.tasks[id])
	}
	return result
}

// ListEnabled returns enabled tasks in registration order.
func (r *Registry) ListEnabled() []*TaskDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*TaskDefinition, 0, len(r.order))
	for _, id := range r.order {
		if def := r.tasks[id]; def.Enabled {
			result = append(result, def)
		}
	}
	return result
}

// FindByKeyword returns the enabled task owning the first indexed keyword that
// occurs in text (case-insensitive substring). This is a last-resort heuristic.
func (r *Registry) FindByKeyword(text string) (*TaskDefinition, error) {
	lower := strings.ToLower(text)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.keywords {
		if !strings.Contains(lower, e.keyword) {
			continue
		}
		if def := r.tasks[e.taskID]; def != nil && def.Enabled {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: no keyword match", ErrTaskNotFound)
}

// HasKeyword reports whether text contains any keyword of an enabled task.
func (r *Registry) HasKeyword(text string) bool {
	_, err := r.FindByKeyword(text)
	return err == nil
}

// Manifest returns the external presentation of every registered task.
func (r *Registry) Manifest() []ManifestEntry {
	all := r.List()
	result := make([]ManifestEntry, 0, len(all))
	for _, def := range all {
		result = append(result, ManifestEntry{
			ID:          def.ID,
			DisplayName: def.DisplayName,
			Description: def.Description,
			Category:    def.Category,
			Enabled:     def.Enabled,
			Icon:        def.Icon,
			Color:       def.Color,
		})
	}
	return result
}

// RoutingInfo returns routing metadata for enabled tasks.
func (r *Registry) RoutingInfo() []RoutingInfo {
	enabled := r.ListEnabled()
	result := make([]RoutingInfo, 0, len(enabled))
	for _, def := range enabled {
		result = append(result, RoutingInfo{
			ID:          def.ID,
			DisplayName: def.DisplayName,
			Description: def.Description,
			Keywords:    def.Keywords,
		})
	}
	return result
}

// Counts returns the number of registered and enabled tasks.
func (r *Registry) Counts() (registered, enabled int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range r.tasks {
		if def.Enabled {
			enabled++
		}
	}
	return len(r.tasks), enabled
}

// Tools returns the tool set of one task.
func (r *Registry) Tools(id string) ([]tool.BaseTool, error) {
	def, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return def.ToolSet, nil
}

// AllTools returns the union of enabled tasks' tools, deduplicated by tool name.
func (r *Registry) AllTools(ctx context.Context) ([]tool.BaseTool, error) {
	seen := make(map[string]bool)
	var result []tool.BaseTool
	for _, def := range r.ListEnabled() {
		for _, t := range def.ToolSet {
			info, err := t.Info(ctx)
			if err != nil {
				return nil, fmt.Errorf("tool info for task %s: %w", def.ID, err)
			}
			if seen[info.Name] {
				continue
			}
			seen[info.Name] = true
			result = append(result, t)
		}
	}
	return result, nil
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
