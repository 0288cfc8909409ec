// Package tasks holds the registry of task handlers and their routing metadata.
package tasks

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// DirectResponseID is the reserved routing outcome meaning "no specialized handler needed".
// It can never be registered as a task id.
const DirectResponseID = "direct_response"

// ErrTaskNotFound is returned when a task id is not registered.
var ErrTaskNotFound = errors.New("task not found")

// TaskDefinition describes one registrable capability.
type TaskDefinition struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"name"`
	Description  string         `json:"description"`
	Keywords     []string       `json:"keywords,omitempty"` // fallback routing only
	Category     string         `json:"category,omitempty"`
	Enabled      bool           `json:"enabled"`
	Icon         string         `json:"icon,omitempty"`
	Color        string         `json:"color,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Model        string         `json:"model,omitempty"` // provider name; empty = models.default
	ToolNames    []string       `json:"tools,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Source       string         `json:"source,omitempty"` // catalog file, empty for built-ins

	// ToolSet is the capability bundle the handler may invoke.
	ToolSet []tool.BaseTool `json:"-"`
	// Handler runs the task. A definition without a handler cannot be dispatched.
	Handler Handler `json:"-"`
}

// MemoryAccessor reads and writes memory records scoped to one user.
type MemoryAccessor interface {
	Load(ctx context.Context, namespace string) ([]byte, error)
	Save(ctx context.Context, namespace string, payload []byte) error
}

// Request is the input of a single handler invocation.
type Request struct {
	SessionID string
	UserID    string
	TaskID    string
	History   []*schema.Message
	Memory    MemoryAccessor
}

// Handler is the domain logic bound to one task id.
//
// Execute returns the full updated history, which must extend req.History
// without deleting or reordering prior messages. A non-nil error means the
// handler failed (status = error).
type Handler interface {
	Execute(ctx context.Context, req *Request) ([]*schema.Message, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) ([]*schema.Message, error)

// Execute calls f(ctx, req).
func (f HandlerFunc) Execute(ctx context.Context, req *Request) ([]*schema.Message, error) {
	return f(ctx, req)
}

// ManifestEntry is the external presentation of a task.
type ManifestEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Enabled     bool   `json:"enabled"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
}

// RoutingInfo is what the classification prompt needs to know about a task.
type RoutingInfo struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
}
