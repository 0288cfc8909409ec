// Package sessions holds conversation state and the checkpoint store that
// makes multi-turn conversations resumable.
package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no checkpoint exists for a session id.
var ErrNotFound = errors.New("checkpoint not found")

// CheckpointVersion is the current snapshot layout version.
const CheckpointVersion = 1

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// payloadKey carries Message.Payload through schema.Message.Extra.
const payloadKey = "pokus_payload"

// Message is one entry of a conversation.
type Message struct {
	Role    Role            `json:"role"`
	Content string          `json:"content"`
	Payload json.RawMessage `json:"payload,omitempty"` // optional structured payload
	Ts      time.Time       `json:"ts"`
}

// ToSchemaMessage converts a session Message to an Eino schema.Message.
func (m Message) ToSchemaMessage() *schema.Message {
	msg := &schema.Message{
		Role:    schema.RoleType(m.Role),
		Content: m.Content,
	}
	if len(m.Payload) > 0 {
		msg.Extra = map[string]any{payloadKey: m.Payload}
	}
	return msg
}

// NewMessageFromSchema converts an Eino schema.Message to a session Message.
// Only user, assistant and system roles are representable.
func NewMessageFromSchema(msg *schema.Message, ts time.Time) (Message, error) {
	if msg == nil {
		return Message{}, errors.New("nil message")
	}
	role := Role(msg.Role)
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return Message{}, fmt.Errorf("unsupported message role %q", msg.Role)
	}
	m := Message{Role: role, Content: msg.Content, Ts: ts}
	if raw, ok := msg.Extra[payloadKey].(json.RawMessage); ok {
		m.Payload = raw
	}
	return m, nil
}

// ToSchemaMessages converts a history to Eino messages.
func ToSchemaMessages(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.ToSchemaMessage()
	}
	return out
}

// Session identifies one ongoing conversation.
type Session struct {
	ID                string    `json:"session_id"`
	TurnCount         int       `json:"turn_count"`
	LastActiveHandler string    `json:"last_active_handler,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ConversationState is the mutable payload carried through one turn.
type ConversationState struct {
	Messages       []Message         `json:"messages"`
	NextHandler    string            `json:"next_handler,omitempty"`
	HandlerOutputs map[string]string `json:"handler_outputs,omitempty"`
	TurnIndex      int               `json:"turn_index"`
}

// Checkpoint is a durable snapshot of a session at the end of a turn.
type Checkpoint struct {
	Version int               `json:"version"`
	Session Session           `json:"session"`
	State   ConversationState `json:"state"`
}

// NewCheckpoint returns a fresh checkpoint for a session id.
func NewCheckpoint(id string, now time.Time) *Checkpoint {
	return &Checkpoint{
		Version: CheckpointVersion,
		Session: Session{ID: id, CreatedAt: now, UpdatedAt: now},
		State:   ConversationState{HandlerOutputs: map[string]string{}},
	}
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.State.Messages = make([]Message, len(c.State.Messages))
	for i, m := range c.State.Messages {
		m.Payload = append(json.RawMessage(nil), m.Payload...)
		out.State.Messages[i] = m
	}
	out.State.HandlerOutputs = make(map[string]string, len(c.State.HandlerOutputs))
	for k, v := range c.State.HandlerOutputs {
		out.State.HandlerOutputs[k] = v
	}
	return &out
}

// Summary describes a stored checkpoint without its messages.
type Summary struct {
	ID                string    `json:"session_id"`
	TurnCount         int       `json:"turn_count"`
	LastActiveHandler string    `json:"last_active_handler,omitempty"`
	MessageCount      int       `json:"message_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Summarize returns the checkpoint's Summary.
func (c *Checkpoint) Summarize() Summary {
	return Summary{
		ID:                c.Session.ID,
		TurnCount:         c.Session.TurnCount,
		LastActiveHandler: c.Session.LastActiveHandler,
		MessageCount:      len(c.State.Messages),
		CreatedAt:         c.Session.CreatedAt,
		UpdatedAt:         c.Session.UpdatedAt,
	}
}

func encodeCheckpoint(c *Checkpoint) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return data, nil
}

func decodeCheckpoint(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	if c.Version > CheckpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", c.Version)
	}
	if c.State.HandlerOutputs == nil {
		c.State.HandlerOutputs = map[string]string{}
	}
	return &c, nil
}

// NewSessionID generates an id for clients that do not supply one.
func NewSessionID() string {
	u := uuid.New().String()
	return "sess_" + strings.ReplaceAll(u[:8], "-", "")
}
