package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/pokus/internal/storage/sqlitedb"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	db, err := sqlitedb.Open(context.Background(), filepath.Join(t.TempDir(), "cp.db"))
	if err != nil {
		t.Fatalf("sqlitedb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"mem":  NewMemStore(),
		"file": NewFileStore(t.TempDir()),
		"sql":  NewSQLStore(db),
	}
}

func sampleCheckpoint(id string) *Checkpoint {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cp := NewCheckpoint(id, now)
	cp.Session.TurnCount = 2
	cp.Session.LastActiveHandler = "alpha"
	cp.State.TurnIndex = 2
	cp.State.NextHandler = "alpha"
	cp.State.HandlerOutputs["alpha"] = "completed"
	cp.State.Messages = []Message{
		{Role: RoleUser, Content: "I need foo help", Ts: now},
		{Role: RoleAssistant, Content: "Sure.", Payload: json.RawMessage(`{"k":1}`), Ts: now},
	}
	return cp
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, "nope")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Load = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_RoundTripIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Save(ctx, sampleCheckpoint("s1")); err != nil {
				t.Fatalf("Save: %v", err)
			}

			first, err := s.Load(ctx, "s1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if err := s.Save(ctx, first); err != nil {
				t.Fatalf("re-Save: %v", err)
			}
			second, err := s.Load(ctx, "s1")
			if err != nil {
				t.Fatalf("re-Load: %v", err)
			}

			if a, b := mustJSON(t, first), mustJSON(t, second); a != b {
				t.Errorf("snapshot changed across round trip:\n%s\n%s", a, b)
			}
			if second.Session.LastActiveHandler != "alpha" || len(second.State.Messages) != 2 {
				t.Errorf("unexpected snapshot %+v", second)
			}
			if string(second.State.Messages[1].Payload) != `{"k":1}` {
				t.Errorf("payload = %s", second.State.Messages[1].Payload)
			}
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			cp := sampleCheckpoint("s1")
			s.Save(ctx, cp)

			cp.Session.TurnCount = 3
			cp.State.Messages = append(cp.State.Messages, Message{Role: RoleUser, Content: "again"})
			if err := s.Save(ctx, cp); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := s.Load(ctx, "s1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Session.TurnCount != 3 || len(got.State.Messages) != 3 {
				t.Errorf("got turn_count=%d messages=%d", got.Session.TurnCount, len(got.State.Messages))
			}
		})
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			older := sampleCheckpoint("old/../session")
			older.Session.UpdatedAt = older.Session.UpdatedAt.Add(-time.Hour)
			s.Save(ctx, older)
			s.Save(ctx, sampleCheckpoint("new"))

			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("List len = %d, want 2", len(list))
			}
			if list[0].ID != "new" || list[1].ID != "old/../session" {
				t.Errorf("order = [%s %s]", list[0].ID, list[1].ID)
			}
			if list[0].MessageCount != 2 || list[0].TurnCount != 2 {
				t.Errorf("summary = %+v", list[0])
			}

			if err := s.Delete(ctx, "old/../session"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Load(ctx, "old/../session"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Load after Delete = %v", err)
			}
		})
	}
}

func TestStore_LongOpaqueID(t *testing.T) {
	ctx := context.Background()
	id := strings.Repeat("s", 200)
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Load(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Load before Save = %v, want ErrNotFound", err)
			}
			if err := s.Save(ctx, sampleCheckpoint(id)); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := s.Load(ctx, id)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Session.ID != id {
				t.Errorf("id = %q, want the original id", got.Session.ID)
			}

			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 1 || list[0].ID != id {
				t.Errorf("List = %+v", list)
			}

			if err := s.Delete(ctx, id); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Load(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Errorf("Load after Delete = %v", err)
			}
		})
	}
}

func TestMemStore_NoAliasing(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	cp := sampleCheckpoint("s1")
	s.Save(ctx, cp)

	cp.State.Messages[0].Content = "mutated"
	got, _ := s.Load(ctx, "s1")
	if got.State.Messages[0].Content != "I need foo help" {
		t.Error("stored snapshot aliased caller state")
	}
}

func TestCheckpointClone(t *testing.T) {
	cp := sampleCheckpoint("s1")
	c := cp.Clone()
	c.State.Messages[1].Payload[2] = 'x'
	c.State.HandlerOutputs["beta"] = "failed"
	c.State.Messages = append(c.State.Messages, Message{Role: RoleUser})

	if string(cp.State.Messages[1].Payload) != `{"k":1}` {
		t.Error("clone shares payload bytes")
	}
	if _, ok := cp.State.HandlerOutputs["beta"]; ok {
		t.Error("clone shares handler outputs")
	}
	if len(cp.State.Messages) != 2 {
		t.Error("clone shares message slice")
	}
}

func TestMessageSchemaConversion(t *testing.T) {
	m := Message{Role: RoleAssistant, Content: "hi", Payload: json.RawMessage(`[1]`)}
	back, err := NewMessageFromSchema(m.ToSchemaMessage(), time.Time{})
	if err != nil {
		t.Fatalf("NewMessageFromSchema: %v", err)
	}
	if back.Role != RoleAssistant || back.Content != "hi" || string(back.Payload) != `[1]` {
		t.Errorf("round trip = %+v", back)
	}

	tool := Message{Role: "tool", Content: "x"}.ToSchemaMessage()
	if _, err := NewMessageFromSchema(tool, time.Time{}); err == nil {
		t.Error("tool role should be rejected")
	}
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b {
		t.Error("ids should be unique")
	}
	if len(a) != len("sess_")+8 {
		t.Errorf("id %q has unexpected length", a)
	}
}
