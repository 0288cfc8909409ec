package callbacks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/pokus/internal/events"
)

func TestTruncatePayload(t *testing.T) {
	if got := truncatePayload("hello", 100); got != "hello" {
		t.Errorf("short: got %q", got)
	}
	s := strings.Repeat("a", 50)
	if got := truncatePayload(s, 50); got != s {
		t.Errorf("exact: got len %d", len(got))
	}
	long := truncatePayload(strings.Repeat("x", 200), 100)
	if len(long) != 100+len("... (truncated)") || !strings.HasSuffix(long, "... (truncated)") {
		t.Errorf("long: got %q", long)
	}
	if got := truncatePayload("hello world", 0); got != "hello world" {
		t.Errorf("zero max: got %q", got)
	}
}

func TestEventBusHandler_ToolCalls(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	ch, unsub := bus.SubscribeChan(8, events.EventToolCall)
	defer unsub()

	h := NewEventBusHandler(bus)
	ctx := events.ContextWithSessionID(context.Background(), "s1")
	ctx = events.ContextWithTurnID(ctx, "turn_7")
	info := &callbacks.RunInfo{Name: "web_search", Component: components.ComponentOfTool}

	h.OnStart(ctx, info, &tool.CallbackInput{ArgumentsInJSON: `{"query":"pharmacy"}`})
	h.OnError(ctx, info, errors.New("rate limited"))

	var got []events.ToolCallPayload
	for len(got) < 2 {
		select {
		case e := <-ch:
			if e.SessionID != "s1" {
				t.Errorf("session = %q, want s1", e.SessionID)
			}
			p, ok := events.ExtractPayload[events.ToolCallPayload](e)
			if !ok {
				t.Fatalf("extract payload from %+v", e)
			}
			if p.TurnID != "turn_7" {
				t.Errorf("turn = %q, want turn_7", p.TurnID)
			}
			got = append(got, p)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d tool events, want 2", len(got))
		}
	}
	if got[0].Phase != events.PhaseStart || got[0].Arguments != `{"query":"pharmacy"}` {
		t.Errorf("start = %+v", got[0])
	}
	if got[1].Phase != events.PhaseError || got[1].Error != "rate limited" {
		t.Errorf("error = %+v", got[1])
	}
}
