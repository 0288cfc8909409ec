package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func decodeResponse(t *testing.T, data []byte) Frame {
	t.Helper()
	f, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return f
}

func TestSendResponse_WaitsForFullBuffer(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.send <- []byte(`{"type":"event"}`)

	// Drain the stale event frame once the response is already waiting.
	go func() {
		time.Sleep(50 * time.Millisecond)
		<-c.send
	}()

	c.sendOK(context.Background(), "req-1", "s1", map[string]string{"status": "ok"})

	select {
	case data := <-c.send:
		f := decodeResponse(t, data)
		if f.Type != FrameTypeResponse || f.ID != "req-1" || f.OK == nil || !*f.OK {
			t.Fatalf("frame = %+v", f)
		}
		var payload map[string]string
		if err := json.Unmarshal(f.Payload, &payload); err != nil || payload["status"] != "ok" {
			t.Errorf("payload = %s (%v)", f.Payload, err)
		}
	default:
		t.Fatal("response was dropped while the client was draining")
	}
}

func TestSendResponse_GivesUpWhenClientGone(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.send <- []byte(`{"type":"event"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.sendError(ctx, "req-2", "s1", "boom")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sendError blocked after the client context ended")
	}
	if len(c.send) != 1 {
		t.Errorf("buffer holds %d frames, want only the original event", len(c.send))
	}
}

func TestSendResponse_GivesUpAfterWait(t *testing.T) {
	prev := responseWait
	responseWait = 20 * time.Millisecond
	t.Cleanup(func() { responseWait = prev })

	c := &Client{send: make(chan []byte, 1)}
	c.send <- []byte(`{"type":"event"}`)

	start := time.Now()
	c.sendOK(context.Background(), "req-3", "s1", nil)
	if waited := time.Since(start); waited < responseWait {
		t.Errorf("returned after %v, want to wait %v", waited, responseWait)
	}
	if len(c.send) != 1 {
		t.Errorf("buffer holds %d frames, want 1", len(c.send))
	}
}
