package events

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventRouteDecided)

	bus.Publish(NewTypedEvent(SourceGraph, RouteDecidedPayload{TaskID: "alpha", Source: "oracle"}))
	bus.Publish(NewTypedEvent(SourceGraph, TurnStartedPayload{Content: "hi"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventRouteDecided {
		t.Errorf("expected route.decided, got %s", received[0].Type)
	}
	p, ok := ExtractPayload[RouteDecidedPayload](received[0])
	if !ok || p.TaskID != "alpha" {
		t.Errorf("payload = %+v, %v", p, ok)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent(SourceGraph, TurnStartedPayload{Content: "hello"}))
	bus.Publish(NewTypedEvent(SourceGraph, TurnCompletedPayload{TaskID: "alpha"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestExtractPayloadWrongType(t *testing.T) {
	e := NewTypedEvent(SourceGraph, TurnStartedPayload{Content: "hi"})
	if _, ok := ExtractPayload[TurnFailedPayload](e); ok {
		t.Error("extracting a payload of another event type should fail")
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 0; i < 5; i++ {
		rb.Add(Event{ID: strconv.Itoa(i), SessionID: []string{"a", "b"}[i%2]})
	}

	events := rb.Get(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].ID != "2" || events[2].ID != "4" {
		t.Errorf("expected oldest-first 2..4, got %s..%s", events[0].ID, events[2].ID)
	}
	if got := rb.Get(2); len(got) != 2 || got[0].ID != "3" {
		t.Errorf("Get(2) = %+v, want the two newest", got)
	}

	onlyA := rb.Filter(10, func(e Event) bool { return e.SessionID == "a" })
	if len(onlyA) != 2 || onlyA[0].ID != "2" || onlyA[1].ID != "4" {
		t.Errorf("Filter(a) = %+v", onlyA)
	}
}

func TestBusPreservesOrderPerSubscriber(t *testing.T) {
	bus := NewBus(256)
	defer bus.Close()

	const n = 200
	got := make(chan string, n)
	bus.Subscribe(func(e Event) { got <- e.Payload["turn_id"].(string) }, EventTurnStarted)

	for i := 0; i < n; i++ {
		bus.Publish(NewTypedEvent(SourceGraph, TurnStartedPayload{TurnID: strconv.Itoa(i)}))
	}

	for i := 0; i < n; i++ {
		select {
		case id := <-got:
			if id != strconv.Itoa(i) {
				t.Fatalf("event %d delivered as %s", i, id)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d events delivered", i, n)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(8, EventTurnCompleted)
	unsub()
	unsub() // idempotent

	bus.Publish(NewTypedEvent(SourceGraph, TurnCompletedPayload{TaskID: "alpha"}))
	if _, ok := <-ch; ok {
		t.Error("received an event after unsubscribe")
	}
}

func TestHistoryFor(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	bus.Publish(NewTypedEventWithSession(SourceGraph, TurnStartedPayload{TurnID: "1"}, "a"))
	bus.Publish(NewTypedEventWithSession(SourceGraph, TurnStartedPayload{TurnID: "2"}, "b"))
	bus.Publish(NewTypedEventWithSession(SourceGraph, TurnStartedPayload{TurnID: "3"}, "a"))

	deadline := time.Now().Add(time.Second)
	for len(bus.History(10)) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	got := bus.HistoryFor("a", 10)
	if len(got) != 2 {
		t.Fatalf("HistoryFor(a) = %d events, want 2", len(got))
	}
	if got := bus.HistoryFor("a", 1); len(got) != 1 || got[0].Payload["turn_id"] != "3" {
		t.Errorf("HistoryFor(a, 1) = %+v", got)
	}
}

func TestSubscribeChan(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	ch, unsub := bus.SubscribeChan(8, EventTurnCompleted)
	defer unsub()

	bus.Publish(NewTypedEvent(SourceGraph, TurnCompletedPayload{TaskID: "alpha"}))

	select {
	case e := <-ch:
		if e.Type != EventTurnCompleted {
			t.Errorf("expected turn.completed, got %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestCloseWhilePublishing(t *testing.T) {
	bus := NewBus(4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(NewTypedEvent(SourceGraph, TurnStartedPayload{}))
			}
		}()
	}
	bus.Close()
	wg.Wait()

	bus.Close() // idempotent
	bus.Subscribe(func(Event) {})()
	var nilBus *Bus
	nilBus.Publish(NewTypedEvent(SourceGraph, TurnStartedPayload{}))
}
