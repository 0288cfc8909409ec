package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	wsclient "github.com/dohr-michael/pokus/clients/ws"
	"github.com/dohr-michael/pokus/internal/actors"
	"github.com/dohr-michael/pokus/internal/events"
	"github.com/dohr-michael/pokus/internal/gateway/ws"
	"github.com/dohr-michael/pokus/internal/graph"
	"github.com/dohr-michael/pokus/internal/sessions"
	"github.com/dohr-michael/pokus/internal/tasks"
)

// fakeGraph echoes the content back and records the calls it got.
type fakeGraph struct {
	mu    sync.Mutex
	calls []submitCall
	err   error
}

type submitCall struct {
	sessionID, userID, content string
}

func (f *fakeGraph) Submit(_ context.Context, sessionID, userID, content string) (*graph.TurnResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, submitCall{sessionID, userID, content})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &graph.TurnResult{
		SessionID: sessionID,
		HandlerID: tasks.DirectResponseID,
		TurnCount: 1,
		Messages:  []sessions.Message{{Role: sessions.RoleAssistant, Content: "echo: " + content}},
		Path:      []graph.Node{graph.NodeStart, graph.NodeRouting, graph.NodeDirectResponse, graph.NodeDone},
	}, nil
}

func (f *fakeGraph) lastCall() submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return submitCall{}
	}
	return f.calls[len(f.calls)-1]
}

// waitForEvents polls the bus history until at least n events are present.
func waitForEvents(bus *events.Bus, n int) {
	for range 200 {
		if len(bus.History(100)) >= n {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
}

type testServer struct {
	*Server
	fake  *fakeGraph
	store *sessions.MemStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(func() { bus.Close() })

	reg := tasks.NewRegistry()
	for _, def := range []*tasks.TaskDefinition{
		{ID: "weather", DisplayName: "Weather", Description: "Forecasts", Enabled: true},
		{ID: "travel", DisplayName: "Travel", Description: "Trips", Enabled: false},
	} {
		if err := reg.Register(def); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	fake := &fakeGraph{}
	store := sessions.NewMemStore()
	srv := NewServer(Config{
		Host:        "localhost",
		Graph:       fake,
		Registry:    reg,
		Checkpoints: store,
		Bus:         bus,
		Info:        Info{Version: "test", LLMProvider: "openai/gpt-4o", WebSearch: "duckduckgo"},
	})
	t.Cleanup(srv.hub.Close)
	return &testServer{Server: srv, fake: fake, store: store}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["tasks_registered"] != float64(2) || body["tasks_enabled"] != float64(1) {
		t.Errorf("counts = %v/%v, want 2/1", body["tasks_registered"], body["tasks_enabled"])
	}
	if body["llm_provider"] != "openai/gpt-4o" || body["web_search"] != "duckduckgo" {
		t.Errorf("unexpected provider info: %v", body)
	}
	if body["ws_clients"] != float64(0) {
		t.Errorf("ws_clients = %v, want 0", body["ws_clients"])
	}
}

func TestHandleTasks(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodGet, "/api/tasks", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body manifestResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Total != 2 || len(body.Tasks) != 2 {
		t.Fatalf("total = %d, tasks = %d, want 2", body.Total, len(body.Tasks))
	}
	if body.Tasks[0].ID != "weather" || body.Tasks[1].Enabled {
		t.Errorf("unexpected manifest: %+v", body.Tasks)
	}
}

func TestHandleEvents(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodGet, "/api/events", "")
	var empty []any
	if err := json.NewDecoder(w.Body).Decode(&empty); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty array, got %d items", len(empty))
	}

	for i := range 6 {
		sid := "s1"
		if i%2 == 1 {
			sid = "s2"
		}
		srv.bus.Publish(events.NewTypedEventWithSession(events.SourceGraph,
			events.TurnStartedPayload{TurnID: "t"}, sid))
	}
	waitForEvents(srv.bus, 6)

	w = srv.do(http.MethodGet, "/api/events?limit=4", "")
	var limited []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&limited); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(limited) != 4 {
		t.Errorf("expected 4 events with limit=4, got %d", len(limited))
	}

	w = srv.do(http.MethodGet, "/api/events?session_id=s2", "")
	var filtered []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&filtered); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(filtered) != 3 {
		t.Fatalf("expected 3 events for s2, got %d", len(filtered))
	}
	for _, e := range filtered {
		if e["session_id"] != "s2" {
			t.Errorf("event from %v leaked into s2 history", e["session_id"])
		}
	}

	if w := srv.do(http.MethodGet, "/api/events?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit: status %d, want 400", w.Code)
	}
}

func TestHandleSessions(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	w := srv.do(http.MethodGet, "/api/sessions", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty list = %q, want []", w.Body.String())
	}

	for _, id := range []string{"a", "b"} {
		cp := sessions.NewCheckpoint(id, time.Now())
		cp.Session.TurnCount = 3
		if err := srv.store.Save(ctx, cp); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	w = srv.do(http.MethodGet, "/api/sessions", "")
	var list []sessions.Summary
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}

	w = srv.do(http.MethodGet, "/api/sessions/a", "")
	if w.Code != http.StatusOK {
		t.Fatalf("show: status %d", w.Code)
	}
	var cp sessions.Checkpoint
	if err := json.NewDecoder(w.Body).Decode(&cp); err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if cp.Session.ID != "a" || cp.Session.TurnCount != 3 {
		t.Errorf("checkpoint = %+v", cp.Session)
	}

	if w := srv.do(http.MethodGet, "/api/sessions/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing session: status %d, want 404", w.Code)
	}
}

func TestHandleMessage(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(http.MethodPost, "/api/sessions/s42/messages", `{"content":"hello","user_id":"u1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var res graph.TurnResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.SessionID != "s42" || len(res.Messages) != 1 || res.Messages[0].Content != "echo: hello" {
		t.Errorf("result = %+v", res)
	}
	if got := srv.fake.lastCall(); got != (submitCall{"s42", "u1", "hello"}) {
		t.Errorf("submit call = %+v", got)
	}

	// No session id: one is generated, user defaults.
	w = srv.do(http.MethodPost, "/api/messages", `{"content":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	got := srv.fake.lastCall()
	if got.sessionID == "" || got.userID != DefaultUserID {
		t.Errorf("submit call = %+v, want generated session and %q user", got, DefaultUserID)
	}

	if w := srv.do(http.MethodPost, "/api/messages", `{"content":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty content: status %d, want 400", w.Code)
	}
	if w := srv.do(http.MethodPost, "/api/messages", `{`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status %d, want 400", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&graph.PersistenceError{Op: "save", SessionID: "s", Err: errors.New("disk full")}, http.StatusServiceUnavailable},
		{actors.ErrPoolClosed, http.StatusServiceUnavailable},
		{sessions.ErrInvalidID, http.StatusBadRequest},
		{errEmptyContent, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHandleMessage_PersistenceFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.fake.err = &graph.PersistenceError{Op: "save", SessionID: "s", Err: errors.New("disk full")}

	w := srv.do(http.MethodPost, "/api/messages", `{"content":"hi","session_id":"s"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", w.Code)
	}
}

func TestWebsocketRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/api/ws"
	client, err := wsclient.Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var res graph.TurnResult
	err = client.Call(ctx, ws.MethodSendMessage, ws.SendMessageParams{SessionID: "ws1", Content: "ping"}, &res)
	if err != nil {
		t.Fatalf("send_message: %v", err)
	}
	if res.SessionID != "ws1" || res.Messages[0].Content != "echo: ping" {
		t.Errorf("result = %+v", res)
	}

	var manifest manifestResponse
	if err := client.Call(ctx, ws.MethodListTasks, nil, &manifest); err != nil {
		t.Fatalf("list_tasks: %v", err)
	}
	if manifest.Total != 2 {
		t.Errorf("manifest total = %d, want 2", manifest.Total)
	}

	err = client.Call(ctx, ws.MethodSendMessage, ws.SendMessageParams{Content: ""}, nil)
	if err == nil || !strings.Contains(err.Error(), "content is required") {
		t.Errorf("empty content error = %v", err)
	}

	if err := client.Call(ctx, "nope", nil, nil); err == nil {
		t.Error("unknown method should fail")
	}
}
