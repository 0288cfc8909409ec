package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/dohr-michael/pokus/internal/events"
)

// Handler serves request frames. The gateway implements it.
// SendMessage also returns the session the turn ran in, which may have been
// created for the request.
type Handler interface {
	SendMessage(ctx context.Context, p SendMessageParams) (sessionID string, result any, err error)
	ListTasks(ctx context.Context) (any, error)
}

// responseWait bounds how long a response frame waits for room in a full
// client send buffer. Event frames never wait.
var responseWait = 5 * time.Second

// Client represents a connected WebSocket client.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	session atomic.Pointer[string] // event filter; nil = all sessions
	wg      sync.WaitGroup
}

// Hub manages WebSocket clients and bridges them to the event bus.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	handler     Handler
	unsubscribe func()
}

// NewHub creates a new WebSocket hub connected to an event bus.
func NewHub(bus *events.Bus, handler Handler) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		handler: handler,
	}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e.SessionID, e.Payload)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.broadcast(e.SessionID, data)
	})

	return h
}

// broadcast sends data to every client interested in sessionID.
func (h *Hub) broadcast(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if filter := c.session.Load(); filter != nil && *filter != sessionID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	h.register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
// Closing the connection cancels in-flight turns, which then persist nothing.
func (c *Client) readPump(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.wg.Wait()
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}
		if frame.Type != FrameTypeRequest {
			slog.Debug("ws unknown frame type", "type", frame.Type)
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleRequest(ctx, frame)
		}()
	}
}

// handleRequest processes a request frame (method dispatch).
func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	switch Method(frame.Method) {
	case MethodSendMessage:
		var params SendMessageParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(ctx, frame.ID, "", "invalid params")
			return
		}
		sid, res, err := c.hub.handler.SendMessage(ctx, params)
		if err != nil {
			c.sendError(ctx, frame.ID, sid, err.Error())
			return
		}
		c.sendOK(ctx, frame.ID, sid, res)

	case MethodListTasks:
		res, err := c.hub.handler.ListTasks(ctx)
		if err != nil {
			c.sendError(ctx, frame.ID, "", err.Error())
			return
		}
		c.sendOK(ctx, frame.ID, "", res)

	case MethodSubscribe:
		var params SubscribeParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(ctx, frame.ID, "", "invalid params")
			return
		}
		if params.SessionID == "" {
			c.session.Store(nil)
		} else {
			c.session.Store(&params.SessionID)
		}
		c.sendOK(ctx, frame.ID, params.SessionID, map[string]string{"status": "subscribed"})

	default:
		c.sendError(ctx, frame.ID, "", "unknown method: "+frame.Method)
	}
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendOK(ctx context.Context, id, sessionID string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	c.sendResponse(ctx, f, err, sessionID)
}

func (c *Client) sendError(ctx context.Context, id, sessionID, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	c.sendResponse(ctx, f, err, sessionID)
}

// sendResponse queues a response frame. Unlike events, a response waits up
// to responseWait for buffer room, since the turn behind it is already
// persisted. It gives up when ctx ends (the client is gone).
func (c *Client) sendResponse(ctx context.Context, f Frame, err error, sessionID string) {
	if err != nil {
		slog.Error("ws build frame", "id", f.ID, "session_id", sessionID, "error", err)
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		slog.Error("ws marshal frame", "id", f.ID, "session_id", sessionID, "error", err)
		return
	}

	select {
	case c.send <- data:
		return
	default:
	}

	timer := time.NewTimer(responseWait)
	defer timer.Stop()
	select {
	case c.send <- data:
	case <-ctx.Done():
		slog.Warn("ws response dropped, client disconnected", "id", f.ID, "session_id", sessionID)
	case <-timer.C:
		slog.Warn("ws response dropped, client send buffer full", "id", f.ID, "session_id", sessionID)
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
