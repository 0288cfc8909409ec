// Package ws provides a WebSocket client for the pokus gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	wsprotocol "github.com/dohr-michael/pokus/internal/gateway/ws"
)

// EventFunc receives event frames seen while waiting for a response.
type EventFunc func(wsprotocol.Frame)

// Client is a WebSocket client for the pokus gateway.
type Client struct {
	conn    *websocket.Conn
	reqSeq  uint64
	onEvent EventFunc
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	conn.SetReadLimit(4 << 20)
	return &Client{conn: conn}, nil
}

// OnEvent registers a callback for event frames.
func (c *Client) OnEvent(fn EventFunc) {
	c.onEvent = fn
}

// Call sends a request and waits for its response, decoding the payload
// into out when non-nil. Event frames received meanwhile go to OnEvent.
func (c *Client) Call(ctx context.Context, method wsprotocol.Method, params, out any) error {
	id := fmt.Sprintf("req-%d", atomic.AddUint64(&c.reqSeq, 1))

	frame, err := wsprotocol.NewRequestFrame(id, method, params)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if err := wsjson.Write(ctx, c.conn, frame); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}

	for {
		f, err := c.ReadFrame(ctx)
		if err != nil {
			return err
		}
		switch {
		case f.Type == wsprotocol.FrameTypeEvent:
			if c.onEvent != nil {
				c.onEvent(f)
			}
		case f.Type == wsprotocol.FrameTypeResponse && f.ID == id:
			if f.OK == nil || !*f.OK {
				if f.Error == "" {
					return errors.New("request failed")
				}
				return errors.New(f.Error)
			}
			if out != nil && len(f.Payload) > 0 {
				return json.Unmarshal(f.Payload, out)
			}
			return nil
		}
	}
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame(ctx context.Context) (wsprotocol.Frame, error) {
	var f wsprotocol.Frame
	if err := wsjson.Read(ctx, c.conn, &f); err != nil {
		return wsprotocol.Frame{}, err
	}
	return f, nil
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
