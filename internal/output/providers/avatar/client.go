// Package avatar implements the websocket-based avatar-control output
// providers (VTube Studio, VRChat OSC-over-websocket bridges, Warudo), each
// translating a decision.intent's emotion/actions into that platform's
// wire shape. The three providers share the same connect/adapt/render/
// disconnect lifecycle but stay separate concrete types rather than
// hanging off a common base.
package avatar

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// wsClient is a small reconnect-free websocket client shared by every
// avatar provider in this package; each provider owns its own instance.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
	url  string
}

func newWSClient(url string) *wsClient {
	return &wsClient{url: url}
}

func (c *wsClient) connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("avatar: dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *wsClient) send(ctx context.Context, v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("avatar: not connected")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("avatar: marshal message: %w", err)
	}
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(sendCtx, websocket.MessageText, data)
}

func (c *wsClient) close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "shutting down")
}

func (c *wsClient) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
