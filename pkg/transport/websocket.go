package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

// WebSocketConn carries one chat message per WebSocket text message.
type WebSocketConn struct {
	ws   *websocket.Conn
	opts Options

	wmu sync.Mutex // gorilla allows one concurrent writer
}

// NewWebSocketConn wraps an upgraded WebSocket connection.
func NewWebSocketConn(ws *websocket.Conn, opts Options) *WebSocketConn {
	// Reads beyond the limit fail the connection, so allow some slack over
	// the message size and reject oversize payloads in Recv instead.
	ws.SetReadLimit(int64(opts.maxMessage()) * 4)
	return &WebSocketConn{ws: ws, opts: opts}
}

// Send writes msg as a single text message.
func (c *WebSocketConn) Send(msg string) error {
	if len(msg) > c.opts.maxMessage() {
		return fmt.Errorf("transport: send %d bytes: %w", len(msg), model.ErrMessageTooLarge)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.opts.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		if isWebSocketClosed(err) {
			return fmt.Errorf("transport: ws send: %w: %w", model.ErrPeerDisconnected, err)
		}
		return fmt.Errorf("transport: ws send: %w", err)
	}
	return nil
}

// Recv reads the next text message. Binary messages are rejected.
func (c *WebSocketConn) Recv() (string, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if isWebSocketClosed(err) {
				return "", fmt.Errorf("transport: ws recv: %w: %w", model.ErrPeerDisconnected, err)
			}
			return "", fmt.Errorf("transport: ws recv: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		if len(data) > c.opts.maxMessage() {
			return "", fmt.Errorf("transport: ws recv %d bytes: %w", len(data), model.ErrMessageTooLarge)
		}
		return string(data), nil
	}
}

// Close sends a close frame (best effort) and closes the connection.
func (c *WebSocketConn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.ws.Close()
}

// RemoteAddr returns the peer address.
func (c *WebSocketConn) RemoteAddr() string {
	if addr := c.ws.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// SetReadDeadline sets the read deadline on the WebSocket.
func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func isWebSocketClosed(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) || errors.Is(err, websocket.ErrCloseSent) || isClosedErr(err)
}

var _ Conn = (*WebSocketConn)(nil)
