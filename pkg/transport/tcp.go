package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/NicolasHaas/groupchat/pkg/model"
	"github.com/NicolasHaas/groupchat/pkg/protocol"
)

// TCPConn carries framed messages over a net.Conn.
type TCPConn struct {
	conn net.Conn
	r    *bufio.Reader
	opts Options

	wmu sync.Mutex // serializes frames from concurrent senders
}

// NewTCPConn wraps an established stream connection.
func NewTCPConn(conn net.Conn, opts Options) *TCPConn {
	return &TCPConn{
		conn: conn,
		r:    bufio.NewReader(conn),
		opts: opts,
	}
}

// Dial connects to a chat server.
func Dial(ctx context.Context, addr string, opts Options) (*TCPConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewTCPConn(conn, opts), nil
}

// Send writes msg as one frame.
func (c *TCPConn) Send(msg string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := protocol.WriteFrame(c.conn, []byte(msg), c.opts.maxMessage()); err != nil {
		if isClosedErr(err) {
			return fmt.Errorf("transport: send: %w: %w", model.ErrPeerDisconnected, err)
		}
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Recv reads one frame.
func (c *TCPConn) Recv() (string, error) {
	payload, err := protocol.ReadFrame(c.r, c.opts.maxMessage())
	if err != nil {
		if isClosedErr(err) {
			return "", fmt.Errorf("transport: recv: %w: %w", model.ErrPeerDisconnected, err)
		}
		return "", fmt.Errorf("transport: recv: %w", err)
	}
	return string(payload), nil
}

// Close closes the underlying connection.
func (c *TCPConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *TCPConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// SetReadDeadline sets the read deadline on the underlying connection.
func (c *TCPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

var _ Conn = (*TCPConn)(nil)
