// Package client implements the groupchat client connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NicolasHaas/groupchat/pkg/model"
	"github.com/NicolasHaas/groupchat/pkg/transport"
)

// MessageHandler is a callback for every message received from the server.
type MessageHandler func(msg string)

// Client is a connection to a groupchat server. Send may be called from any
// goroutine; receiving is done either by Recv or by StartReceiving, not both.
type Client struct {
	conn transport.Conn

	startOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, opts transport.Options) (*Client, error) {
	conn, err := transport.Dial(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn transport.Conn) *Client {
	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}
}

// Send sends one line to the server.
func (c *Client) Send(msg string) error {
	if err := c.conn.Send(msg); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	return nil
}

// Recv blocks until the next server message arrives.
func (c *Client) Recv() (string, error) {
	msg, err := c.conn.Recv()
	if err != nil {
		return "", fmt.Errorf("client: recv: %w", err)
	}
	return msg, nil
}

// SetReadDeadline bounds subsequent Recv calls. A zero time clears it.
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Login answers the username and password prompts and returns the server's
// verdict, which is the welcome text on success.
func (c *Client) Login(username, password string) (string, error) {
	for _, answer := range []string{username, password} {
		if _, err := c.Recv(); err != nil {
			return "", err
		}
		if err := c.Send(answer); err != nil {
			return "", err
		}
	}
	verdict, err := c.Recv()
	if err != nil {
		return "", err
	}
	switch verdict {
	case "Authentication failed.":
		return verdict, model.ErrAuthFailed
	case "Already Logged In!":
		return verdict, model.ErrAlreadyLoggedIn
	}
	return verdict, nil
}

// StartReceiving starts a goroutine that reads incoming messages and hands
// them to handler. Done is closed when the connection ends.
func (c *Client) StartReceiving(handler MessageHandler) {
	c.startOnce.Do(func() {
		go func() {
			defer close(c.done)
			for {
				msg, err := c.conn.Recv()
				if err != nil {
					if errors.Is(err, model.ErrPeerDisconnected) {
						slog.Debug("connection closed")
					} else {
						slog.Error("read error", "err", err)
					}
					c.setErr(err)
					return
				}
				if handler != nil {
					handler(msg)
				}
			}
		}()
	})
}

// Done returns a channel that's closed when the receive loop stops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that stopped the receive loop.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
