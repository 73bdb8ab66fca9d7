package server

import (
	"errors"
	"sync"
	"time"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

// fakeConn records sent messages. Recv reports a disconnected peer.
type fakeConn struct {
	name string

	mu      sync.Mutex
	sent    []string
	sendErr error
	closed  bool
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{name: name}
}

func (c *fakeConn) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return model.ErrPeerDisconnected
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Recv() (string, error) {
	return "", model.ErrPeerDisconnected
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.name }

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) failSends() {
	c.mu.Lock()
	c.sendErr = errors.New("broken pipe")
	c.mu.Unlock()
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// scriptedConn answers Recv from a fixed script and can run a hook before
// each Send is recorded.
type scriptedConn struct {
	*fakeConn

	scriptMu   sync.Mutex
	answers    []string
	beforeSend func(msg string)
}

func newScriptedConn(name string, answers ...string) *scriptedConn {
	return &scriptedConn{fakeConn: newFakeConn(name), answers: answers}
}

func (c *scriptedConn) Send(msg string) error {
	if c.beforeSend != nil {
		c.beforeSend(msg)
	}
	return c.fakeConn.Send(msg)
}

func (c *scriptedConn) Recv() (string, error) {
	c.scriptMu.Lock()
	defer c.scriptMu.Unlock()
	if len(c.answers) == 0 {
		return "", model.ErrPeerDisconnected
	}
	next := c.answers[0]
	c.answers = c.answers[1:]
	return next, nil
}
