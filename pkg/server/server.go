// Package server implements the groupchat server: session and group
// registries, message routing and the per-connection state machine.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/NicolasHaas/groupchat/pkg/transport"
	"github.com/NicolasHaas/groupchat/pkg/userstore"
)

// Dependencies holds external dependencies for the server.
type Dependencies struct {
	Users userstore.Store
}

// Server is the chat server.
type Server struct {
	cfg      Config
	users    userstore.Store
	sessions *SessionRegistry
	groups   *GroupRegistry
	router   *Router
	metrics  *Metrics

	mu        sync.Mutex
	closing   bool
	listeners map[net.Listener]struct{}
	https     []*http.Server
	conns     map[transport.Conn]struct{}
	wg        sync.WaitGroup
	done      chan struct{}
}

// New creates a server. It fails if cfg is invalid or no user store is given.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Users == nil {
		return nil, errors.New("server: missing user store dependency")
	}

	s := &Server{
		cfg:       cfg,
		users:     deps.Users,
		sessions:  NewSessionRegistry(),
		groups:    NewGroupRegistry(),
		metrics:   NewMetrics(),
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[transport.Conn]struct{}),
		done:      make(chan struct{}),
	}
	s.groups.SetHooks(
		func(name string) {
			s.metrics.GroupsCreated.Add(1)
			slog.Debug("group created", "group", name)
		},
		func(name string) {
			s.metrics.GroupsDeleted.Add(1)
			slog.Debug("group deleted", "group", name)
		},
	)
	s.router = NewRouter(s.sessions, s.groups, s.metrics, cfg.MaxMessageSize)
	return s, nil
}

// Sessions returns the session registry.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

// Groups returns the group registry.
func (s *Server) Groups() *GroupRegistry {
	return s.groups
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Snapshot returns the current metrics including session and group gauges.
func (s *Server) Snapshot() MetricsSnapshot {
	return s.metrics.Snapshot(s.sessions.Count(), s.groups.Count())
}

func (s *Server) transportOptions() transport.Options {
	return transport.Options{
		MaxMessageSize: s.cfg.MaxMessageSize,
		WriteTimeout:   s.cfg.WriteTimeout,
	}
}

// Serve accepts TCP connections on ln until ln is closed or Shutdown is
// called. Each connection is served on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return fmt.Errorf("server: serve: %w", net.ErrClosed)
	}
	defer s.untrackListener(ln)

	slog.Info("chat listener accepting", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("accept error", "err", err)
			continue
		}
		s.serveConn(transport.NewTCPConn(conn, s.transportOptions()))
	}
}

// serveConn runs the connection handler for conn on a tracked goroutine.
func (s *Server) serveConn(conn transport.Conn) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
		s.handleConn(conn)
	}()
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
