package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/groupchat/pkg/transport"
)

// shutdownTimeout bounds how long Run waits for handlers after ctx is done.
const shutdownTimeout = 5 * time.Second

// Run starts every configured listener and blocks until ctx is cancelled,
// then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig

	var chatLn net.Listener
	if s.cfg.ListenAddr != "" {
		ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("server: listen chat: %w", err)
		}
		chatLn = ln
	}

	var wsLn net.Listener
	if s.cfg.WebSocketAddr != "" {
		ln, err := lc.Listen(ctx, "tcp", s.cfg.WebSocketAddr)
		if err != nil {
			closeAll(chatLn)
			return fmt.Errorf("server: listen websocket: %w", err)
		}
		wsLn = ln
	}

	var metricsLn net.Listener
	if s.cfg.MetricsAddr != "" {
		ln, err := lc.Listen(ctx, "tcp", s.cfg.MetricsAddr)
		if err != nil {
			closeAll(chatLn, wsLn)
			return fmt.Errorf("server: listen metrics: %w", err)
		}
		metricsLn = ln
	}

	serveErr := make(chan error, 1)
	if chatLn != nil {
		go func() { serveErr <- s.Serve(chatLn) }()
	}
	if wsLn != nil {
		s.addHTTPServer(s.startWebSocketGateway(wsLn))
	}
	if metricsLn != nil {
		s.addHTTPServer(s.startMetricsHTTP(metricsLn))
	}
	s.startPeriodicLog(s.cfg.MetricsLogInterval, s.done)

	slog.Info("groupchat server running",
		"chat", s.cfg.ListenAddr,
		"websocket", s.cfg.WebSocketAddr,
		"metrics", s.cfg.MetricsAddr,
	)

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	slog.Info("shutting down...")
	if serr := s.Shutdown(shutdownTimeout); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Shutdown stops accepting connections, closes every live connection and
// waits up to timeout for handlers to finish their cleanup.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	close(s.done)
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	conns := make([]transport.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	https := s.https
	s.https = nil
	s.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, srv := range https {
		_ = srv.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: shutdown: handlers still running after %s", timeout)
	}
}

// startWebSocketGateway serves WebSocket upgrades on ln. Each upgraded
// connection runs the same handler as a TCP connection.
func (s *Server) startWebSocketGateway(ln net.Listener) *http.Server {
	policy := newOriginPolicy(s.cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}

	path := s.cfg.WebSocketPath
	if path == "" {
		path = "/ws"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.serveConn(transport.NewWebSocketConn(ws, s.transportOptions()))
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("websocket gateway listening", "addr", ln.Addr().String(), "path", path)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("websocket gateway error", "err", err)
		}
	}()
	return srv
}

func (s *Server) addHTTPServer(srv *http.Server) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = srv.Close()
		return
	}
	s.https = append(s.https, srv)
	s.mu.Unlock()
}

func closeAll(lns ...net.Listener) {
	for _, ln := range lns {
		if ln != nil {
			_ = ln.Close()
		}
	}
}
