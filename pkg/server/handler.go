package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/NicolasHaas/groupchat/pkg/model"
	"github.com/NicolasHaas/groupchat/pkg/transport"
	"github.com/NicolasHaas/groupchat/pkg/userstore"
)

// Fixed protocol texts.
const (
	promptUsername = "Enter username: "
	promptPassword = "Enter password: "

	replyWelcome       = "Welcome to the chat server!"
	replyAuthFailed    = "Authentication failed."
	replyAlreadyLogged = "Already Logged In!"

	replyInvalidCommand = "Error: Invalid Command."
	replyUserNotFound   = "Error: user not found."
	replyTooLarge       = "Error: message too large."
	replyRateLimited    = "Error: rate limit exceeded."
	replyInternal       = "Error: internal server error."
)

type connState int

const (
	stateConnecting connState = iota
	stateAuthenticating
	stateActive
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("connState(%d)", int(s))
	}
}

// connHandler drives one connection through its lifecycle. It is owned by a
// single goroutine.
type connHandler struct {
	srv        *Server
	id         ConnID
	conn       transport.Conn
	remote     string
	state      connState
	username   string // set once registered
	registered bool
	announced  bool // join broadcast sent
	limiter    *rate.Limiter
}

// handleConn serves conn until the peer leaves, sends /exit or the server
// shuts down.
func (s *Server) handleConn(conn transport.Conn) {
	h := &connHandler{
		srv:    s,
		id:     NewConnID(),
		conn:   conn,
		remote: conn.RemoteAddr(),
	}
	if s.cfg.RateLimit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	}

	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	slog.Debug("new connection", "conn", h.id, "remote", h.remote)

	defer h.close()

	h.setState(stateAuthenticating)
	if !h.authenticate() {
		return
	}
	h.setState(stateActive)
	h.loop()
}

func (h *connHandler) setState(next connState) {
	slog.Debug("connection state", "conn", h.id, "from", h.state, "to", next)
	h.state = next
}

// authenticate runs the three-step login exchange and registers the session.
func (h *connHandler) authenticate() bool {
	s := h.srv
	if s.cfg.AuthTimeout > 0 {
		_ = h.conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
	}

	username, ok := h.prompt(promptUsername)
	if !ok {
		return false
	}
	password, ok := h.prompt(promptPassword)
	if !ok {
		return false
	}
	username = strings.TrimSpace(username)
	password = strings.TrimRight(password, "\r\n")

	if err := userstore.Authenticate(s.users, username, password); err != nil {
		s.metrics.FailedAuths.Add(1)
		if !errors.Is(err, model.ErrAuthFailed) && !errors.Is(err, model.ErrEmptyArgument) {
			slog.Error("credential lookup failed", "conn", h.id, "err", err)
		}
		slog.Info("authentication failed", "user", username, "remote", h.remote)
		_ = h.conn.Send(replyAuthFailed)
		return false
	}

	if _, err := s.sessions.Register(h.id, username, h.conn); err != nil {
		if errors.Is(err, model.ErrAlreadyLoggedIn) {
			s.metrics.DuplicateLogins.Add(1)
			slog.Info("duplicate login rejected", "user", username, "remote", h.remote)
			_ = h.conn.Send(replyAlreadyLogged)
			return false
		}
		slog.Error("register session failed", "user", username, "err", err)
		return false
	}
	h.username = username
	h.registered = true

	if err := h.conn.Send(replyWelcome); err != nil {
		slog.Debug("welcome send failed", "user", username, "err", err)
		return false
	}
	// Routing sees the session only once the welcome is on the wire.
	if err := s.sessions.Activate(h.id); err != nil {
		slog.Error("activate session failed", "user", username, "err", err)
		return false
	}
	_ = h.conn.SetReadDeadline(time.Time{})

	s.metrics.SuccessfulAuths.Add(1)
	slog.Info("client authenticated", "user", username, "conn", h.id, "remote", h.remote)
	s.router.Broadcast(username+" has joined the chat.", h.id)
	h.announced = true
	return true
}

func (h *connHandler) prompt(text string) (string, bool) {
	if err := h.conn.Send(text); err != nil {
		slog.Debug("prompt send failed", "conn", h.id, "err", err)
		return "", false
	}
	answer, err := h.conn.Recv()
	if err != nil {
		if transport.IsTimeout(err) {
			slog.Info("authentication timed out", "conn", h.id, "remote", h.remote)
		} else {
			slog.Debug("auth read failed", "conn", h.id, "err", err)
		}
		return "", false
	}
	return answer, true
}

// loop reads and dispatches one command per iteration.
func (h *connHandler) loop() {
	s := h.srv
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = h.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		msg, err := h.conn.Recv()
		if err != nil {
			switch {
			case errors.Is(err, model.ErrMessageTooLarge):
				s.metrics.OversizeMessages.Add(1)
				h.reply(replyTooLarge)
				continue
			case transport.IsTimeout(err):
				slog.Info("idle timeout", "user", h.username, "conn", h.id)
			case errors.Is(err, model.ErrPeerDisconnected):
				slog.Debug("peer disconnected", "user", h.username, "conn", h.id)
			default:
				slog.Warn("read error", "user", h.username, "conn", h.id, "err", err)
			}
			return
		}
		if msg == "" {
			return
		}

		if h.limiter != nil && !h.limiter.Allow() {
			s.metrics.RateLimited.Add(1)
			h.reply(replyRateLimited)
			continue
		}

		if quit := h.dispatch(msg); quit {
			return
		}
	}
}

// close runs the cleanup sequence. Registry state is released before the
// transport is closed so no later fan-out can pick this connection.
func (h *connHandler) close() {
	s := h.srv
	h.setState(stateClosing)

	if h.registered {
		if groups := s.groups.RemoveEverywhere(h.id); len(groups) > 0 {
			slog.Debug("left groups on disconnect", "user", h.username, "groups", groups)
		}
		s.sessions.Unregister(h.id)
	}
	_ = h.conn.Close()

	s.metrics.ActiveConnections.Add(-1)
	s.metrics.TotalDisconnects.Add(1)

	if h.registered {
		slog.Info("client disconnected", "user", h.username, "conn", h.id)
	}
	if h.announced {
		s.router.Broadcast(h.username+" has left the chat.", h.id)
	}
	h.setState(stateClosed)
}

// reply sends text back to this connection. A failure here surfaces on the
// next Recv, which ends the loop.
func (h *connHandler) reply(text string) {
	if err := h.conn.Send(text); err != nil {
		slog.Debug("reply failed", "user", h.username, "conn", h.id, "err", err)
	}
}
