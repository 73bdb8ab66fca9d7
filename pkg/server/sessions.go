package server

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/groupchat/pkg/model"
	"github.com/NicolasHaas/groupchat/pkg/transport"
)

// ConnID identifies one live connection. It is opaque and never reused.
type ConnID string

// NewConnID returns a fresh connection handle.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Session is an authenticated connection.
type Session struct {
	ID          ConnID
	Username    string
	Conn        transport.Conn
	RemoteAddr  string
	ConnectedAt time.Time

	active bool
}

// SessionRegistry tracks authenticated sessions and which usernames are
// logged in. A username is bound to at most one connection at a time.
//
// A session is registered in two steps. Register reserves the username,
// Activate publishes the session to routing. Until then it is invisible to
// All, Lookup, ByUsername, Usernames and Count, so no chat traffic can reach
// a client before its login reply.
type SessionRegistry struct {
	mu       sync.RWMutex
	byConn   map[ConnID]*Session
	loggedIn map[string]ConnID // username -> owning connection
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byConn:   make(map[ConnID]*Session),
		loggedIn: make(map[string]ConnID),
	}
}

// Register reserves username for id. The logged-in check and the bind
// happen in one critical section, so of two concurrent logins for the same
// username exactly one succeeds. The session stays pending until Activate.
func (r *SessionRegistry) Register(id ConnID, username string, conn transport.Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.loggedIn[username]; taken {
		return nil, model.ErrAlreadyLoggedIn
	}
	if _, dup := r.byConn[id]; dup {
		return nil, fmt.Errorf("server: register %s: connection already registered", id)
	}

	sess := &Session{
		ID:          id,
		Username:    username,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	if conn != nil {
		sess.RemoteAddr = conn.RemoteAddr()
	}
	r.byConn[id] = sess
	r.loggedIn[username] = id
	return sess, nil
}

// Activate makes a registered session visible to routing.
func (r *SessionRegistry) Activate(id ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byConn[id]
	if !ok {
		return model.ErrSessionNotFound
	}
	sess.active = true
	return nil
}

// Unregister removes id, pending or active. The username's logged-in flag
// is cleared only if this connection owns it. Unknown ids are a no-op.
func (r *SessionRegistry) Unregister(id ConnID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byConn[id]
	if !ok {
		return Session{}, false
	}
	delete(r.byConn, id)
	if owner, ok := r.loggedIn[sess.Username]; ok && owner == id {
		delete(r.loggedIn, sess.Username)
	}
	return *sess, true
}

// Username returns the username bound to id.
func (r *SessionRegistry) Username(id ConnID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byConn[id]
	if !ok {
		return "", model.ErrSessionNotFound
	}
	return sess.Username, nil
}

// ByUsername returns a copy of the session logged in as username.
func (r *SessionRegistry) ByUsername(username string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.loggedIn[username]
	if !ok {
		return Session{}, false
	}
	sess, ok := r.byConn[id]
	if !ok || !sess.active {
		return Session{}, false
	}
	return *sess, true
}

// IsLoggedIn reports whether username is taken, including by a session
// that is not yet active.
func (r *SessionRegistry) IsLoggedIn(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loggedIn[username]
	return ok
}

// All returns a snapshot of every session, ordered by username.
func (r *SessionRegistry) All() []Session {
	r.mu.RLock()
	result := make([]Session, 0, len(r.byConn))
	for _, s := range r.byConn {
		if s.active {
			result = append(result, *s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result
}

// Lookup returns snapshots for the given ids, skipping any that are gone.
func (r *SessionRegistry) Lookup(ids []ConnID) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.byConn[id]; ok && s.active {
			result = append(result, *s)
		}
	}
	return result
}

// Usernames returns the usernames of active sessions, sorted.
func (r *SessionRegistry) Usernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byConn))
	for _, s := range r.byConn {
		if s.active {
			names = append(names, s.Username)
		}
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Count returns the number of active sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.byConn {
		if s.active {
			n++
		}
	}
	return n
}
