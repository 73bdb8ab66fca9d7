// Package userstore holds the credentials clients authenticate against.
//
// Credentials are loaded once before the server starts serving and are
// read-only afterwards, so lookups need no locking.
package userstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/NicolasHaas/groupchat/pkg/crypto"
	"github.com/NicolasHaas/groupchat/pkg/model"
)

var (
	ErrDuplicateUser = errors.New("duplicate username")
	ErrMalformedLine = errors.New("malformed credential line")
)

// Store looks up credentials by username.
type Store interface {
	// Lookup returns model.ErrUserNotFound when the username is unknown.
	Lookup(username string) (model.Credential, error)
}

// Authenticate checks a username/password pair against st.
func Authenticate(st Store, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("userstore: authenticate: %w", model.ErrEmptyArgument)
	}
	cred, err := st.Lookup(username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.ErrAuthFailed
		}
		return fmt.Errorf("userstore: authenticate: %w", err)
	}
	if !crypto.VerifyPassword(cred.Secret, password) {
		return model.ErrAuthFailed
	}
	return nil
}

// Memory is an immutable in-memory Store.
type Memory struct {
	creds map[string]model.Credential
}

// NewMemory builds a store from creds. Usernames must be valid and unique.
func NewMemory(creds ...model.Credential) (*Memory, error) {
	m := &Memory{creds: make(map[string]model.Credential, len(creds))}
	for _, c := range creds {
		if err := validateCredential(c); err != nil {
			return nil, fmt.Errorf("userstore: %w", err)
		}
		if _, exists := m.creds[c.Username]; exists {
			return nil, fmt.Errorf("userstore: %q: %w", c.Username, ErrDuplicateUser)
		}
		m.creds[c.Username] = c
	}
	return m, nil
}

// Lookup returns the credential for username.
func (m *Memory) Lookup(username string) (model.Credential, error) {
	c, ok := m.creds[username]
	if !ok {
		return model.Credential{}, model.ErrUserNotFound
	}
	return c, nil
}

// Len returns the number of users.
func (m *Memory) Len() int {
	return len(m.creds)
}

// Credentials returns all credentials sorted by username.
func (m *Memory) Credentials() []model.Credential {
	out := make([]model.Credential, 0, len(m.creds))
	for _, c := range m.creds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func validateCredential(c model.Credential) error {
	if err := model.ValidateUsername(c.Username); err != nil {
		return fmt.Errorf("%q: %w", c.Username, err)
	}
	if c.Secret == "" {
		return fmt.Errorf("%q: empty password: %w", c.Username, ErrMalformedLine)
	}
	return nil
}

// Compile-time checks.
var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
)
