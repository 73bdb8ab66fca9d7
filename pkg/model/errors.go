// Package model defines the core domain types and errors for groupchat.
package model

import "errors"

// Session and authentication errors.
var (
	ErrAuthFailed       = errors.New("authentication failed")
	ErrAlreadyLoggedIn  = errors.New("already logged in")
	ErrUserNotFound     = errors.New("user not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrPeerDisconnected = errors.New("peer disconnected")
)

// Errors produced by user input. They are answered with a reply to the
// offending client and never end its session.
var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrAlreadyMember     = errors.New("already a member")
	ErrNotMember         = errors.New("not a member")
	ErrGroupExists       = errors.New("group already exists")
	ErrEmptyArgument     = errors.New("empty argument")
	ErrMessageTooLarge   = errors.New("message too large")
)

var userErrors = []error{
	ErrRecipientNotFound,
	ErrGroupNotFound,
	ErrAlreadyMember,
	ErrNotMember,
	ErrGroupExists,
	ErrEmptyArgument,
	ErrMessageTooLarge,
	ErrGroupNameTooLong,
	ErrGroupNameInvalid,
}

// IsUserError reports whether err was caused by client input rather than by
// the transport or the server.
func IsUserError(err error) bool {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
