package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains colon", "user:name", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateGroupName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"simple", "team", nil},
		{"punctuation", "team-42.dev", nil},
		{"unicode", "équipe", nil},
		{"max length", strings.Repeat("g", MaxGroupNameLength), nil},
		{"empty", "", ErrGroupNameEmpty},
		{"too long", strings.Repeat("g", MaxGroupNameLength+1), ErrGroupNameTooLong},
		{"space", "my team", ErrGroupNameInvalid},
		{"tab", "my\tteam", ErrGroupNameInvalid},
		{"escape", "team\x1b[31m", ErrGroupNameInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGroupName(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateGroupName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestEmptyGroupNameIsEmptyArgument(t *testing.T) {
	if !errors.Is(ValidateGroupName(""), ErrEmptyArgument) {
		t.Fatalf("empty group name should wrap ErrEmptyArgument")
	}
}

func TestIsUserError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrGroupNotFound, true},
		{fmt.Errorf("router: direct: %w", ErrRecipientNotFound), true},
		{ErrMessageTooLarge, true},
		{ErrGroupNameEmpty, true},
		{ErrPeerDisconnected, false},
		{ErrAuthFailed, false},
		{errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := IsUserError(tt.err); got != tt.want {
				t.Errorf("IsUserError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
