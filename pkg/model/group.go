package model

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

const MaxGroupNameLength = 64

var ErrGroupNameEmpty = fmt.Errorf("group name must not be empty: %w", ErrEmptyArgument)
var ErrGroupNameTooLong = fmt.Errorf("group name must not exceed %d characters", MaxGroupNameLength)
var ErrGroupNameInvalid = errors.New("group name must not contain whitespace or control characters")

// ValidateGroupName checks that a group name is 1-64 runes with no whitespace
// or control characters. Group names are the first argument token of the
// group commands, so whitespace can never be part of one.
func ValidateGroupName(name string) error {
	if name == "" {
		return ErrGroupNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return ErrGroupNameTooLong
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == utf8.RuneError {
			return ErrGroupNameInvalid
		}
	}
	return nil
}
