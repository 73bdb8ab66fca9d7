// Package protocol defines the length-prefixed text framing used between
// chat clients and the server.
//
// Every logical message travels as one frame:
//
//	[4-byte big-endian length][UTF-8 payload]
//
// so a receive always yields exactly one message regardless of how the
// underlying stream splits or coalesces writes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

const (
	// HeaderSize is the byte size of the frame length prefix.
	HeaderSize = 4

	// DefaultMaxMessage is the default maximum payload size in bytes.
	DefaultMaxMessage = 1024

	// MaxDiscard is the largest oversize frame a reader drains and skips.
	// Longer frames are treated as a corrupt stream.
	MaxDiscard = 64 * 1024
)

// ErrFrameCorrupt means the stream can no longer be parsed into frames.
var ErrFrameCorrupt = errors.New("protocol: corrupt frame")

// WriteFrame writes payload as a single frame. Payloads larger than max are
// rejected with model.ErrMessageTooLarge and nothing is written.
func WriteFrame(w io.Writer, payload []byte, max int) error {
	if max <= 0 {
		max = DefaultMaxMessage
	}
	if len(payload) > max {
		return fmt.Errorf("protocol: write %d bytes: %w", len(payload), model.ErrMessageTooLarge)
	}

	// Header and payload go out in one Write so concurrent writers that
	// serialize on Write never interleave a frame.
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload))) //nolint:gosec // length bounded by max above
	copy(buf[HeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame. A frame longer than max but no longer than
// MaxDiscard is consumed and reported as model.ErrMessageTooLarge, leaving
// the stream positioned at the next frame.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxMessage
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("protocol: read length: %w", io.EOF)
		}
		return nil, fmt.Errorf("protocol: read length: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxDiscard {
		return nil, fmt.Errorf("%w: length %d", ErrFrameCorrupt, length)
	}
	if int(length) > max {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, fmt.Errorf("protocol: discard payload: %w", err)
		}
		return nil, fmt.Errorf("protocol: read %d bytes: %w", length, model.ErrMessageTooLarge)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return payload, nil
}
