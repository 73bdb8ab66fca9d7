// Package transport provides the per-client message channel the server and
// clients talk over: a reliable, ordered stream carrying one logical text
// message per Send/Recv.
package transport

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/NicolasHaas/groupchat/pkg/model"
	"github.com/NicolasHaas/groupchat/pkg/protocol"
)

// Conn is a bidirectional message channel to one peer. Send is safe for
// concurrent use; Recv must only be called from one goroutine.
type Conn interface {
	// Send delivers one message. It blocks until the message is handed to
	// the network or the write deadline expires.
	Send(msg string) error

	// Recv blocks until one whole message arrives.
	// It returns an error wrapping model.ErrPeerDisconnected once the peer is gone.
	Recv() (string, error)

	// Close releases the connection. Pending Recv calls return.
	Close() error

	// RemoteAddr describes the peer for logging.
	RemoteAddr() string

	// SetReadDeadline bounds the next Recv calls. A zero time clears it.
	SetReadDeadline(t time.Time) error
}

// Options controls per-connection limits.
type Options struct {
	MaxMessageSize int           // payload limit in bytes (default protocol.DefaultMaxMessage)
	WriteTimeout   time.Duration // per-Send deadline, 0 = none
}

func (o Options) maxMessage() int {
	if o.MaxMessageSize <= 0 {
		return protocol.DefaultMaxMessage
	}
	return o.MaxMessageSize
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isClosedErr matches the ways a stream reports that the peer or the local
// side has gone away.
func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, model.ErrPeerDisconnected)
}
