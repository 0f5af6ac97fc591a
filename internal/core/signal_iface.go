package core

import (
	"errors"

	"github.com/dkeye/Desk/internal/domain"
)

var (
	// ErrBackpressure means the connection's outbound buffer is full.
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Frame is a raw encoded message ready for the wire.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Sender delivers an encoded message to one live connection.
type Sender interface {
	Send(to domain.ConnID, f Frame) error
}
