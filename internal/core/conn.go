package core

import "errors"

var (
	ErrClosed       = errors.New("connection closed")
	ErrBackpressure = errors.New("backpressure")
)

// Frame is one encoded envelope.
type Frame []byte

// SignalConnection is the server side of one client's signaling channel.
// TrySend never blocks: a full outbound buffer yields ErrBackpressure and a
// closed connection yields ErrClosed. Close is idempotent.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
