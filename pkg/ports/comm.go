package ports

import (
	"bytes"
	"context"
	"time"
)

// Direction tells which side of a channel a Communicator serves.
type Direction int

const (
	// Send endpoints only write frames.
	Send Direction = iota
	// Recv endpoints only read frames.
	Recv
)

func (d Direction) String() string {
	if d == Send {
		return "send"
	}
	return "recv"
}

// DefaultEOF is the end-of-stream sentinel used when a transport does not define its own.
var DefaultEOF = []byte("__CONDUIT_EOF__")

// Communicator is one end of a message channel. It is exclusively owned by the
// driver that created it and is destroyed when that driver closes.
type Communicator interface {
	// Name identifies the endpoint in logs and status lines.
	Name() string
	// Address is the transport-level location of the channel (queue key, file path...).
	Address() string
	Direction() Direction

	// Open makes the endpoint usable. It must respect ctx cancellation.
	Open(ctx context.Context) error
	// Close releases the endpoint. Calling Close more than once is not an error.
	Close() error
	IsOpen() bool

	// Send writes one frame. It never blocks waiting for a reader.
	Send(msg []byte) error
	// Recv waits up to timeout for one frame.
	// A nil error with an empty message means nothing is currently available.
	// A non-nil error means the channel is permanently exhausted or closed.
	Recv(timeout time.Duration) ([]byte, error)

	// MaxFrameSize is the largest frame the transport accepts. Zero means unbounded.
	MaxFrameSize() int
	// EOF returns the end-of-stream sentinel for this channel.
	EOF() []byte
	// Pending reports how many frames are waiting to be read.
	Pending() int
}

// EOFHandler is implemented by endpoints with extra behavior once the
// end-of-stream sentinel has been written to them (closing a file, for example).
type EOFHandler interface {
	OnEOF() error
}

// BatchSender is implemented by endpoints that can write several frames as one
// unit. No frame from another writer on the same address lands between them.
type BatchSender interface {
	SendBatch(frames [][]byte) error
}

// Transport creates Communicators bound to addresses on one backend.
type Transport interface {
	Name() string
	Open(dir Direction, address string) (Communicator, error)
	// Env lists the bindings a model process needs to reach this transport.
	Env() map[string]string
}

// IsEOF reports whether msg is the end-of-stream sentinel of c.
func IsEOF(c Communicator, msg []byte) bool {
	return bytes.Equal(msg, c.EOF())
}
