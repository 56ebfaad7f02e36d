package ports

import (
	"context"
	"time"
)

// Openable is anything with an open/close lifecycle.
type Openable interface {
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool
}

// Relayable is a driver that moves messages from one endpoint to another.
type Relayable interface {
	Openable
	Start(ctx context.Context)
	GracefulStop(timeout time.Duration)
	Terminate()
	Done() <-chan struct{}
}

// Chunked is a driver carrying messages larger than the frame limit of its
// underlying transport.
type Chunked interface {
	Communicator
	RecvWait(timeout time.Duration) ([]byte, error)
}

// Correlatable tracks calls that are still waiting for their reply.
type Correlatable interface {
	Relayable
	PendingCalls() int
}
