package rpc

import (
	"errors"
	"sync"

	"github.com/aretw0/conduit/pkg/ports"
)

// ErrConsumed is returned by a OneShot endpoint after its single send.
var ErrConsumed = errors.New("ephemeral response channel already used")

// OneShot wraps a sending endpoint so that it accepts exactly one successful Send.
// The end-of-stream sentinel is not counted.
type OneShot struct {
	ports.Communicator

	mu       sync.Mutex
	consumed bool
}

// NewOneShot wraps c.
func NewOneShot(c ports.Communicator) *OneShot {
	return &OneShot{Communicator: c}
}

// Send forwards the first message and rejects every later one.
func (o *OneShot) Send(msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ports.IsEOF(o.Communicator, msg) {
		return nil
	}
	if o.consumed {
		return ErrConsumed
	}
	if err := o.Communicator.Send(msg); err != nil {
		return err
	}
	o.consumed = true
	return nil
}

// Consumed reports whether the single send happened.
func (o *OneShot) Consumed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consumed
}
