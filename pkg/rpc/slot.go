package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/conduit/pkg/ports"
)

// slot is a one-frame in-process endpoint feeding a server-side response relay.
type slot struct {
	name string
	ch   chan []byte

	mu     sync.Mutex
	closed bool
}

func newSlot(name string) *slot {
	return &slot{name: name, ch: make(chan []byte, 1)}
}

func (s *slot) Name() string               { return s.name }
func (s *slot) Address() string            { return s.name }
func (s *slot) Direction() ports.Direction { return ports.Recv }
func (s *slot) MaxFrameSize() int          { return 0 }
func (s *slot) EOF() []byte                { return ports.DefaultEOF }
func (s *slot) Open(context.Context) error { return nil }
func (s *slot) Pending() int               { return len(s.ch) }

func (s *slot) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Send fills the slot. It is used by the dispatcher, not through the Communicator contract.
func (s *slot) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ports.ErrClosed
	}
	select {
	case s.ch <- msg:
		return nil
	default:
		return ports.ErrQueueFull
	}
}

func (s *slot) Recv(timeout time.Duration) ([]byte, error) {
	if !s.IsOpen() {
		return nil, ports.ErrClosed
	}
	if timeout <= 0 {
		select {
		case msg := <-s.ch:
			return msg, nil
		default:
			return nil, nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-timer.C:
		return nil, nil
	}
}
