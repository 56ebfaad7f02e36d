package memory

import (
	"sync"

	"github.com/aretw0/conduit/pkg/ports"
)

// queue is one FIFO of frames shared by every endpoint bound to an address.
type queue struct {
	frames [][]byte
	closed bool
	notify chan struct{}
}

// Broker holds the in-memory queues, keyed by address.
// Safe for concurrent use.
type Broker struct {
	queues   map[string]*queue
	capacity int
	mu       sync.Mutex
}

// NewBroker creates an empty broker. Capacity bounds each queue; zero means unbounded.
func NewBroker(capacity int) *Broker {
	return &Broker{
		queues:   make(map[string]*queue),
		capacity: capacity,
	}
}

func (b *Broker) get(address string) *queue {
	q, ok := b.queues[address]
	if !ok {
		q = &queue{notify: make(chan struct{}, 1)}
		b.queues[address] = q
	}
	return q
}

func (b *Broker) push(address string, frames ...[]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.get(address)
	if q.closed {
		return ports.ErrClosed
	}
	if b.capacity > 0 && len(q.frames)+len(frames) > b.capacity {
		return ports.ErrQueueFull
	}
	for _, frame := range frames {
		// Copy so callers can reuse their buffer.
		q.frames = append(q.frames, append([]byte(nil), frame...))
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// pop returns the head frame, or nil and a wake-up channel when the queue is empty.
func (b *Broker) pop(address string) ([]byte, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.get(address)
	if q.closed {
		return nil, nil, ports.ErrClosed
	}
	if len(q.frames) == 0 {
		return nil, q.notify, nil
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, nil, nil
}

func (b *Broker) pending(address string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[address]; ok {
		return len(q.frames)
	}
	return 0
}

// reopen clears the closed mark left by a previous reader.
func (b *Broker) reopen(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.get(address).closed = false
}

// close marks the address as gone: queued frames are dropped and later sends fail.
func (b *Broker) close(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.get(address)
	q.closed = true
	q.frames = nil
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Addresses lists every address the broker has seen.
func (b *Broker) Addresses() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.queues))
	for addr := range b.queues {
		out = append(out, addr)
	}
	return out
}
