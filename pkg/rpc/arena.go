package rpc

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/conduit/pkg/relay"
)

// ErrUnknownRequest is returned when a reply has no matching pending call.
var ErrUnknownRequest = errors.New("no pending request for response")

// PendingState tracks a call from creation to its single reply.
type PendingState string

const (
	Awaiting  PendingState = "awaiting"
	Fulfilled PendingState = "fulfilled"
)

// Pending is one in-flight call and the single-use relay that carries its reply.
type Pending struct {
	ID       string
	Address  string
	State    PendingState
	QueuedAt time.Time

	relay *relay.Engine
	slot  *slot
}

// Arena owns the response relays of one parent, indexed by request id.
// Safe for concurrent use.
type Arena struct {
	mu    sync.Mutex
	items map[string]*Pending
	seq   []string
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{items: make(map[string]*Pending)}
}

// Add registers a call. A duplicate id replaces nothing and reports false.
func (a *Arena) Add(p *Pending) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.items[p.ID]; exists {
		return false
	}
	if p.State == "" {
		p.State = Awaiting
	}
	if p.QueuedAt.IsZero() {
		p.QueuedAt = time.Now()
	}
	a.items[p.ID] = p
	a.seq = append(a.seq, p.ID)
	return true
}

// Claim marks the oldest awaiting call as fulfilled and returns it.
func (a *Arena) Claim() (*Pending, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.seq {
		p, ok := a.items[id]
		if ok && p.State == Awaiting {
			p.State = Fulfilled
			return p, nil
		}
	}
	return nil, ErrUnknownRequest
}

// Fulfill marks the call id as answered.
func (a *Arena) Fulfill(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.items[id]
	if !ok || p.State == Fulfilled {
		return false
	}
	p.State = Fulfilled
	return true
}

// Release forgets the call id.
func (a *Arena) Release(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, id)
	for i, v := range a.seq {
		if v == id {
			a.seq = append(a.seq[:i], a.seq[i+1:]...)
			break
		}
	}
}

// Get returns the call id.
func (a *Arena) Get(id string) (Pending, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.items[id]
	if !ok {
		return Pending{}, false
	}
	return *p, true
}

// Awaiting counts the calls still waiting for a reply.
func (a *Arena) Awaiting() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, p := range a.items {
		if p.State == Awaiting {
			n++
		}
	}
	return n
}

// Len counts every tracked call.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// List returns a snapshot ordered by creation.
func (a *Arena) List() []Pending {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Pending, 0, len(a.items))
	for _, p := range a.items {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out
}

// TerminateAll forcibly stops every tracked relay and empties the arena.
func (a *Arena) TerminateAll() int {
	a.mu.Lock()
	items := a.items
	a.items = make(map[string]*Pending)
	a.seq = nil
	a.mu.Unlock()

	for _, p := range items {
		if p.relay != nil {
			p.relay.Terminate()
		}
	}
	return len(items)
}
