package rpc

import "sync"

// ClientCount is the number of clients signed on to a server.
// It never goes negative. Reaching zero after at least one sign-on is the
// server's shutdown trigger, and Release reaches the same state for a server
// no client will ever sign on to.
type ClientCount struct {
	mu   sync.Mutex
	n    int
	seen bool
}

// SignOn registers one client and returns the new count.
func (c *ClientCount) SignOn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.seen = true
	return c.n
}

// SignOff removes one client. zero is true only on the transition to zero.
// A sign-off with no client signed on is ignored.
func (c *ClientCount) SignOff() (remaining int, zero bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		return 0, false
	}
	c.n--
	return c.n, c.n == 0
}

// Release marks a server without clients as drained. It reports false when a
// client is signed on or the count was already drained.
func (c *ClientCount) Release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n > 0 || c.seen {
		return false
	}
	c.seen = true
	return true
}

// Count returns the current number of clients.
func (c *ClientCount) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Drained reports whether every client that signed on has signed off.
func (c *ClientCount) Drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen && c.n == 0
}
