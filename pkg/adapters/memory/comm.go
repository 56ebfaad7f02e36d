package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/conduit/pkg/ports"
)

// Config tunes the in-memory transport.
type Config struct {
	MaxFrameSize int    `mapstructure:"max_frame_size"`
	Capacity     int    `mapstructure:"capacity"`
	EOF          string `mapstructure:"eof"`
}

// Transport implements ports.Transport on top of a Broker.
type Transport struct {
	name   string
	broker *Broker
	cfg    Config
}

// NewTransport creates an in-memory transport with its own broker.
func NewTransport(name string, cfg Config) *Transport {
	if name == "" {
		name = "memory"
	}
	return &Transport{
		name:   name,
		broker: NewBroker(cfg.Capacity),
		cfg:    cfg,
	}
}

// Name returns the transport name.
func (t *Transport) Name() string { return t.name }

// Broker exposes the queues, mainly for tests and in-process models.
func (t *Transport) Broker() *Broker { return t.broker }

// Env only names the transport type: memory queues are reachable in-process only.
func (t *Transport) Env() map[string]string {
	return map[string]string{ports.TransportEnv(t.name, "type"): "memory"}
}

// Open creates an endpoint. The endpoint still has to be opened before use.
func (t *Transport) Open(dir ports.Direction, address string) (ports.Communicator, error) {
	eof := ports.DefaultEOF
	if t.cfg.EOF != "" {
		eof = []byte(t.cfg.EOF)
	}
	return &Comm{
		broker:  t.broker,
		address: address,
		dir:     dir,
		max:     t.cfg.MaxFrameSize,
		eof:     eof,
	}, nil
}

var _ ports.BatchSender = (*Comm)(nil)

// Comm is one endpoint of an in-memory queue.
type Comm struct {
	broker  *Broker
	address string
	dir     ports.Direction
	max     int
	eof     []byte

	mu     sync.Mutex
	open   bool
	closed bool
}

func (c *Comm) Name() string               { return c.dir.String() + ":" + c.address }
func (c *Comm) Address() string            { return c.address }
func (c *Comm) Direction() ports.Direction { return c.dir }
func (c *Comm) MaxFrameSize() int          { return c.max }
func (c *Comm) EOF() []byte                { return c.eof }

func (c *Comm) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dir == ports.Recv && !c.open {
		c.broker.reopen(c.address)
	}
	c.open = true
	c.closed = false
	return nil
}

func (c *Comm) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if c.dir == ports.Recv && c.open {
		c.broker.close(c.address)
	}
	c.open = false
	c.closed = true
	return nil
}

func (c *Comm) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Comm) state() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ports.ErrClosed
	case !c.open:
		return ports.ErrNotOpen
	}
	return nil
}

func (c *Comm) Send(msg []byte) error {
	if c.dir != ports.Send {
		return ports.ErrWrongDirection
	}
	if err := c.state(); err != nil {
		return err
	}
	if c.max > 0 && len(msg) > c.max {
		return ports.ErrFrameTooLarge
	}
	return c.broker.push(c.address, msg)
}

// SendBatch queues every frame at once, or none of them.
func (c *Comm) SendBatch(frames [][]byte) error {
	if c.dir != ports.Send {
		return ports.ErrWrongDirection
	}
	if err := c.state(); err != nil {
		return err
	}
	for _, frame := range frames {
		if c.max > 0 && len(frame) > c.max {
			return ports.ErrFrameTooLarge
		}
	}
	return c.broker.push(c.address, frames...)
}

func (c *Comm) Recv(timeout time.Duration) ([]byte, error) {
	if c.dir != ports.Recv {
		return nil, ports.ErrWrongDirection
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		if err := c.state(); err != nil {
			return nil, err
		}
		frame, wake, err := c.broker.pop(c.address)
		if err != nil || frame != nil {
			return frame, err
		}
		if timeout <= 0 {
			return nil, nil
		}
		select {
		case <-wake:
		case <-deadline:
			return nil, nil
		}
	}
}

func (c *Comm) Pending() int {
	if c.dir != ports.Recv {
		return 0
	}
	return c.broker.pending(c.address)
}
