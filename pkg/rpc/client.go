package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conduit/pkg/chunked"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/relay"
	"github.com/google/uuid"
)

func newRequestID() string { return uuid.NewString() }

// ClientConfig wires the client side of an RPC pair.
type ClientConfig struct {
	Name string
	// Outbox is where the local model writes its calls (recv endpoint).
	Outbox ports.Communicator
	// Channel is the server's shared request channel (send endpoint).
	Channel ports.Communicator
	// Responses hosts the ephemeral response.<uuid> addresses.
	Responses ports.Transport
	// Inbox and InboxAddress locate the local model's response input.
	Inbox        ports.Transport
	InboxAddress string
}

// Client turns a model's one-way outbox into calls that each get exactly one reply.
type Client struct {
	cfg     ClientConfig
	opts    options
	logger  *slog.Logger
	request *relay.Engine
	arena   *Arena
	channel *controlled

	ctxMu sync.Mutex
	ctx   context.Context
}

// NewClient builds the request relay of a client. Nothing is opened yet.
func NewClient(cfg ClientConfig, opts ...Option) *Client {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{
		cfg:     cfg,
		opts:    o,
		logger:  o.logger,
		arena:   NewArena(),
		channel: &controlled{Communicator: cfg.Channel},
		ctx:     context.Background(),
	}
	relayOpts := append([]relay.Option{
		relay.WithLogger(o.logger),
		relay.WithTransform(c.call),
	}, o.relayOpts...)
	c.request = relay.New(cfg.Name, cfg.Outbox, c.channel, relayOpts...)
	return c
}

// Name returns the client name.
func (c *Client) Name() string { return c.cfg.Name }

// Request returns the long-lived request relay.
func (c *Client) Request() *relay.Engine { return c.request }

// Arena exposes the pending calls.
func (c *Client) Arena() *Arena { return c.arena }

// PendingCalls counts calls still waiting for a reply.
func (c *Client) PendingCalls() int { return c.arena.Awaiting() }

func (c *Client) Open(ctx context.Context) error { return c.request.Open(ctx) }
func (c *Client) IsOpen() bool                   { return c.request.IsOpen() }
func (c *Client) Done() <-chan struct{}          { return c.request.Done() }

// Close terminates the client and its children.
func (c *Client) Close() error {
	c.Terminate()
	return nil
}

// Start signs on with the server and starts forwarding calls.
func (c *Client) Start(ctx context.Context) {
	c.ctxMu.Lock()
	c.ctx = ctx
	c.ctxMu.Unlock()

	if err := c.channel.signOn(); err != nil {
		c.logger.Warn("sign-on failed", "relay", c.cfg.Name, "err", err)
	}
	c.request.Start(ctx)
}

// SignOff tells the server this client is done. Only the first call sends anything.
// Stopping the client signs off too.
func (c *Client) SignOff() error {
	return c.channel.signOff()
}

// GracefulStop drains calls already in the outbox, then drops every unanswered call.
func (c *Client) GracefulStop(timeout time.Duration) {
	c.request.GracefulStop(timeout)
	c.dropChildren()
}

// Terminate stops the request relay and every pending response relay immediately.
func (c *Client) Terminate() {
	c.request.Terminate()
	c.dropChildren()
}

func (c *Client) dropChildren() {
	if n := c.arena.TerminateAll(); n > 0 {
		c.logger.Debug("dropped pending calls", "relay", c.cfg.Name, "count", n)
	}
}

func (c *Client) context() context.Context {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	return c.ctx
}

// call is the request relay transform: it spawns the response relay for this call
// and attaches its address to the outgoing request.
func (c *Client) call(payload []byte) ([]byte, error) {
	id := c.opts.newID()
	address := ResponsePrefix + id

	child, err := c.spawn(id, address)
	if err != nil {
		return nil, fmt.Errorf("response relay for %s: %w", id, err)
	}

	env, err := Envelope{RequestID: id, ResponseAddress: address, Payload: payload}.Encode()
	if err != nil {
		child.Terminate()
		c.arena.Release(id)
		return nil, err
	}
	return env, nil
}

func (c *Client) spawn(id, address string) (*relay.Engine, error) {
	in, err := c.cfg.Responses.Open(ports.Recv, address)
	if err != nil {
		return nil, err
	}
	out, err := c.cfg.Inbox.Open(ports.Send, c.cfg.InboxAddress)
	if err != nil {
		return nil, errors.Join(err, in.Close())
	}

	name := fmt.Sprintf("%s.%s", c.cfg.Name, address)
	opts := append([]relay.Option{relay.WithLogger(c.logger)}, c.opts.relayOpts...)
	opts = append(opts, relay.WithMaxMessages(1))
	child := relay.New(name, chunked.Wrap(in), NewOneShot(chunked.Wrap(out)), opts...)

	ctx := c.context()
	if err := child.Open(ctx); err != nil {
		child.Terminate()
		return nil, err
	}
	c.arena.Add(&Pending{ID: id, Address: address, relay: child})
	child.Start(ctx)

	go func() {
		<-child.Done()
		if child.Status().Sent > 0 {
			c.arena.Fulfill(id)
		}
		c.arena.Release(id)
	}()
	return child, nil
}

// controlled serializes every write to the shared request channel and turns the
// local end-of-stream into a single sign-off.
type controlled struct {
	ports.Communicator

	mu        sync.Mutex
	signedOn  bool
	signedOff bool
}

func (s *controlled) Send(msg []byte) error {
	if ports.IsEOF(s.Communicator, msg) {
		// The shared channel outlives this client: never forward its EOF.
		return s.signOff()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Communicator.Send(msg)
}

// Close signs off first: a client that stops for any reason releases its server.
func (s *controlled) Close() error {
	return errors.Join(s.signOff(), s.Communicator.Close())
}

func (s *controlled) signOn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedOn {
		return nil
	}
	if err := s.Communicator.Send(SignOn); err != nil {
		return err
	}
	s.signedOn = true
	return nil
}

func (s *controlled) signOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signedOn || s.signedOff {
		return nil
	}
	s.signedOff = true
	return s.Communicator.Send(SignOff)
}
