package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/adapters/redis"
	"github.com/aretw0/conduit/pkg/chunked"
	"github.com/aretw0/conduit/pkg/ports"
)

var (
	// ErrUnbound means the environment carries no binding for the requested queue.
	ErrUnbound = errors.New("queue not bound")
	// ErrUnreachable means the queue lives on a transport this process cannot reach.
	ErrUnreachable = errors.New("transport not reachable from this process")
)

// DefaultPollInterval is how often Next checks an empty queue.
const DefaultPollInterval = 20 * time.Millisecond

// Conn opens the queues the orchestrator bound for one model.
type Conn struct {
	env          map[string]string
	logger       *slog.Logger
	pollInterval time.Duration

	mu         sync.Mutex
	transports map[string]ports.Transport
	closers    []io.Closer
	endpoints  []ports.Communicator
}

// Option configures a Conn.
type Option func(*Conn)

// WithTransport reuses t for queues on the transport called name. In-process
// models use it to share the orchestrator's memory transport.
func WithTransport(name string, t ports.Transport) Option {
	return func(c *Conn) {
		c.transports[name] = t
	}
}

// WithLogger sets the logger used by the chunking driver.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPollInterval sets how often Next polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New reads bindings from env.
func New(env map[string]string, opts ...Option) *Conn {
	c := &Conn{
		env:          env,
		logger:       logging.NewNop(),
		pollInterval: DefaultPollInterval,
		transports:   make(map[string]ports.Transport),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnviron reads bindings from the process environment.
func FromEnviron(opts ...Option) *Conn {
	return New(Environ(), opts...)
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Name is the model name the orchestrator assigned.
func (c *Conn) Name() string { return c.env[ports.EnvName("model")] }

// Input opens the input channel called channel.
func (c *Conn) Input(ctx context.Context, channel string) (ports.Communicator, error) {
	return c.endpoint(ctx, ports.Recv, "in", channel)
}

// Output opens the output channel called channel.
func (c *Conn) Output(ctx context.Context, channel string) (ports.Communicator, error) {
	return c.endpoint(ctx, ports.Send, "out", channel)
}

// Calls opens the queue for calls to server. Write ports.DefaultEOF (or the
// endpoint's EOF) to sign off.
func (c *Conn) Calls(ctx context.Context, server string) (ports.Communicator, error) {
	return c.endpoint(ctx, ports.Send, "call", server)
}

// Replies opens the queue where replies from server arrive, one per call.
func (c *Conn) Replies(ctx context.Context, server string) (ports.Communicator, error) {
	return c.endpoint(ctx, ports.Recv, "reply", server)
}

// Requests opens a server model's request queue. It ends with EOF once the last client signs off.
func (c *Conn) Requests(ctx context.Context) (ports.Communicator, error) {
	return c.endpoint(ctx, ports.Recv, "rpc", "in")
}

// Responses opens a server model's reply queue. Replies must follow request order.
func (c *Conn) Responses(ctx context.Context) (ports.Communicator, error) {
	return c.endpoint(ctx, ports.Send, "rpc", "out")
}

func (c *Conn) endpoint(ctx context.Context, dir ports.Direction, parts ...string) (ports.Communicator, error) {
	key := ports.EnvName(parts...)
	address, ok := c.env[key]
	if !ok || address == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnbound, key)
	}
	t, err := c.transport(c.env[key+"_TRANSPORT"])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	raw, err := t.Open(dir, address)
	if err != nil {
		return nil, err
	}
	comm := chunked.Wrap(raw, chunked.WithLogger(c.logger), chunked.WithPollInterval(c.pollInterval))
	if err := comm.Open(ctx); err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	c.mu.Lock()
	c.endpoints = append(c.endpoints, comm)
	c.mu.Unlock()
	return comm, nil
}

func (c *Conn) transport(name string) (ports.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.transports[name]; ok {
		return t, nil
	}
	switch kind := c.env[ports.TransportEnv(name, "type")]; kind {
	case "redis":
		cfg, err := redis.ConfigFromEnv(name, c.env)
		if err != nil {
			return nil, err
		}
		t := redis.New(cfg, redis.WithName(name))
		c.transports[name] = t
		c.closers = append(c.closers, t)
		return t, nil
	case "":
		return nil, fmt.Errorf("%w: %q is not described", ErrUnreachable, name)
	default:
		return nil, fmt.Errorf("%w: %q is a %s transport", ErrUnreachable, name, kind)
	}
}

// Close closes every endpoint opened through c and the transports it created.
func (c *Conn) Close() error {
	c.mu.Lock()
	endpoints, closers := c.endpoints, c.closers
	c.endpoints, c.closers = nil, nil
	c.mu.Unlock()

	var errs []error
	for _, e := range endpoints {
		errs = append(errs, e.Close())
	}
	for _, cl := range closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

// Next blocks until in yields a message, in is exhausted or ctx is done.
func (c *Conn) Next(ctx context.Context, in ports.Communicator) ([]byte, error) {
	for {
		msg, err := in.Recv(c.pollInterval)
		if err != nil || len(msg) > 0 {
			return msg, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
