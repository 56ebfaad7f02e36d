package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/conduit/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Config describes how to reach Redis and how channels are laid out on it.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Prefix       string        `mapstructure:"prefix"`
	MaxFrameSize int           `mapstructure:"max_frame_size"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// ResponseTTL bounds how long an unread reply survives on a response address.
	ResponseTTL time.Duration `mapstructure:"response_ttl"`
	EOF         string        `mapstructure:"eof"`
}

const (
	defaultPrefix       = "conduit:"
	defaultLockTTL      = 10 * time.Minute
	defaultPollInterval = 20 * time.Millisecond
	defaultResponseTTL  = time.Minute
)

// Transport implements ports.Transport with one Redis list per address.
type Transport struct {
	name   string
	client *backend.Client
	locker *Locker
	cfg    Config
}

// Option configures the transport.
type Option func(*Transport)

// WithName overrides the transport name used in bindings and logs.
func WithName(name string) Option {
	return func(t *Transport) {
		t.name = name
	}
}

// New creates a transport with its own client.
func New(cfg Config, opts ...Option) *Transport {
	rdb := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(rdb, cfg, opts...)
}

// NewFromClient creates a transport from an existing client.
func NewFromClient(client *backend.Client, cfg Config, opts ...Option) *Transport {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = defaultResponseTTL
	}
	if cfg.Addr == "" {
		cfg.Addr = client.Options().Addr
	}
	t := &Transport{
		name:   "redis",
		client: client,
		locker: NewLocker(client, cfg.Prefix),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the transport name.
func (t *Transport) Name() string { return t.name }

// Locker exposes the reader lock.
func (t *Transport) Locker() *Locker { return t.locker }

// Close closes the underlying client.
func (t *Transport) Close() error { return t.client.Close() }

// Env describes the transport to model processes; ConfigFromEnv reads it back.
func (t *Transport) Env() map[string]string {
	env := map[string]string{
		ports.TransportEnv(t.name, "type"):   "redis",
		ports.TransportEnv(t.name, "addr"):   t.cfg.Addr,
		ports.TransportEnv(t.name, "db"):     strconv.Itoa(t.cfg.DB),
		ports.TransportEnv(t.name, "prefix"): t.cfg.Prefix,
	}
	if t.cfg.Password != "" {
		env[ports.TransportEnv(t.name, "password")] = t.cfg.Password
	}
	if t.cfg.MaxFrameSize > 0 {
		env[ports.TransportEnv(t.name, "max_frame_size")] = strconv.Itoa(t.cfg.MaxFrameSize)
	}
	if t.cfg.EOF != "" {
		env[ports.TransportEnv(t.name, "eof")] = t.cfg.EOF
	}
	return env
}

// ConfigFromEnv rebuilds the Config of the Redis transport called name from
// the variables Env produced. It fails when env describes no such transport.
func ConfigFromEnv(name string, env map[string]string) (Config, error) {
	get := func(key string) string { return env[ports.TransportEnv(name, key)] }
	if get("type") != "redis" {
		return Config{}, fmt.Errorf("redis: no transport %q in environment", name)
	}
	cfg := Config{
		Addr:     get("addr"),
		Password: get("password"),
		Prefix:   get("prefix"),
		EOF:      get("eof"),
	}
	for key, dst := range map[string]*int{"db": &cfg.DB, "max_frame_size": &cfg.MaxFrameSize} {
		if v := get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("redis: %s: %w", ports.TransportEnv(name, key), err)
			}
			*dst = n
		}
	}
	return cfg, nil
}

// Key returns the list key backing address.
func (t *Transport) Key(address string) string {
	return t.cfg.Prefix + "queue:" + address
}

// Open creates an endpoint bound to address.
func (t *Transport) Open(dir ports.Direction, address string) (ports.Communicator, error) {
	if address == "" {
		return nil, errors.New("redis: empty address")
	}
	eof := ports.DefaultEOF
	if t.cfg.EOF != "" {
		eof = []byte(t.cfg.EOF)
	}
	return &Comm{
		t:         t,
		address:   address,
		key:       t.Key(address),
		dir:       dir,
		eof:       eof,
		ephemeral: strings.HasPrefix(address, ports.ResponsePrefix),
	}, nil
}

var _ ports.BatchSender = (*Comm)(nil)

// Comm is one endpoint of a Redis list. A reader holds the address lease while
// open and stops with ErrLockLost if another reader takes it over. Lists behind
// response addresses expire after ResponseTTL and are deleted when their
// reader closes.
type Comm struct {
	t         *Transport
	address   string
	key       string
	dir       ports.Direction
	eof       []byte
	ephemeral bool

	mu     sync.Mutex
	open   bool
	closed bool
	lease  *Lease
}

func (c *Comm) Name() string               { return c.dir.String() + ":" + c.address }
func (c *Comm) Address() string            { return c.address }
func (c *Comm) Direction() ports.Direction { return c.dir }
func (c *Comm) MaxFrameSize() int          { return c.t.cfg.MaxFrameSize }
func (c *Comm) EOF() []byte                { return c.eof }

// Open checks connectivity and, for readers, takes the address lock.
func (c *Comm) Open(ctx context.Context) error {
	if err := c.t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	var lease *Lease
	if c.dir == ports.Recv {
		var err error
		lease, err = c.t.locker.Hold(ctx, c.address, c.t.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("reader lock for %s: %w", c.address, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.closed = false
	c.lease = lease
	return nil
}

// Close releases the reader lock. Frames left in the list stay there, except
// on response addresses where nobody will read them.
func (c *Comm) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	lease := c.lease
	wasOpen := c.open
	c.lease = nil
	c.open = false
	c.closed = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var errs []error
	if c.ephemeral && c.dir == ports.Recv && wasOpen {
		if err := c.t.client.Del(ctx, c.key).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis del %s: %w", c.key, err))
		}
	}
	if lease != nil {
		errs = append(errs, lease.Release(ctx))
	}
	return errors.Join(errs...)
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
	if c.lease != nil {
		select {
		case <-c.lease.Lost():
			return ErrLockLost
		default:
		}
	}
	return nil
}

func (c *Comm) Send(msg []byte) error {
	return c.SendBatch([][]byte{msg})
}

// SendBatch appends every frame with a single RPUSH, so concurrent writers
// never interleave inside a batch.
func (c *Comm) SendBatch(frames [][]byte) error {
	if c.dir != ports.Send {
		return ports.ErrWrongDirection
	}
	if err := c.state(); err != nil {
		return err
	}
	values := make([]any, len(frames))
	for i, frame := range frames {
		if limit := c.MaxFrameSize(); limit > 0 && len(frame) > limit {
			return ports.ErrFrameTooLarge
		}
		values[i] = frame
	}
	if len(values) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.t.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.RPush(ctx, c.key, values...)
		if c.ephemeral {
			pipe.PExpire(ctx, c.key, c.t.cfg.ResponseTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis rpush %s: %w", c.key, err)
	}
	return nil
}

// Recv polls LPOP until a frame arrives or timeout elapses.
func (c *Comm) Recv(timeout time.Duration) ([]byte, error) {
	if c.dir != ports.Recv {
		return nil, ports.ErrWrongDirection
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := c.state(); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		val, err := c.t.client.LPop(ctx, c.key).Bytes()
		cancel()
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("redis lpop %s: %w", c.key, err)
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return nil, nil
		}
		wait := c.t.cfg.PollInterval
		if rem := time.Until(deadline); rem < wait {
			wait = rem
		}
		time.Sleep(wait)
	}
}

func (c *Comm) Pending() int {
	if c.dir != ports.Recv {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := c.t.client.LLen(ctx, c.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
