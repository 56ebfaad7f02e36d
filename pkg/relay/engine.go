package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/ports"
)

var (
	// ErrOpenTimeout is returned when the endpoints do not report open in time.
	ErrOpenTimeout = errors.New("relay endpoints did not open in time")

	// ErrSkip can be returned by a Transform to drop a message silently.
	ErrSkip = errors.New("skip message")

	// ErrEndOfStream can be returned by a Transform to forward end-of-stream instead of the message.
	ErrEndOfStream = errors.New("end of stream")
)

const (
	DefaultOpenTimeout  = 5 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

// Transform rewrites a message between input and output.
type Transform func(msg []byte) ([]byte, error)

// Identity returns msg unchanged.
func Identity(msg []byte) ([]byte, error) { return msg, nil }

// ExitHook runs when the model owning the relay exits.
type ExitHook func(e *Engine)

// Engine reads one endpoint and forwards every message to another, in order.
type Engine struct {
	name         string
	in           ports.Communicator
	out          ports.Communicator
	transform    Transform
	openTimeout  time.Duration
	pollInterval time.Duration
	maxMessages  uint64
	exitHook     ExitHook
	logger       *slog.Logger

	mu         sync.Mutex
	state      State
	received   uint64
	processed  uint64
	sent       uint64
	running    bool
	draining   bool
	terminated bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransform sets the message transform. The default is Identity.
func WithTransform(fn Transform) Option {
	return func(e *Engine) {
		if fn != nil {
			e.transform = fn
		}
	}
}

// WithOpenTimeout bounds Open.
func WithOpenTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.openTimeout = d
		}
	}
}

// WithPollInterval sets how long each receive waits before the loop re-checks for shutdown.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithMaxMessages stops the loop after n sent messages. Zero means no limit.
func WithMaxMessages(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxMessages = uint64(n)
		}
	}
}

// WithExitHook sets the action run by OnExit.
func WithExitHook(hook ExitHook) Option {
	return func(e *Engine) {
		e.exitHook = hook
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine owning in and out.
func New(name string, in, out ports.Communicator, opts ...Option) *Engine {
	e := &Engine{
		name:         name,
		in:           in,
		out:          out,
		transform:    Identity,
		openTimeout:  DefaultOpenTimeout,
		pollInterval: DefaultPollInterval,
		exitHook:     func(*Engine) {},
		logger:       logging.NewNop(),
		state:        StateStarted,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string               { return e.name }
func (e *Engine) Input() ports.Communicator  { return e.in }
func (e *Engine) Output() ports.Communicator { return e.out }

// Done is closed when the loop started by Start has returned.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Open opens both endpoints and waits, bounded by the open timeout, until both report open.
func (e *Engine) Open(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.openTimeout)
	defer cancel()

	for _, c := range []ports.Communicator{e.in, e.out} {
		if err := c.Open(ctx); err != nil {
			return fmt.Errorf("relay %s: open %s: %w", e.name, c.Name(), err)
		}
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for !e.in.IsOpen() || !e.out.IsOpen() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("relay %s: %w", e.name, ErrOpenTimeout)
		case <-ticker.C:
		}
	}
	return nil
}

// IsOpen reports whether both endpoints are open and the engine was not terminated.
func (e *Engine) IsOpen() bool {
	e.mu.Lock()
	terminated := e.terminated
	e.mu.Unlock()
	return !terminated && e.in.IsOpen() && e.out.IsOpen()
}

// Close is Terminate, for ports.Openable.
func (e *Engine) Close() error {
	e.Terminate()
	return nil
}

// Start runs the loop in its own goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running || e.terminated {
		e.mu.Unlock()
		return
	}
	e.running = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	go func() {
		defer close(e.done)
		e.Run(ctx)
	}()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	if !e.terminated {
		e.state = s
	}
	e.mu.Unlock()
}

func (e *Engine) isTerminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

func (e *Engine) isDraining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

// Run forwards messages until the input is exhausted, end-of-stream is forwarded,
// the message limit is reached, ctx is canceled or the engine is terminated.
// Both endpoints are closed when it returns.
func (e *Engine) Run(ctx context.Context) {
	defer e.Terminate()
	e.logger.Debug("relay started", "relay", e.name, "in", e.in.Address(), "out", e.out.Address())

	for ctx.Err() == nil && !e.isTerminated() {
		e.setState(StateReceiving)
		msg, err := e.in.Recv(e.pollInterval)
		if err != nil {
			if errors.Is(err, ports.ErrDiscarded) {
				e.logger.Warn("discarded malformed message", "relay", e.name, "err", err)
				continue
			}
			if !e.isTerminated() {
				e.logger.Debug("input exhausted", "relay", e.name, "err", err)
			}
			return
		}
		if len(msg) == 0 {
			e.setState(StateWaiting)
			if e.isDraining() {
				return
			}
			continue
		}

		e.mu.Lock()
		e.received++
		e.mu.Unlock()
		e.setState(StateReceived)

		eof := ports.IsEOF(e.in, msg)
		if !eof {
			e.setState(StateProcessing)
			out, err := e.transform(msg)
			switch {
			case errors.Is(err, ErrSkip):
				continue
			case errors.Is(err, ErrEndOfStream):
				eof = true
			case err != nil:
				e.logger.Warn("transform failed, dropping message", "relay", e.name, "err", err)
				continue
			default:
				msg = out
				e.mu.Lock()
				e.processed++
				e.mu.Unlock()
				e.setState(StateProcessed)
			}
		}
		if eof {
			msg = e.out.EOF()
		}

		e.setState(StateSending)
		if err := e.out.Send(msg); err != nil {
			if !e.isTerminated() {
				e.logger.Warn("send failed, stopping relay", "relay", e.name, "out", e.out.Address(), "err", err)
			}
			return
		}
		e.mu.Lock()
		e.sent++
		sent := e.sent
		e.mu.Unlock()
		e.setState(StateSent)

		if eof {
			if h, ok := e.out.(ports.EOFHandler); ok {
				if err := h.OnEOF(); err != nil {
					e.logger.Warn("end-of-stream handler failed", "relay", e.name, "err", err)
				}
			}
			e.logger.Debug("end of stream forwarded", "relay", e.name)
			return
		}
		if e.maxMessages > 0 && sent >= e.maxMessages {
			return
		}
	}
}

// GracefulStop lets the loop drain the input: the loop exits the first time it
// finds nothing waiting. After that, or once timeout elapses, the engine terminates.
func (e *Engine) GracefulStop(timeout time.Duration) {
	e.mu.Lock()
	e.draining = true
	running := e.running && !e.terminated
	e.mu.Unlock()

	if running {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-e.done:
		case <-timer.C:
			e.logger.Warn("graceful stop timed out, terminating", "relay", e.name, "pending", e.in.Pending())
		}
	}
	e.Terminate()
}

// Terminate closes both endpoints immediately. It is idempotent and safe to call
// from any goroutine, including the loop itself.
func (e *Engine) Terminate() {
	e.mu.Lock()
	if e.terminated {
		e.mu.Unlock()
		return
	}
	e.terminated = true
	e.state = StateClosed
	cancel := e.cancel
	running := e.running
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, c := range []ports.Communicator{e.in, e.out} {
		if err := c.Close(); err != nil {
			e.logger.Warn("close endpoint", "relay", e.name, "endpoint", c.Name(), "err", err)
		}
	}
	if !running {
		// Start never ran: nothing else will close done.
		e.mu.Lock()
		e.running = true
		e.mu.Unlock()
		close(e.done)
	}
	e.logger.Debug("relay closed", "relay", e.name)
}

// OnExit runs the configured exit hook. The default does nothing.
func (e *Engine) OnExit() {
	e.exitHook(e)
}

// Status returns the counters and current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	s := Status{
		Name:      e.name,
		State:     e.state,
		Received:  e.received,
		Processed: e.processed,
		Sent:      e.sent,
	}
	e.mu.Unlock()
	s.Pending = e.in.Pending()
	return s
}
