package chunked

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/ports"
)

var (
	// ErrBadLength is returned when the length frame cannot be parsed.
	ErrBadLength = fmt.Errorf("%w: invalid length frame", ports.ErrDiscarded)

	// ErrIncomplete is returned when the retry budget runs out before the declared length.
	ErrIncomplete = fmt.Errorf("%w: incomplete chunked message", ports.ErrDiscarded)

	// ErrOverrun is returned when the received frames exceed the declared length.
	ErrOverrun = fmt.Errorf("%w: chunked message longer than declared", ports.ErrDiscarded)

	// ErrTimeout is returned by RecvWait when no message arrived in time.
	ErrTimeout = errors.New("timed out waiting for message")
)

const (
	// DefaultRetrySlack is added to the frame count to get the receive retry budget.
	DefaultRetrySlack = 5
	// DefaultPollInterval is the RecvWait polling period.
	DefaultPollInterval = 10 * time.Millisecond
	// DefaultFrameTimeout bounds each payload frame read.
	DefaultFrameTimeout = 100 * time.Millisecond
)

// Stats are monotonic counters kept for status reporting.
type Stats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	FramesSent       uint64
	FramesReceived   uint64
	BytesSent        uint64
	BytesReceived    uint64
}

// Driver fragments and reassembles messages over a pair of bounded-frame endpoints.
// Either endpoint may be nil when the driver is used in one direction only.
type Driver struct {
	name string
	tx   ports.Communicator
	rx   ports.Communicator

	slack        int
	pollInterval time.Duration
	frameTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	stats  Stats
	closed bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithRetrySlack changes the number of extra reads allowed beyond the frame count.
func WithRetrySlack(n int) Option {
	return func(d *Driver) {
		if n >= 0 {
			d.slack = n
		}
	}
}

// WithPollInterval sets the RecvWait polling period.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithFrameTimeout bounds each payload frame read.
func WithFrameTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		d.frameTimeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithName overrides the driver name.
func WithName(name string) Option {
	return func(d *Driver) {
		d.name = name
	}
}

// New creates a driver over tx (sending) and rx (receiving). At least one must be set.
func New(tx, rx ports.Communicator, opts ...Option) *Driver {
	d := &Driver{
		tx:           tx,
		rx:           rx,
		slack:        DefaultRetrySlack,
		pollInterval: DefaultPollInterval,
		frameTimeout: DefaultFrameTimeout,
		logger:       logging.NewNop(),
	}
	d.name = "chunked:" + d.primary().Name()
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wrap returns c unchanged when its transport is unbounded, otherwise a one-sided Driver.
func Wrap(c ports.Communicator, opts ...Option) ports.Communicator {
	if c.MaxFrameSize() == 0 {
		return c
	}
	if c.Direction() == ports.Send {
		return New(c, nil, opts...)
	}
	return New(nil, c, opts...)
}

// RetryBudget is the number of payload reads allowed for a message of length bytes.
func RetryBudget(length, maxFrame, slack int) int {
	if maxFrame <= 0 {
		return 1 + slack
	}
	return (length+maxFrame-1)/maxFrame + slack
}

func (d *Driver) primary() ports.Communicator {
	if d.rx != nil && d.tx == nil {
		return d.rx
	}
	return d.tx
}

func (d *Driver) Name() string    { return d.name }
func (d *Driver) Address() string { return d.primary().Address() }

func (d *Driver) Direction() ports.Direction { return d.primary().Direction() }

// MaxFrameSize is zero: the driver accepts messages of any size.
func (d *Driver) MaxFrameSize() int { return 0 }
func (d *Driver) EOF() []byte       { return d.primary().EOF() }

// Open opens every wrapped endpoint.
func (d *Driver) Open(ctx context.Context) error {
	for _, c := range []ports.Communicator{d.tx, d.rx} {
		if c == nil {
			continue
		}
		if err := c.Open(ctx); err != nil {
			return fmt.Errorf("open %s: %w", c.Name(), err)
		}
	}
	d.mu.Lock()
	d.closed = false
	d.mu.Unlock()
	return nil
}

// Close closes both endpoints. It is idempotent.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	var errs []error
	for _, c := range []ports.Communicator{d.tx, d.rx} {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) IsOpen() bool {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return false
	}
	for _, c := range []ports.Communicator{d.tx, d.rx} {
		if c != nil && !c.IsOpen() {
			return false
		}
	}
	return true
}

// Pending reports the number of frames waiting on the receiving endpoint.
func (d *Driver) Pending() int {
	if d.rx == nil {
		return 0
	}
	return d.rx.Pending()
}

// Stats returns a copy of the counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Driver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Send transmits msg as a length frame followed by payload frames. Endpoints
// that implement ports.BatchSender get every frame in one call, so writers
// sharing an address never interleave. Otherwise Send aborts on the first
// frame the transport rejects.
func (d *Driver) Send(msg []byte) error {
	if d.tx == nil {
		return ports.ErrWrongDirection
	}
	if d.isClosed() {
		return ports.ErrClosed
	}

	frames := d.split(msg)
	if batch, ok := d.tx.(ports.BatchSender); ok {
		if err := batch.SendBatch(frames); err != nil {
			return fmt.Errorf("send %d frames: %w", len(frames), err)
		}
		d.count(frames...)
	} else {
		for i, frame := range frames {
			if err := d.tx.Send(frame); err != nil {
				if i == 0 {
					return fmt.Errorf("send length frame: %w", err)
				}
				return fmt.Errorf("send frame %d of %d: %w", i, len(frames)-1, err)
			}
			d.count(frame)
		}
	}

	d.mu.Lock()
	d.stats.MessagesSent++
	d.mu.Unlock()
	return nil
}

// split returns the length frame followed by the payload frames of msg.
func (d *Driver) split(msg []byte) [][]byte {
	limit := d.tx.MaxFrameSize()
	if limit <= 0 {
		limit = max(len(msg), 1)
	}
	frames := make([][]byte, 0, 1+(len(msg)+limit-1)/limit)
	frames = append(frames, []byte(strconv.Itoa(len(msg))))
	for off := 0; off < len(msg); off += limit {
		frames = append(frames, msg[off:min(off+limit, len(msg))])
	}
	return frames
}

func (d *Driver) count(frames ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, frame := range frames {
		d.stats.FramesSent++
		d.stats.BytesSent += uint64(len(frame))
	}
}

func (d *Driver) recvFrame(timeout time.Duration) ([]byte, error) {
	frame, err := d.rx.Recv(timeout)
	if err != nil || len(frame) == 0 {
		return frame, err
	}
	d.mu.Lock()
	d.stats.FramesReceived++
	d.stats.BytesReceived += uint64(len(frame))
	d.mu.Unlock()
	return frame, nil
}

// Recv reads one complete message. An empty result with a nil error means nothing is waiting.
func (d *Driver) Recv(timeout time.Duration) ([]byte, error) {
	if d.rx == nil {
		return nil, ports.ErrWrongDirection
	}
	if d.isClosed() {
		return nil, ports.ErrClosed
	}

	head, err := d.recvFrame(timeout)
	if err != nil {
		return nil, err
	}
	if len(head) == 0 {
		return nil, nil
	}

	length, err := strconv.Atoi(string(head))
	if err != nil || length < 0 {
		d.logger.Warn("discarding chunked message", "relay", d.name, "header", string(head))
		return nil, fmt.Errorf("%w: %q", ErrBadLength, head)
	}

	budget := RetryBudget(length, d.rx.MaxFrameSize(), d.slack)
	buf := make([]byte, 0, length)
	for attempt := 0; len(buf) < length && attempt < budget; attempt++ {
		frame, err := d.recvFrame(d.frameTimeout)
		if err != nil {
			return nil, err
		}
		buf = append(buf, frame...)
	}

	switch {
	case len(buf) < length:
		d.logger.Warn("discarding incomplete chunked message",
			"relay", d.name, "received", len(buf), "expected", length, "budget", budget)
		return nil, fmt.Errorf("%w: received %d of %d bytes", ErrIncomplete, len(buf), length)
	case len(buf) > length:
		return nil, fmt.Errorf("%w: received %d of %d bytes", ErrOverrun, len(buf), length)
	}

	d.mu.Lock()
	d.stats.MessagesReceived++
	d.mu.Unlock()
	return buf, nil
}

// RecvWait polls until a non-empty message arrives or timeout elapses.
// A zero timeout waits forever.
func (d *Driver) RecvWait(timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		msg, err := d.Recv(0)
		if err != nil || len(msg) > 0 {
			return msg, err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
		time.Sleep(d.pollInterval)
	}
}
