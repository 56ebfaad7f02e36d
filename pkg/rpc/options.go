package rpc

import (
	"log/slog"
	"time"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/relay"
)

// Option configures a Client or a Server.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	relayOpts []relay.Option
	newID     func() string
	onZero    func()
	staleAge  time.Duration
}

// DefaultStaleReplyAge is how long a call may wait for its reply before a
// server warns that later replies could be going to the wrong caller.
const DefaultStaleReplyAge = 30 * time.Second

func defaults() options {
	return options{
		logger:   logging.NewNop(),
		newID:    newRequestID,
		staleAge: DefaultStaleReplyAge,
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRelayOptions applies opts to every relay the pair creates, children included.
func WithRelayOptions(opts ...relay.Option) Option {
	return func(o *options) {
		o.relayOpts = append(o.relayOpts, opts...)
	}
}

// WithIDGenerator replaces the request id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithZeroClientsHook is called by a Server when its last client signs off.
func WithZeroClientsHook(fn func()) Option {
	return func(o *options) {
		o.onZero = fn
	}
}

// WithStaleReplyAge sets the age past which a Server warns about the reply it
// is routing while other calls still wait.
func WithStaleReplyAge(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleAge = d
		}
	}
}
