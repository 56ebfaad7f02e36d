package orchestrator

import (
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/conduit/pkg/adapters/process"
	"github.com/aretw0/conduit/pkg/observability"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/relay"
)

const (
	DefaultGrace        = 5 * time.Second
	DefaultStopTimeout  = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger shared by every relay and model wrapper.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTranslator registers a translator usable by name in the graph.
func WithTranslator(name string, fn relay.Transform) Option {
	return func(o *Orchestrator) {
		o.translators.Register(name, fn)
	}
}

// WithTransport supplies a transport instead of building it from the graph.
func WithTransport(name string, t ports.Transport) Option {
	return func(o *Orchestrator) {
		o.transports[name] = t
	}
}

// WithModel supplies the model named name instead of launching its command.
func WithModel(name string, m ports.Model) Option {
	return func(o *Orchestrator) {
		o.models[name] = m
	}
}

// WithModelFunc runs the model named name in process.
func WithModelFunc(name string, fn process.RunFunc) Option {
	return func(o *Orchestrator) {
		o.funcs[name] = fn
	}
}

// WithInterrupts sets the interrupt event source, usually Signals.Events.
func WithInterrupts(events <-chan struct{}) Option {
	return func(o *Orchestrator) {
		o.interrupts = events
	}
}

// WithClock replaces time.Now when measuring the interrupt grace window.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithGrace sets the window in which a second interrupt forces shutdown.
func WithGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.grace = d
		}
	}
}

// WithStopTimeout bounds every graceful drain.
func WithStopTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

// WithPollInterval sets how often model liveness is checked.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithStatusWriter sets where the status table goes on the first interrupt.
func WithStatusWriter(w io.Writer) Option {
	return func(o *Orchestrator) {
		if w != nil {
			o.printer = observability.NewPrinter(w)
		}
	}
}

// WithRelayOptions applies opts to every relay, RPC relays included.
func WithRelayOptions(opts ...relay.Option) Option {
	return func(o *Orchestrator) {
		o.relayOpts = append(o.relayOpts, opts...)
	}
}

// WithProcessOptions applies opts to every model wrapper the orchestrator creates.
func WithProcessOptions(opts ...process.Option) Option {
	return func(o *Orchestrator) {
		o.processOpts = append(o.processOpts, opts...)
	}
}
