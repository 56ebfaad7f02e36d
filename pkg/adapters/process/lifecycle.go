package process

import (
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/aretw0/conduit/internal/logging"
)

var (
	ErrNoName         = errors.New("model name is required")
	ErrNoCommand      = errors.New("model command is required")
	ErrAlreadyStarted = errors.New("model already started")
	ErrTerminated     = errors.New("model terminated before start")
	ErrStart          = errors.New("model failed to start")
	ErrExitStatus     = errors.New("model exited with non-zero status")
	ErrPanic          = errors.New("model panicked")
)

// Option configures an Exec or a Func.
type Option func(*lifecycle)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithStopTimeout bounds the wait between the interrupt and the kill in Terminate.
func WithStopTimeout(d time.Duration) Option {
	return func(l *lifecycle) {
		if d > 0 {
			l.stopTimeout = d
		}
	}
}

// lifecycle is the state shared by every model kind: environment, exit status
// and the done channel closed exactly once when the model is gone.
type lifecycle struct {
	name        string
	logger      *slog.Logger
	stopTimeout time.Duration

	mu          sync.Mutex
	env         map[string]string
	started     bool
	terminating bool
	exitCode    int
	err         error

	finishOnce sync.Once
	done       chan struct{}
}

func (l *lifecycle) init(name string, opts []Option) {
	l.name = name
	l.logger = logging.NewNop()
	l.stopTimeout = DefaultStopTimeout
	l.env = make(map[string]string)
	l.exitCode = -1
	l.done = make(chan struct{})
	for _, opt := range opts {
		opt(l)
	}
}

func (l *lifecycle) Name() string { return l.name }

// SetEnv merges env into the start environment. Calls after Start have no effect
// on the running model.
func (l *lifecycle) SetEnv(env map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		l.logger.Warn("environment set after start is ignored", "model", l.name)
	}
	maps.Copy(l.env, env)
}

// Env returns a copy of the injected environment.
func (l *lifecycle) Env() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.env)
}

func (l *lifecycle) markStarted() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrAlreadyStarted
	}
	if l.terminating {
		return ErrTerminated
	}
	l.started = true
	return nil
}

func (l *lifecycle) isTerminating() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terminating
}

// beginTerminate reports whether the caller is the first to terminate a started model.
func (l *lifecycle) beginTerminate() (first, started bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminating {
		return false, l.started
	}
	l.terminating = true
	return true, l.started
}

// finish records the exit status. Only the first call counts.
func (l *lifecycle) finish(code int, err error) {
	l.finishOnce.Do(func() {
		l.mu.Lock()
		l.exitCode = code
		l.err = err
		l.mu.Unlock()
		if err != nil {
			l.logger.Error("model failed", "model", l.name, "exit_code", code, "err", err)
		} else {
			l.logger.Debug("model exited", "model", l.name, "exit_code", code)
		}
		close(l.done)
	})
}

// Done is closed once the model has exited.
func (l *lifecycle) Done() <-chan struct{} { return l.done }

func (l *lifecycle) Alive() bool {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *lifecycle) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-l.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.done:
		return true
	case <-timer.C:
		return false
	}
}

// ExitCode is -1 until the model exits, and for models stopped by a signal.
func (l *lifecycle) ExitCode() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exitCode
}

func (l *lifecycle) Errors() bool { return l.Err() != nil }

func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
