package process

import (
	"context"
	"fmt"

	"github.com/aretw0/conduit/pkg/ports"
)

var _ ports.Model = (*Func)(nil)

// RunFunc is the body of an in-process model. It receives the injected bindings
// and must return when ctx is canceled.
type RunFunc func(ctx context.Context, env map[string]string) error

// Func runs a model as a goroutine inside the orchestrator process.
type Func struct {
	lifecycle
	fn     RunFunc
	cancel context.CancelFunc
}

// NewFunc wraps fn as a model named name.
func NewFunc(name string, fn RunFunc, opts ...Option) *Func {
	f := &Func{fn: fn}
	f.init(name, opts)
	return f
}

// Start runs fn in its own goroutine. Canceling ctx asks it to stop.
func (f *Func) Start(ctx context.Context) error {
	if f.name == "" {
		return fmt.Errorf("process: %w", ErrNoName)
	}
	if err := f.markStarted(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	env := f.Env()
	go func() {
		defer cancel()
		code, err := f.run(ctx, env)
		if err != nil && f.isTerminating() && ctx.Err() != nil {
			err = nil
		}
		f.finish(code, err)
	}()
	return nil
}

func (f *Func) run(ctx context.Context, env map[string]string) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			code, err = 2, fmt.Errorf("%w: %s: %v", ErrPanic, f.name, r)
		}
	}()
	if err := f.fn(ctx, env); err != nil {
		return 1, fmt.Errorf("model %s: %w", f.name, err)
	}
	return 0, nil
}

// Terminate cancels the model context and returns at once. A function that
// ignores its context for longer than the stop timeout is abandoned and
// reported as exited.
func (f *Func) Terminate() {
	first, started := f.beginTerminate()
	if !started {
		f.finish(-1, nil)
		return
	}
	if !first {
		return
	}
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	go func() {
		if !f.Wait(f.stopTimeout) {
			f.logger.Warn("model ignored cancellation, abandoning", "model", f.name, "timeout", f.stopTimeout)
			f.finish(-1, nil)
		}
	}()
}
