package ports

import (
	"context"
	"time"
)

// Model is a running participant of the graph: an OS process or an in-process function.
type Model interface {
	Name() string
	// SetEnv merges bindings into the environment the model will start with.
	SetEnv(env map[string]string)
	Start(ctx context.Context) error
	Alive() bool
	// Wait blocks until the model exits or timeout elapses (zero waits forever)
	// and reports whether it exited.
	Wait(timeout time.Duration) bool
	ExitCode() int
	// Errors reports a start failure, a non-zero exit or an internal error.
	Errors() bool
	Err() error
	// Terminate asks the model to stop and returns without waiting. It is idempotent.
	Terminate()
}
