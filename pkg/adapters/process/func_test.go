package process_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/conduit/pkg/adapters/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunc_ReceivesBindings(t *testing.T) {
	got := make(chan string, 1)
	f := process.NewFunc("echo", func(_ context.Context, env map[string]string) error {
		got <- env["CONDUIT_OUT"]
		return nil
	})
	f.SetEnv(map[string]string{"CONDUIT_OUT": "echo.out"})

	require.NoError(t, f.Start(context.Background()))
	require.True(t, f.Wait(time.Second))
	assert.Equal(t, "echo.out", <-got)
	assert.Equal(t, 0, f.ExitCode())
	assert.False(t, f.Errors())
}

func TestFunc_ErrorsAndPanics(t *testing.T) {
	boom := errors.New("boom")
	failing := process.NewFunc("failing", func(context.Context, map[string]string) error { return boom })
	require.NoError(t, failing.Start(context.Background()))
	require.True(t, failing.Wait(time.Second))
	assert.ErrorIs(t, failing.Err(), boom)
	assert.Equal(t, 1, failing.ExitCode())

	panicky := process.NewFunc("panicky", func(context.Context, map[string]string) error { panic("bad state") })
	require.NoError(t, panicky.Start(context.Background()))
	require.True(t, panicky.Wait(time.Second))
	assert.ErrorIs(t, panicky.Err(), process.ErrPanic)
	assert.True(t, panicky.Errors())
}

func TestFunc_TerminateCancelsContext(t *testing.T) {
	f := process.NewFunc("loop", func(ctx context.Context, _ map[string]string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, f.Start(context.Background()))
	assert.True(t, f.Alive())

	f.Terminate()
	f.Terminate()
	require.True(t, f.Wait(time.Second))
	assert.False(t, f.Alive())
	assert.False(t, f.Errors(), "a requested stop is not a model failure")
}

func TestFunc_StuckModelIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := process.NewFunc("stuck", func(context.Context, map[string]string) error {
		<-release
		return nil
	}, process.WithStopTimeout(50*time.Millisecond))
	require.NoError(t, f.Start(context.Background()))

	start := time.Now()
	f.Terminate()
	assert.True(t, f.Alive(), "terminate returns before the stop timeout")
	require.True(t, f.Wait(time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.False(t, f.Alive())
	assert.Equal(t, -1, f.ExitCode())
}

func TestFunc_SecondStartFails(t *testing.T) {
	f := process.NewFunc("once", func(context.Context, map[string]string) error { return nil })
	require.NoError(t, f.Start(context.Background()))
	assert.ErrorIs(t, f.Start(context.Background()), process.ErrAlreadyStarted)
	f.Wait(time.Second)
}
