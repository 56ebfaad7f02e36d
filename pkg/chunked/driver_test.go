package chunked_test

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conduit/pkg/adapters/memory"
	"github.com/aretw0/conduit/pkg/chunked"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair returns a sending and a receiving driver over one bounded memory queue.
func pair(t *testing.T, cfg memory.Config, opts ...chunked.Option) (*chunked.Driver, *chunked.Driver, ports.Communicator) {
	t.Helper()
	tr := memory.NewTransport("", cfg)
	tx, err := tr.Open(ports.Send, "chunks")
	require.NoError(t, err)
	rx, err := tr.Open(ports.Recv, "chunks")
	require.NoError(t, err)

	sender := chunked.New(tx, nil, opts...)
	receiver := chunked.New(nil, rx, opts...)
	require.NoError(t, sender.Open(context.Background()))
	require.NoError(t, receiver.Open(context.Background()))
	t.Cleanup(func() {
		_ = sender.Close()
		_ = receiver.Close()
	})
	return sender, receiver, tx
}

func TestDriver_RoundTrip_AnyLength(t *testing.T) {
	const frameSize = 16
	sender, receiver, _ := pair(t, memory.Config{MaxFrameSize: frameSize})
	rng := rand.New(rand.NewSource(42))

	lengths := []int{1, frameSize - 1, frameSize, frameSize + 1, 2 * frameSize, 7*frameSize + 3, 1000}
	for i := 0; i < 20; i++ {
		lengths = append(lengths, 1+rng.Intn(500))
	}

	for _, n := range lengths {
		payload := make([]byte, n)
		rng.Read(payload)

		require.NoError(t, sender.Send(payload), "len=%d", n)
		got, err := receiver.Recv(time.Second)
		require.NoError(t, err, "len=%d", n)
		assert.True(t, bytes.Equal(payload, got), "len=%d", n)
	}
}

func TestDriver_FrameAccounting(t *testing.T) {
	const frameSize = 32
	sender, receiver, _ := pair(t, memory.Config{MaxFrameSize: frameSize})

	payload := bytes.Repeat([]byte("x"), 5*frameSize+17)
	require.NoError(t, sender.Send(payload))

	got, err := receiver.Recv(time.Second)
	require.NoError(t, err)
	assert.Len(t, got, 5*frameSize+17)

	// One length frame, five full payload frames, one partial frame.
	rs := receiver.Stats()
	assert.EqualValues(t, 7, rs.FramesReceived)
	assert.EqualValues(t, 1, rs.MessagesReceived)
	assert.EqualValues(t, 5*frameSize+17+len("177"), rs.BytesReceived)

	ss := sender.Stats()
	assert.EqualValues(t, 7, ss.FramesSent)
	assert.EqualValues(t, 1, ss.MessagesSent)
}

func TestDriver_NothingWaiting(t *testing.T) {
	_, receiver, _ := pair(t, memory.Config{MaxFrameSize: 8})

	msg, err := receiver.Recv(5 * time.Millisecond)
	assert.NoError(t, err)
	assert.Empty(t, msg)
}

func TestDriver_IncompleteMessage(t *testing.T) {
	_, receiver, raw := pair(t, memory.Config{MaxFrameSize: 10},
		chunked.WithFrameTimeout(time.Millisecond))

	// Declare 100 bytes, deliver 10.
	require.NoError(t, raw.Send([]byte("100")))
	require.NoError(t, raw.Send(bytes.Repeat([]byte("a"), 10)))

	_, err := receiver.Recv(time.Second)
	assert.ErrorIs(t, err, chunked.ErrIncomplete)
	assert.ErrorIs(t, err, ports.ErrDiscarded)
	assert.Contains(t, err.Error(), "received 10 of 100 bytes")

	// The channel is still usable afterwards.
	assert.True(t, receiver.IsOpen())
}

func TestDriver_BadLengthFrame(t *testing.T) {
	_, receiver, raw := pair(t, memory.Config{MaxFrameSize: 10})

	require.NoError(t, raw.Send([]byte("ten")))
	_, err := receiver.Recv(time.Second)
	assert.ErrorIs(t, err, chunked.ErrBadLength)
}

func TestDriver_SendIsAllOrNothing(t *testing.T) {
	// Room for the length frame and one payload frame only.
	sender, receiver, _ := pair(t, memory.Config{MaxFrameSize: 4, Capacity: 2})

	err := sender.Send([]byte("0123456789"))
	assert.ErrorIs(t, err, ports.ErrQueueFull)
	assert.EqualValues(t, 0, sender.Stats().MessagesSent)
	assert.EqualValues(t, 0, sender.Stats().FramesSent)
	assert.Equal(t, 0, receiver.Pending(), "a rejected message leaves no frames behind")
}

// frameAtATime hides SendBatch so the driver falls back to one Send per frame.
type frameAtATime struct {
	ports.Communicator
}

func TestDriver_SendAbortsOnFailedFrame(t *testing.T) {
	tr := memory.NewTransport("", memory.Config{MaxFrameSize: 4, Capacity: 2})
	tx, err := tr.Open(ports.Send, "frames")
	require.NoError(t, err)
	sender := chunked.New(frameAtATime{tx}, nil)
	require.NoError(t, sender.Open(context.Background()))

	err = sender.Send([]byte("0123456789"))
	assert.ErrorIs(t, err, ports.ErrQueueFull)
	assert.EqualValues(t, 0, sender.Stats().MessagesSent)
	assert.EqualValues(t, 2, sender.Stats().FramesSent)
}

func TestDriver_ConcurrentWritersOnOneAddress(t *testing.T) {
	const perWriter = 300
	tr := memory.NewTransport("", memory.Config{MaxFrameSize: 8})
	ctx := context.Background()

	rx, err := tr.Open(ports.Recv, "shared")
	require.NoError(t, err)
	receiver := chunked.New(nil, rx)
	require.NoError(t, receiver.Open(ctx))
	defer receiver.Close()

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		tx, err := tr.Open(ports.Send, "shared")
		require.NoError(t, err)
		sender := chunked.New(tx, nil)
		require.NoError(t, sender.Open(ctx))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, sender.Send([]byte(fmt.Sprintf("writer-%d-message-%d", w, i))))
			}
		}()
	}
	wg.Wait()

	got := make(map[string]bool)
	for i := 0; i < 2*perWriter; i++ {
		msg, err := receiver.Recv(time.Second)
		require.NoError(t, err, "message %d", i)
		got[string(msg)] = true
	}
	assert.Len(t, got, 2*perWriter)
	assert.Equal(t, 0, receiver.Pending())
}

func TestDriver_ClosedFailsImmediately(t *testing.T) {
	sender, receiver, _ := pair(t, memory.Config{MaxFrameSize: 4})
	require.NoError(t, sender.Close())
	require.NoError(t, receiver.Close())
	require.NoError(t, receiver.Close())

	start := time.Now()
	_, err := receiver.RecvWait(0)
	assert.ErrorIs(t, err, ports.ErrClosed)
	assert.ErrorIs(t, sender.Send([]byte("x")), ports.ErrClosed)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDriver_RecvWait(t *testing.T) {
	sender, receiver, _ := pair(t, memory.Config{MaxFrameSize: 4},
		chunked.WithPollInterval(2*time.Millisecond))

	_, err := receiver.RecvWait(20 * time.Millisecond)
	assert.ErrorIs(t, err, chunked.ErrTimeout)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = sender.Send([]byte("late message"))
	}()
	msg, err := receiver.RecvWait(0)
	require.NoError(t, err)
	assert.Equal(t, "late message", string(msg))
}

func TestRetryBudget(t *testing.T) {
	assert.Equal(t, 6+5, chunked.RetryBudget(5*32+17, 32, chunked.DefaultRetrySlack))
	assert.Equal(t, 1+5, chunked.RetryBudget(32, 32, chunked.DefaultRetrySlack))
	assert.Equal(t, 1, chunked.RetryBudget(10, 0, 0))
}

func TestWrap(t *testing.T) {
	bounded := memory.NewTransport("", memory.Config{MaxFrameSize: 8})
	unbounded := memory.NewTransport("", memory.Config{})

	c, _ := bounded.Open(ports.Recv, "a")
	wrapped := chunked.Wrap(c)
	assert.IsType(t, &chunked.Driver{}, wrapped)
	assert.Equal(t, 0, wrapped.MaxFrameSize())
	assert.Equal(t, ports.Recv, wrapped.Direction())

	u, _ := unbounded.Open(ports.Send, "b")
	assert.Same(t, u, chunked.Wrap(u))
}
