package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/conduit/pkg/adapters/memory"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransport_Contract(t *testing.T) {
	tests.TransportContractTest(t, memory.NewTransport("", memory.Config{MaxFrameSize: 64}))
}

func TestMemoryTransport_Unbounded_Contract(t *testing.T) {
	tests.TransportContractTest(t, memory.NewTransport("mem", memory.Config{}))
}

func TestMemoryComm_RecvWakesOnSend(t *testing.T) {
	tr := memory.NewTransport("", memory.Config{})
	ctx := context.Background()

	tx, _ := tr.Open(ports.Send, "wake")
	rx, _ := tr.Open(ports.Recv, "wake")
	require.NoError(t, tx.Open(ctx))
	require.NoError(t, rx.Open(ctx))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = tx.Send([]byte("hello"))
	}()

	start := time.Now()
	msg, err := rx.Recv(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMemoryComm_Capacity(t *testing.T) {
	tr := memory.NewTransport("", memory.Config{Capacity: 1})
	ctx := context.Background()

	tx, _ := tr.Open(ports.Send, "cap")
	require.NoError(t, tx.Open(ctx))
	require.NoError(t, tx.Send([]byte("a")))
	assert.ErrorIs(t, tx.Send([]byte("b")), ports.ErrQueueFull)
}

func TestMemoryComm_SendToClosedReader(t *testing.T) {
	tr := memory.NewTransport("", memory.Config{})
	ctx := context.Background()

	tx, _ := tr.Open(ports.Send, "gone")
	rx, _ := tr.Open(ports.Recv, "gone")
	require.NoError(t, tx.Open(ctx))
	require.NoError(t, rx.Open(ctx))
	require.NoError(t, rx.Close())

	assert.ErrorIs(t, tx.Send([]byte("late")), ports.ErrClosed)
}

func TestMemoryComm_NotOpen(t *testing.T) {
	tr := memory.NewTransport("", memory.Config{})
	tx, _ := tr.Open(ports.Send, "idle")
	assert.ErrorIs(t, tx.Send([]byte("x")), ports.ErrNotOpen)
	assert.False(t, tx.IsOpen())
}
