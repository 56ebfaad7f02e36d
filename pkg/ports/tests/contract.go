package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/conduit/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TransportContractTest is a reusable suite that verifies a queue-like adapter complies
// with ports.Transport and the Communicator Recv/Send contract.
func TransportContractTest(t *testing.T, transport ports.Transport) {
	t.Helper()
	ctx := context.Background()
	seq := 0
	address := func() string {
		seq++
		return fmt.Sprintf("contract.%s.%d.%d", transport.Name(), time.Now().UnixNano(), seq)
	}

	pair := func(t *testing.T) (ports.Communicator, ports.Communicator) {
		addr := address()
		tx, err := transport.Open(ports.Send, addr)
		require.NoError(t, err)
		rx, err := transport.Open(ports.Recv, addr)
		require.NoError(t, err)
		require.NoError(t, tx.Open(ctx))
		require.NoError(t, rx.Open(ctx))
		t.Cleanup(func() {
			_ = tx.Close()
			_ = rx.Close()
		})
		return tx, rx
	}

	t.Run("Endpoints_Report_Direction", func(t *testing.T) {
		tx, rx := pair(t)
		assert.Equal(t, ports.Send, tx.Direction())
		assert.Equal(t, ports.Recv, rx.Direction())
		assert.Equal(t, tx.Address(), rx.Address())
		assert.True(t, tx.IsOpen())
		assert.True(t, rx.IsOpen())
	})

	t.Run("Empty_Recv_Is_Not_An_Error", func(t *testing.T) {
		_, rx := pair(t)
		msg, err := rx.Recv(10 * time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, msg)
	})

	t.Run("FIFO_Order_And_Pending", func(t *testing.T) {
		tx, rx := pair(t)
		for _, m := range []string{"m1", "m2", "m3"} {
			require.NoError(t, tx.Send([]byte(m)))
		}
		assert.Equal(t, 3, rx.Pending())

		for _, want := range []string{"m1", "m2", "m3"} {
			got, err := rx.Recv(time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, string(got))
		}
		assert.Equal(t, 0, rx.Pending())
	})

	t.Run("Frame_Limit", func(t *testing.T) {
		tx, _ := pair(t)
		limit := tx.MaxFrameSize()
		if limit == 0 {
			t.Skip("transport is unbounded")
		}
		assert.NoError(t, tx.Send(make([]byte, limit)))
		assert.ErrorIs(t, tx.Send(make([]byte, limit+1)), ports.ErrFrameTooLarge)
	})

	t.Run("Closed_Endpoint_Fails_Fast", func(t *testing.T) {
		tx, rx := pair(t)
		require.NoError(t, rx.Close())
		require.NoError(t, rx.Close(), "Close must be idempotent")

		start := time.Now()
		_, err := rx.Recv(time.Second)
		assert.ErrorIs(t, err, ports.ErrClosed)
		assert.Less(t, time.Since(start), 500*time.Millisecond)

		require.NoError(t, tx.Close())
		assert.ErrorIs(t, tx.Send([]byte("late")), ports.ErrClosed)
	})

	t.Run("Wrong_Direction", func(t *testing.T) {
		tx, rx := pair(t)
		assert.ErrorIs(t, rx.Send([]byte("x")), ports.ErrWrongDirection)
		_, err := tx.Recv(0)
		assert.ErrorIs(t, err, ports.ErrWrongDirection)
	})
}
