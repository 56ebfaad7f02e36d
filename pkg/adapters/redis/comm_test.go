package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/conduit/pkg/adapters/redis"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTransport_Contract(t *testing.T) {
	_, client := newClient(t)
	tests.TransportContractTest(t, redis.NewFromClient(client, redis.Config{MaxFrameSize: 128}))
}

func TestRedisTransport_ListLayout(t *testing.T) {
	mr, client := newClient(t)
	tr := redis.NewFromClient(client, redis.Config{Prefix: "yg:"})
	ctx := context.Background()

	tx, err := tr.Open(ports.Send, "model.out")
	require.NoError(t, err)
	require.NoError(t, tx.Open(ctx))
	require.NoError(t, tx.Send([]byte("payload")))

	items, err := mr.List("yg:queue:model.out")
	require.NoError(t, err)
	assert.Equal(t, []string{"payload"}, items)
}

func TestRedisTransport_SingleReaderPerAddress(t *testing.T) {
	mr, client := newClient(t)
	tr := redis.NewFromClient(client, redis.Config{})

	first, _ := tr.Open(ports.Recv, "exclusive")
	second, _ := tr.Open(ports.Recv, "exclusive")

	require.NoError(t, first.Open(context.Background()))
	assert.True(t, mr.Exists(tr.Locker().Key("exclusive")))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.Error(t, second.Open(ctx), "A second reader must not open while the first holds the address")
	assert.False(t, second.IsOpen())

	require.NoError(t, first.Close())
	require.NoError(t, second.Open(context.Background()))
	assert.NoError(t, second.Close())
}

func TestRedisTransport_Env(t *testing.T) {
	mr, client := newClient(t)
	tr := redis.NewFromClient(client, redis.Config{DB: 0, MaxFrameSize: 64}, redis.WithName("shared"))

	env := tr.Env()
	assert.Equal(t, "redis", env["CONDUIT_TRANSPORT_SHARED_TYPE"])
	assert.Equal(t, mr.Addr(), env["CONDUIT_TRANSPORT_SHARED_ADDR"])
	assert.Equal(t, "0", env["CONDUIT_TRANSPORT_SHARED_DB"])
	assert.Equal(t, "conduit:", env["CONDUIT_TRANSPORT_SHARED_PREFIX"])
	assert.NotContains(t, env, "CONDUIT_TRANSPORT_SHARED_PASSWORD")

	cfg, err := redis.ConfigFromEnv("shared", env)
	require.NoError(t, err)
	assert.Equal(t, mr.Addr(), cfg.Addr)
	assert.Equal(t, "conduit:", cfg.Prefix)
	assert.Equal(t, 64, cfg.MaxFrameSize)

	_, err = redis.ConfigFromEnv("other", env)
	assert.Error(t, err)

	env["CONDUIT_TRANSPORT_SHARED_DB"] = "zero"
	_, err = redis.ConfigFromEnv("shared", env)
	assert.Error(t, err)
}

func TestRedisComm_ReaderStopsAfterTakeover(t *testing.T) {
	mr, client := newClient(t)
	tr := redis.NewFromClient(client, redis.Config{LockTTL: 300 * time.Millisecond})
	ctx := context.Background()

	first, _ := tr.Open(ports.Recv, "m.in")
	require.NoError(t, first.Open(ctx))
	defer first.Close()

	// The lease expires on the server before it could be renewed.
	mr.FastForward(time.Second)
	second, _ := tr.Open(ports.Recv, "m.in")
	require.NoError(t, second.Open(ctx))
	defer second.Close()

	require.Eventually(t, func() bool {
		_, err := first.Recv(0)
		return errors.Is(err, redis.ErrLockLost)
	}, 2*time.Second, 10*time.Millisecond)
	_, err := first.Recv(0)
	assert.ErrorIs(t, err, ports.ErrClosed)

	msg, err := second.Recv(0)
	assert.NoError(t, err, "the new reader keeps the address")
	assert.Empty(t, msg)
}

func TestRedisComm_ResponseAddressCleanup(t *testing.T) {
	mr, client := newClient(t)
	tr := redis.NewFromClient(client, redis.Config{ResponseTTL: 30 * time.Second})
	ctx := context.Background()
	address := ports.ResponsePrefix + "abc"
	key := tr.Key(address)

	rx, _ := tr.Open(ports.Recv, address)
	tx, _ := tr.Open(ports.Send, address)
	require.NoError(t, rx.Open(ctx))
	require.NoError(t, tx.Open(ctx))

	require.NoError(t, tx.Send([]byte("unread")))
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	// Closing the reader drops what it never read.
	require.NoError(t, rx.Close())
	assert.False(t, mr.Exists(key))

	// A reply arriving afterwards expires instead of lingering.
	require.NoError(t, tx.Send([]byte("late")))
	require.True(t, mr.Exists(key))
	mr.FastForward(31 * time.Second)
	assert.False(t, mr.Exists(key))
}

func TestRedisComm_OrdinaryAddressesKeepFrames(t *testing.T) {
	mr, client := newClient(t)
	tr := redis.NewFromClient(client, redis.Config{})
	ctx := context.Background()

	rx, _ := tr.Open(ports.Recv, "model.in")
	tx, _ := tr.Open(ports.Send, "model.in")
	require.NoError(t, rx.Open(ctx))
	require.NoError(t, tx.Open(ctx))
	require.NoError(t, tx.Send([]byte("kept")))
	require.NoError(t, rx.Close())

	assert.True(t, mr.Exists(tr.Key("model.in")))
	assert.Zero(t, mr.TTL(tr.Key("model.in")))
}

func TestRedisComm_SendBatchIsOnePush(t *testing.T) {
	mr, client := newClient(t)
	tr := redis.NewFromClient(client, redis.Config{MaxFrameSize: 4})
	ctx := context.Background()

	tx, _ := tr.Open(ports.Send, "batch")
	require.NoError(t, tx.Open(ctx))
	batch, ok := tx.(ports.BatchSender)
	require.True(t, ok)

	require.NoError(t, batch.SendBatch([][]byte{[]byte("3"), []byte("abc")}))
	assert.ErrorIs(t, batch.SendBatch([][]byte{[]byte("5"), []byte("abcde")}), ports.ErrFrameTooLarge)

	items, err := mr.List(tr.Key("batch"))
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "abc"}, items, "a rejected batch writes nothing")
}
