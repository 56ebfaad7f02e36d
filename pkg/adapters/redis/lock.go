package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/conduit/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrLockAcquire is returned when the reader lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire reader lock")

	// ErrLockLost is returned by Recv once another reader took over the address.
	ErrLockLost = fmt.Errorf("%w: reader lock lost", ports.ErrClosed)
)

// releaseScript deletes the key only if we still own it.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// renewScript extends the lease only if we still own it.
const renewScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Locker implements ports.DistributedLocker using Redis SET NX PX.
type Locker struct {
	client   *backend.Client
	prefix   string
	interval time.Duration
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client:   client,
		prefix:   prefix,
		interval: 50 * time.Millisecond,
	}
}

// Key returns the Redis key guarding key.
func (l *Locker) Key(key string) string {
	return l.prefix + "lock:" + key
}

// Lock polls until the lock for key is acquired or ctx is done. The lease is
// renewed every third of ttl until the returned UnlockFunc runs.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lease, err := l.Hold(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lease.Release, nil
}

// Lease is a held lock. It is renewed in the background until Release.
type Lease struct {
	l       *Locker
	lockKey string
	token   string
	ttl     time.Duration

	stop     chan struct{}
	lost     chan struct{}
	stopOnce sync.Once
}

// Hold is Lock returning the Lease itself.
func (l *Locker) Hold(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{
		l:       l,
		lockKey: l.Key(key),
		token:   uuid.NewString(),
		ttl:     ttl,
		stop:    make(chan struct{}),
		lost:    make(chan struct{}),
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lease.lockKey, lease.token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrLockAcquire, err)
		}
		if ok {
			if ttl > 0 {
				go lease.renew()
			}
			return lease, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Lost is closed once another holder owns the key.
func (ls *Lease) Lost() <-chan struct{} { return ls.lost }

// Release stops the renewal and deletes the key if this lease still owns it.
func (ls *Lease) Release(ctx context.Context) error {
	ls.stopOnce.Do(func() { close(ls.stop) })
	return ls.l.client.Eval(ctx, releaseScript, []string{ls.lockKey}, ls.token).Err()
}

func (ls *Lease) renew() {
	ticker := time.NewTicker(max(ls.ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ls.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), ls.ttl)
		n, err := ls.l.client.Eval(ctx, renewScript, []string{ls.lockKey}, ls.token, ls.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case errors.Is(err, backend.ErrClosed):
			return
		case err == nil && n == 0:
			close(ls.lost)
			return
		}
	}
}
