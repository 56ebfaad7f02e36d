package orchestrator_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conduit/pkg/adapters/memory"
	"github.com/aretw0/conduit/pkg/adapters/process"
	"github.com/aretw0/conduit/pkg/graph"
	"github.com/aretw0/conduit/pkg/orchestrator"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// fast keeps every loop in the tests responsive.
func fast(tr ports.Transport, extra ...orchestrator.Option) []orchestrator.Option {
	return append([]orchestrator.Option{
		orchestrator.WithTransport(graph.TransportMemory, tr),
		orchestrator.WithPollInterval(5 * time.Millisecond),
		orchestrator.WithStopTimeout(time.Second),
		orchestrator.WithRelayOptions(relay.WithPollInterval(5 * time.Millisecond)),
		orchestrator.WithStatusWriter(&bytes.Buffer{}),
	}, extra...)
}

func openEnd(ctx context.Context, tr ports.Transport, dir ports.Direction, addr string) (ports.Communicator, error) {
	c, err := tr.Open(dir, addr)
	if err != nil {
		return nil, err
	}
	return c, c.Open(ctx)
}

// pipe copies the queue bound to in onto the queue bound to out, end-of-stream included.
func pipe(tr ports.Transport, in, out string) process.RunFunc {
	return func(ctx context.Context, env map[string]string) error {
		src, err := openEnd(ctx, tr, ports.Recv, env[in])
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := openEnd(ctx, tr, ports.Send, env[out])
		if err != nil {
			return err
		}
		defer dst.Close()
		for {
			msg, err := src.Recv(tick)
			if err != nil {
				return err
			}
			if len(msg) == 0 {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			if err := dst.Send(msg); err != nil {
				return err
			}
			if ports.IsEOF(src, msg) {
				return nil
			}
		}
	}
}

// idle runs until stopped.
func idle(ctx context.Context, _ map[string]string) error {
	<-ctx.Done()
	return nil
}

func TestRun_FilePipeline(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("hello\nworld\n"), 0o644))

	g := &graph.Graph{
		Name:    "pipeline",
		BaseDir: dir,
		Models: []graph.Model{
			{
				Name:    "shout",
				Inputs:  []graph.Channel{{Name: "text", File: "in.txt"}},
				Outputs: []graph.Channel{{Name: "text", To: "sink.text", Translator: "upper"}},
			},
			{
				Name:    "sink",
				Inputs:  []graph.Channel{{Name: "text"}},
				Outputs: []graph.Channel{{Name: "text", File: "out.txt"}},
			},
		},
	}

	var mu sync.Mutex
	seen := map[string]map[string]string{}
	record := func(name string, fn process.RunFunc) process.RunFunc {
		return func(ctx context.Context, env map[string]string) error {
			mu.Lock()
			seen[name] = env
			mu.Unlock()
			return fn(ctx, env)
		}
	}

	tr := memory.NewTransport("", memory.Config{})
	o := orchestrator.New(g, fast(tr,
		orchestrator.WithModelFunc("shout", record("shout", pipe(tr, "CONDUIT_IN_TEXT", "CONDUIT_OUT_TEXT"))),
		orchestrator.WithModelFunc("sink", record("sink", pipe(tr, "CONDUIT_IN_TEXT", "CONDUIT_OUT_TEXT"))),
	)...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, o.Run(ctx))
	assert.False(t, o.Failed())

	out, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO\nWORLD\n", string(out))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "shout", seen["shout"]["CONDUIT_MODEL"])
	assert.Equal(t, "shout.in.text", seen["shout"]["CONDUIT_IN_TEXT"])
	assert.Equal(t, "shout.out.text", seen["shout"]["CONDUIT_OUT_TEXT"])
	assert.Equal(t, "memory", seen["shout"]["CONDUIT_OUT_TEXT_TRANSPORT"])
	assert.Equal(t, "sink.in.text", seen["sink"]["CONDUIT_IN_TEXT"])
}

// adder answers "a b" with the sum until its input ends.
func adder(tr ports.Transport) process.RunFunc {
	return func(ctx context.Context, env map[string]string) error {
		in, err := openEnd(ctx, tr, ports.Recv, env["CONDUIT_RPC_IN"])
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := openEnd(ctx, tr, ports.Send, env["CONDUIT_RPC_OUT"])
		if err != nil {
			return err
		}
		defer out.Close()
		for {
			msg, err := in.Recv(tick)
			if err != nil {
				return err
			}
			switch {
			case len(msg) == 0:
				if ctx.Err() != nil {
					return nil
				}
				continue
			case ports.IsEOF(in, msg):
				return nil
			}
			var a, b int
			if _, err := fmt.Sscan(string(msg), &a, &b); err != nil {
				return err
			}
			if err := out.Send([]byte(strconv.Itoa(a + b))); err != nil {
				return err
			}
		}
	}
}

// asker makes one call, keeps the reply and signs off.
func asker(tr ports.Transport, reply chan<- string) process.RunFunc {
	return func(ctx context.Context, env map[string]string) error {
		call, err := openEnd(ctx, tr, ports.Send, env["CONDUIT_CALL_CALC"])
		if err != nil {
			return err
		}
		defer call.Close()
		inbox, err := openEnd(ctx, tr, ports.Recv, env["CONDUIT_REPLY_CALC"])
		if err != nil {
			return err
		}
		defer inbox.Close()

		if err := call.Send([]byte("1 2")); err != nil {
			return err
		}
		deadline := time.Now().Add(waitFor)
		for time.Now().Before(deadline) {
			msg, err := inbox.Recv(tick)
			if err != nil {
				return err
			}
			if len(msg) > 0 {
				reply <- string(msg)
				return call.Send(call.EOF())
			}
		}
		return errors.New("no reply")
	}
}

func TestRun_RPCServerStopsAfterLastClient(t *testing.T) {
	g := &graph.Graph{
		Name: "rpc",
		Models: []graph.Model{
			{Name: "calc", Server: true},
			{Name: "asker", ClientOf: []string{"calc"}},
		},
	}
	tr := memory.NewTransport("", memory.Config{})
	reply := make(chan string, 1)
	o := orchestrator.New(g, fast(tr,
		orchestrator.WithModelFunc("calc", adder(tr)),
		orchestrator.WithModelFunc("asker", asker(tr, reply)),
	)...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, o.Run(ctx))
	assert.False(t, o.Failed())
	assert.Equal(t, "3", <-reply)

	snap := o.Snapshot()
	require.Len(t, snap.Models, 2)
	for _, m := range snap.Models {
		assert.False(t, m.Alive, m.Name)
		assert.Equal(t, 0, m.ExitCode, m.Name)
	}
	for _, r := range snap.Relays {
		assert.Equal(t, relay.StateClosed, r.State, r.Name)
	}
}

func TestRun_ModelErrorSetsFlag(t *testing.T) {
	g := &graph.Graph{
		Name: "failing",
		Models: []graph.Model{
			{Name: "broken", Outputs: []graph.Channel{{Name: "out", To: "waiter.in"}}},
			{Name: "waiter", Inputs: []graph.Channel{{Name: "in"}}},
		},
	}
	tr := memory.NewTransport("", memory.Config{})
	o := orchestrator.New(g, fast(tr,
		orchestrator.WithModelFunc("broken", func(context.Context, map[string]string) error {
			return errors.New("boom")
		}),
		orchestrator.WithModelFunc("waiter", idle),
	)...)

	require.NoError(t, o.Load(context.Background()))
	require.NoError(t, o.Start(context.Background()))

	// The waiter never stops on its own, so only the deadline ends the run.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := o.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, o.Failed())
	require.NoError(t, o.Close())

	snap := o.Snapshot()
	assert.True(t, snap.Failed)
	for _, m := range snap.Models {
		if m.Name == "broken" {
			assert.Equal(t, 1, m.ExitCode)
			assert.Contains(t, m.Error, "boom")
		}
	}
}

func TestRun_ServerWithoutClientsFinishes(t *testing.T) {
	g := &graph.Graph{
		Name:   "lonely",
		Models: []graph.Model{{Name: "calc", Server: true}},
	}
	tr := memory.NewTransport("", memory.Config{})
	o := orchestrator.New(g, fast(tr, orchestrator.WithModelFunc("calc", adder(tr)))...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Run(ctx))
	assert.False(t, o.Failed())
	for _, m := range o.Snapshot().Models {
		assert.False(t, m.Alive, m.Name)
		assert.Equal(t, 0, m.ExitCode, m.Name)
	}
}

func TestCascade_FailureTerminatesInsteadOfDraining(t *testing.T) {
	g := &graph.Graph{
		Name: "no-drain",
		Models: []graph.Model{
			{Name: "broken", Outputs: []graph.Channel{{Name: "out", To: "waiter.in", Translator: "hold", OnExit: graph.ExitDrain}}},
			{Name: "waiter", Inputs: []graph.Channel{{Name: "in"}}},
		},
	}
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	hold := func(msg []byte) ([]byte, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
		return msg, nil
	}

	tr := memory.NewTransport("", memory.Config{})
	broken := func(ctx context.Context, env map[string]string) error {
		out, err := openEnd(ctx, tr, ports.Send, env["CONDUIT_OUT_OUT"])
		if err != nil {
			return err
		}
		defer out.Close()
		for i := 0; i < 5; i++ {
			if err := out.Send([]byte(fmt.Sprintf("m%d", i))); err != nil {
				return err
			}
		}
		select {
		case <-entered:
		case <-time.After(waitFor):
		}
		return errors.New("boom")
	}
	o := orchestrator.New(g, fast(tr,
		orchestrator.WithTranslator("hold", hold),
		orchestrator.WithModelFunc("broken", broken),
		orchestrator.WithModelFunc("waiter", idle),
		// A drain would block the cascade for this long.
		orchestrator.WithStopTimeout(time.Minute),
	)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Load(ctx))
	require.NoError(t, o.Start(ctx))
	errCh := make(chan error, 1)
	go func() { errCh <- o.Wait(ctx) }()

	status := func() relay.Status {
		for _, r := range o.Snapshot().Relays {
			if r.Name == "broken.out->waiter.in" {
				return r
			}
		}
		return relay.Status{}
	}
	require.Eventually(t, func() bool {
		return o.Failed() && status().State == relay.StateClosed
	}, waitFor, tick, "the relay must close while its transform is still holding a message")

	held := status()
	close(gate)
	assert.EqualValues(t, 1, held.Received, "only the held message left the input")
	assert.Zero(t, held.Sent)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	require.NoError(t, o.Close())
	assert.Zero(t, status().Sent, "nothing is forwarded after a forced stop")
}

func TestShutdown_WaitsForModelsTogether(t *testing.T) {
	const stop = 400 * time.Millisecond
	release := make(chan struct{})
	defer close(release)
	stuck := func(context.Context, map[string]string) error {
		<-release
		return nil
	}

	g := &graph.Graph{Name: "stuck", Models: []graph.Model{{Name: "a"}, {Name: "b"}, {Name: "c"}}}
	tr := memory.NewTransport("", memory.Config{})
	o := orchestrator.New(g, fast(tr,
		orchestrator.WithModelFunc("a", stuck),
		orchestrator.WithModelFunc("b", stuck),
		orchestrator.WithModelFunc("c", stuck),
		orchestrator.WithStopTimeout(stop),
	)...)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, o.Load(ctx))
	require.NoError(t, o.Start(ctx))
	cancel()

	start := time.Now()
	require.ErrorIs(t, o.Wait(ctx), context.Canceled)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, stop)
	assert.Less(t, elapsed, 3*stop, "models are waited for together, not one after another")
	for _, m := range o.Snapshot().Models {
		assert.False(t, m.Alive, m.Name)
	}
	require.NoError(t, o.Close())
}

func TestWait_ExitActionTerminatesOwnedRelay(t *testing.T) {
	g := &graph.Graph{
		Name: "exit",
		Models: []graph.Model{
			{Name: "quick", Outputs: []graph.Channel{{Name: "out", To: "slow.in", OnExit: graph.ExitTerminate}}},
			{Name: "slow", Inputs: []graph.Channel{{Name: "in"}}},
		},
	}
	tr := memory.NewTransport("", memory.Config{})
	o := orchestrator.New(g, fast(tr,
		orchestrator.WithModelFunc("quick", func(context.Context, map[string]string) error { return nil }),
		orchestrator.WithModelFunc("slow", idle),
	)...)
	require.NoError(t, o.Load(context.Background()))
	require.NoError(t, o.Start(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- o.Wait(ctx) }()

	require.Eventually(t, func() bool {
		for _, r := range o.Snapshot().Relays {
			if r.Name == "quick.out->slow.in" {
				return r.State == relay.StateClosed
			}
		}
		return false
	}, waitFor, tick)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	require.NoError(t, o.Close())
	assert.False(t, o.Failed())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWait_InterruptTwiceWithinGraceStops(t *testing.T) {
	g := &graph.Graph{
		Name:  "interrupts",
		Grace: 5 * time.Second,
		Models: []graph.Model{
			{Name: "a", Outputs: []graph.Channel{{Name: "out", To: "b.in"}}},
			{Name: "b", Inputs: []graph.Channel{{Name: "in"}}},
		},
	}
	tr := memory.NewTransport("", memory.Config{})
	clock := &fakeClock{now: time.Unix(1000, 0)}
	status := &lockedBuffer{}
	interrupts := make(chan struct{})
	o := orchestrator.New(g, fast(tr,
		orchestrator.WithModelFunc("a", idle),
		orchestrator.WithModelFunc("b", idle),
		orchestrator.WithClock(clock.Now),
		orchestrator.WithInterrupts(interrupts),
		orchestrator.WithStatusWriter(status),
	)...)

	ctx := context.Background()
	require.NoError(t, o.Load(ctx))
	require.NoError(t, o.Start(ctx))
	errCh := make(chan error, 1)
	go func() { errCh <- o.Wait(ctx) }()

	tables := func() int { return strings.Count(status.String(), " relays, ") }

	interrupts <- struct{}{}
	require.Eventually(t, func() bool { return tables() == 1 }, waitFor, tick)

	// Ten seconds later the next interrupt is a fresh status request.
	clock.Advance(10 * time.Second)
	interrupts <- struct{}{}
	require.Eventually(t, func() bool { return tables() == 2 }, waitFor, tick)
	for _, m := range o.Snapshot().Models {
		assert.True(t, m.Alive, m.Name)
	}

	clock.Advance(time.Second)
	interrupts <- struct{}{}
	require.ErrorIs(t, <-errCh, orchestrator.ErrInterrupted)
	assert.Equal(t, 2, tables())

	snap := o.Snapshot()
	for _, m := range snap.Models {
		assert.False(t, m.Alive, m.Name)
	}
	for _, r := range snap.Relays {
		assert.Equal(t, relay.StateClosed, r.State, r.Name)
	}
	require.NoError(t, o.Close())
}

func TestLoad_ConfigErrorStartsNothing(t *testing.T) {
	g := &graph.Graph{
		Name: "bad",
		Models: []graph.Model{
			{Name: "a", Outputs: []graph.Channel{{Name: "out", To: "ghost.in"}}},
		},
	}
	model := process.NewFunc("a", idle)
	o := orchestrator.New(g, orchestrator.WithModel("a", model))

	err := o.Run(context.Background())
	require.ErrorIs(t, err, graph.ErrUnknownModel)
	assert.False(t, model.Alive())
	assert.False(t, model.Wait(20*time.Millisecond))
}

func TestLoad_ModelWithoutRunner(t *testing.T) {
	g := &graph.Graph{Name: "empty", Models: []graph.Model{{Name: "nothing"}}}
	o := orchestrator.New(g)
	err := o.Load(context.Background())
	require.ErrorIs(t, err, orchestrator.ErrNoRunner)
	require.NoError(t, o.Close())
}

func TestLifecycle_OutOfOrder(t *testing.T) {
	g := &graph.Graph{Name: "order", Models: []graph.Model{{Name: "m"}}}
	o := orchestrator.New(g, orchestrator.WithModelFunc("m", idle))
	ctx := context.Background()

	assert.ErrorIs(t, o.Start(ctx), orchestrator.ErrState)
	assert.ErrorIs(t, o.Wait(ctx), orchestrator.ErrState)
	require.NoError(t, o.Load(ctx))
	assert.ErrorIs(t, o.Load(ctx), orchestrator.ErrState)
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
}
