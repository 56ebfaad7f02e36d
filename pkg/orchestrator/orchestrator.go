package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/adapters/process"
	"github.com/aretw0/conduit/pkg/graph"
	"github.com/aretw0/conduit/pkg/observability"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/relay"
	"github.com/aretw0/conduit/pkg/rpc"
)

var (
	// ErrInterrupted is returned by Wait when a second interrupt arrived within the grace window.
	ErrInterrupted = errors.New("run interrupted")
	// ErrNoRunner means a model has neither a command nor an in-process function.
	ErrNoRunner = errors.New("model has nothing to run")
	// ErrState means a lifecycle method was called out of order.
	ErrState = errors.New("orchestrator used out of order")
)

// killSlack is how long a killed model may take to be reaped.
const killSlack = time.Second

type phase int

const (
	phaseNew phase = iota
	phaseLoaded
	phaseStarted
	phaseClosed
)

// stoppable is what the orchestrator needs from relays, servers and clients alike.
type stoppable interface {
	GracefulStop(timeout time.Duration)
	Terminate()
}

// modelRecord ties a model to the relays its exit affects.
type modelRecord struct {
	name    string
	model   ports.Model
	owned   []*relay.Engine
	server  *rpc.Server
	clients []*rpc.Client
	count   rpc.ClientCount
	exited  bool
}

// Orchestrator runs one graph: it builds the transports and relays, launches the
// models and tears everything down as models exit.
type Orchestrator struct {
	graph        *graph.Graph
	logger       *slog.Logger
	translators  *graph.Translators
	transports   map[string]ports.Transport
	closers      []io.Closer
	models       map[string]ports.Model
	funcs        map[string]process.RunFunc
	interrupts   <-chan struct{}
	now          func() time.Time
	grace        time.Duration
	stopTimeout  time.Duration
	pollInterval time.Duration
	printer      *observability.Printer
	relayOpts    []relay.Option
	processOpts  []process.Option

	plan *graph.Plan

	mu      sync.Mutex
	phase   phase
	records []*modelRecord
	byName  map[string]*modelRecord
	relays  []*relay.Engine
	servers []*rpc.Server
	clients []*rpc.Client

	failed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New prepares an orchestrator for g. Nothing is created until Load.
func New(g *graph.Graph, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		graph:        g,
		logger:       logging.NewNop(),
		translators:  graph.DefaultTranslators(),
		transports:   make(map[string]ports.Transport),
		models:       make(map[string]ports.Model),
		funcs:        make(map[string]process.RunFunc),
		now:          time.Now,
		grace:        DefaultGrace,
		stopTimeout:  DefaultStopTimeout,
		pollInterval: DefaultPollInterval,
		printer:      observability.NewPrinter(os.Stdout),
		byName:       make(map[string]*modelRecord),
	}
	if g.Grace > 0 {
		o.grace = g.Grace
	}
	if g.StopTimeout > 0 {
		o.stopTimeout = g.StopTimeout
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan returns the resolved graph once Load succeeded.
func (o *Orchestrator) Plan() *graph.Plan { return o.plan }

// Failed reports whether any model reported an error.
func (o *Orchestrator) Failed() bool { return o.failed.Load() }

func (o *Orchestrator) advance(from, to phase) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != from {
		return false
	}
	o.phase = to
	return true
}

// Load validates the graph and creates every transport, model wrapper and relay,
// opening all endpoints. A configuration error aborts before any model starts.
func (o *Orchestrator) Load(ctx context.Context) error {
	if !o.advance(phaseNew, phaseLoaded) {
		return ErrState
	}
	plan, err := o.graph.Plan(o.translators)
	if err != nil {
		return fmt.Errorf("load %s: %w", o.graph.Name, err)
	}
	o.plan = plan

	steps := []func(context.Context) error{
		o.buildTransports,
		o.buildModels,
		o.buildConnections,
		o.buildServers,
		o.buildClients,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return fmt.Errorf("load %s: %w", o.graph.Name, err)
		}
	}
	o.logger.Info("graph loaded", "graph", o.graph.Name,
		"models", len(plan.Order), "relays", len(plan.Connections),
		"servers", len(plan.Servers), "clients", len(plan.Pairs))
	return nil
}

func (o *Orchestrator) buildModels(context.Context) error {
	for _, name := range o.plan.Order {
		m, _ := o.graph.Model(name)
		model, err := o.model(m)
		if err != nil {
			return err
		}
		rec := &modelRecord{name: name, model: model}
		o.mu.Lock()
		o.records = append(o.records, rec)
		o.byName[name] = rec
		o.mu.Unlock()
	}
	return nil
}

func (o *Orchestrator) model(m graph.Model) (ports.Model, error) {
	popts := append([]process.Option{
		process.WithLogger(o.logger),
		process.WithStopTimeout(o.stopTimeout),
	}, o.processOpts...)
	switch {
	case o.models[m.Name] != nil:
		return o.models[m.Name], nil
	case o.funcs[m.Name] != nil:
		return process.NewFunc(m.Name, o.funcs[m.Name], popts...), nil
	case m.Command != "":
		cfg := m.Process()
		if cfg.Dir == "" {
			cfg.Dir = o.graph.BaseDir
		}
		return process.NewExec(cfg, popts...), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRunner, m.Name)
}

func (o *Orchestrator) relayOptions(extra ...relay.Option) []relay.Option {
	opts := append([]relay.Option{relay.WithLogger(o.logger)}, extra...)
	return append(opts, o.relayOpts...)
}

func (o *Orchestrator) buildConnections(ctx context.Context) error {
	for _, c := range o.plan.Connections {
		in, err := o.endpoint(c.From, ports.Recv)
		if err != nil {
			return err
		}
		out, err := o.endpoint(c.To, ports.Send)
		if err != nil {
			return err
		}
		transform, _ := o.translators.Lookup(c.Translator)
		e := relay.New(c.Name, in, out, o.relayOptions(
			relay.WithTransform(transform),
			relay.WithExitHook(o.exitAction(c.OnExit)),
		)...)
		o.mu.Lock()
		o.relays = append(o.relays, e)
		if rec := o.byName[c.Owner]; rec != nil {
			rec.owned = append(rec.owned, e)
		}
		o.mu.Unlock()
		if err := e.Open(ctx); err != nil {
			return fmt.Errorf("relay %s: %w", c.Name, err)
		}
	}
	return nil
}

func (o *Orchestrator) buildServers(ctx context.Context) error {
	for _, sp := range o.plan.Servers {
		rec := o.byName[sp.Name]
		channel, err := o.endpoint(sp.Channel, ports.Recv)
		if err != nil {
			return err
		}
		input, err := o.endpoint(sp.Input, ports.Send)
		if err != nil {
			return err
		}
		output, err := o.endpoint(sp.Output, ports.Recv)
		if err != nil {
			return err
		}
		name := sp.Name
		srv := rpc.NewServer(rpc.ServerConfig{
			Name:      name,
			Channel:   channel,
			Input:     input,
			Output:    output,
			Responses: o.transports[sp.Channel.Transport],
			Clients:   &rec.count,
		},
			rpc.WithLogger(o.logger),
			rpc.WithRelayOptions(o.relayOpts...),
			rpc.WithZeroClientsHook(func() {
				o.logger.Info("server has no clients left", "server", name)
			}),
		)
		o.mu.Lock()
		o.servers = append(o.servers, srv)
		rec.server = srv
		o.mu.Unlock()
		if err := srv.Open(ctx); err != nil {
			return fmt.Errorf("server %s: %w", name, err)
		}
	}
	return nil
}

func (o *Orchestrator) buildClients(ctx context.Context) error {
	for _, pair := range o.plan.Pairs {
		rec := o.byName[pair.Client]
		var channel graph.Endpoint
		for _, sp := range o.plan.Servers {
			if sp.Name == pair.Server {
				channel = sp.Channel
			}
		}
		outbox, err := o.endpoint(pair.Outbox, ports.Recv)
		if err != nil {
			return err
		}
		send, err := o.endpoint(channel, ports.Send)
		if err != nil {
			return err
		}
		cl := rpc.NewClient(rpc.ClientConfig{
			Name:         graph.CallAddress(pair.Client, pair.Server),
			Outbox:       outbox,
			Channel:      send,
			Responses:    o.transports[pair.Responses],
			Inbox:        o.transports[pair.Inbox.Transport],
			InboxAddress: pair.Inbox.Address,
		},
			rpc.WithLogger(o.logger),
			rpc.WithRelayOptions(o.relayOpts...),
		)
		o.mu.Lock()
		o.clients = append(o.clients, cl)
		rec.clients = append(rec.clients, cl)
		o.mu.Unlock()
		if err := cl.Open(ctx); err != nil {
			return fmt.Errorf("client %s: %w", cl.Name(), err)
		}
	}
	return nil
}

// Start launches the relays and then the models in dependency order. A model
// that fails to start sets the error flag but does not stop the others.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.advance(phaseLoaded, phaseStarted) {
		return ErrState
	}
	for _, e := range o.relays {
		e.Start(ctx)
	}
	for _, s := range o.servers {
		s.Start(ctx)
	}
	for _, c := range o.clients {
		c.Start(ctx)
	}

	bindings := o.plan.Bindings()
	for _, rec := range o.records {
		env := make(map[string]string)
		for _, name := range o.plan.ModelTransports(rec.name) {
			maps.Copy(env, o.transports[name].Env())
		}
		maps.Copy(env, bindings[rec.name])
		rec.model.SetEnv(env)
		if err := rec.model.Start(ctx); err != nil {
			o.fail(rec.name, err)
			continue
		}
		o.logger.Info("model started", "model", rec.name)
	}
	o.releaseIdleServers()
	return nil
}

// releaseIdleServers ends the input of every server no client is bound to.
func (o *Orchestrator) releaseIdleServers() {
	idle := make(map[string]bool, len(o.plan.Servers))
	for _, sp := range o.plan.Servers {
		idle[sp.Name] = true
	}
	for _, pair := range o.plan.Pairs {
		delete(idle, pair.Server)
	}
	for _, s := range o.servers {
		if !idle[s.Name()] {
			continue
		}
		if err := s.Release(); err != nil {
			o.logger.Warn("release server without clients", "server", s.Name(), "err", err)
		}
	}
}

// Wait supervises the run until every model has exited. Each exit cascades to
// the relays that depend on the model. The first interrupt prints the status
// table; a second one within the grace window forces shutdown and returns
// ErrInterrupted. Cancelling ctx forces shutdown too.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	started := o.phase == phaseStarted
	o.mu.Unlock()
	if !started {
		return ErrState
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	policy := interruptPolicy{grace: o.grace, now: o.now}
	interrupts := o.interrupts
	for {
		if o.reap() {
			o.logger.Info("all models exited", "graph", o.graph.Name, "failed", o.Failed())
			return nil
		}
		select {
		case <-ctx.Done():
			o.logger.Warn("context done, forcing shutdown", "err", ctx.Err())
			o.Shutdown()
			return ctx.Err()
		case _, ok := <-interrupts:
			if !ok {
				interrupts = nil
				continue
			}
			if policy.shutdown() {
				o.logger.Warn("second interrupt, forcing shutdown")
				o.Shutdown()
				return ErrInterrupted
			}
			o.logger.Info("interrupt received, interrupt again to stop", "grace", o.grace)
			if err := o.printer.Print(o.Snapshot()); err != nil {
				o.logger.Warn("print status", "err", err)
			}
		case <-ticker.C:
		}
	}
}

// reap handles every model that exited since the last call and reports whether
// none is left running.
func (o *Orchestrator) reap() bool {
	done := true
	for _, rec := range o.records {
		if rec.exited {
			continue
		}
		if rec.model.Alive() {
			done = false
			continue
		}
		rec.exited = true
		o.cascade(rec)
	}
	return done
}

// cascade stops what depended on a model that just exited.
func (o *Orchestrator) cascade(rec *modelRecord) {
	if rec.model.Errors() {
		o.fail(rec.name, rec.model.Err())
	} else {
		o.logger.Info("model exited", "model", rec.name, "exit_code", rec.model.ExitCode())
	}
	for _, c := range rec.clients {
		o.stop(c)
	}
	if rec.server != nil {
		o.stop(rec.server)
	}
	for _, e := range rec.owned {
		e.OnExit()
	}
}

func (o *Orchestrator) fail(model string, err error) {
	o.failed.Store(true)
	o.logger.Error("model failed", "model", model, "err", err)
}

// stop drains s, or terminates it outright once any model has failed.
func (o *Orchestrator) stop(s stoppable) {
	if o.Failed() {
		s.Terminate()
		return
	}
	s.GracefulStop(o.stopTimeout)
}

// exitAction turns a channel's on_exit setting into a relay exit hook.
func (o *Orchestrator) exitAction(action string) relay.ExitHook {
	switch action {
	case graph.ExitDrain:
		return func(e *relay.Engine) { o.stop(e) }
	case graph.ExitTerminate:
		return func(e *relay.Engine) { e.Terminate() }
	}
	return func(*relay.Engine) {}
}

// Shutdown terminates every model and then every relay without draining.
func (o *Orchestrator) Shutdown() {
	o.terminateModels(o.records)
	for _, s := range o.stoppables() {
		s.Terminate()
	}
}

// terminateModels signals every model first, then waits for all of them
// together: the whole wait is bounded by one stop timeout plus killSlack.
func (o *Orchestrator) terminateModels(records []*modelRecord) {
	for _, rec := range records {
		rec.model.Terminate()
	}
	deadline := time.Now().Add(o.stopTimeout + killSlack)
	for _, rec := range records {
		if !rec.model.Wait(max(time.Until(deadline), time.Millisecond)) {
			o.logger.Warn("model still running after terminate", "model", rec.name)
		}
	}
}

// stoppables lists clients first so that their sign-offs reach the servers.
func (o *Orchestrator) stoppables() []stoppable {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]stoppable, 0, len(o.clients)+len(o.relays)+len(o.servers))
	for _, c := range o.clients {
		out = append(out, c)
	}
	for _, e := range o.relays {
		out = append(out, e)
	}
	for _, s := range o.servers {
		out = append(out, s)
	}
	return out
}

// Close stops whatever is still running, draining unless a model failed, and
// releases the transports. It is safe to call more than once and at any phase.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.phase = phaseClosed
		records := o.records
		o.mu.Unlock()

		var alive []*modelRecord
		for _, rec := range records {
			if rec.model.Alive() {
				alive = append(alive, rec)
			}
		}
		o.terminateModels(alive)
		for _, s := range o.stoppables() {
			o.stop(s)
		}
		var errs []error
		for _, c := range o.closers {
			errs = append(errs, c.Close())
		}
		o.closeErr = errors.Join(errs...)
	})
	return o.closeErr
}

// Run loads, starts and supervises the graph, then closes everything.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	defer func() {
		err = errors.Join(err, o.Close())
	}()
	if err := o.Load(ctx); err != nil {
		return err
	}
	if err := o.Start(ctx); err != nil {
		return err
	}
	return o.Wait(ctx)
}

// Snapshot reports every relay and model. It is safe to call from any goroutine.
func (o *Orchestrator) Snapshot() observability.Snapshot {
	o.mu.Lock()
	records := append([]*modelRecord(nil), o.records...)
	engines := append([]*relay.Engine(nil), o.relays...)
	for _, s := range o.servers {
		engines = append(engines, s.Request(), s.Response())
	}
	for _, c := range o.clients {
		engines = append(engines, c.Request())
	}
	o.mu.Unlock()

	snap := observability.Snapshot{Failed: o.Failed()}
	for _, e := range engines {
		snap.Relays = append(snap.Relays, e.Status())
	}
	for _, rec := range records {
		ms := observability.ModelStatus{
			Name:     rec.name,
			Alive:    rec.model.Alive(),
			ExitCode: rec.model.ExitCode(),
		}
		if err := rec.model.Err(); err != nil {
			ms.Error = err.Error()
		}
		snap.Models = append(snap.Models, ms)
	}
	return snap
}
