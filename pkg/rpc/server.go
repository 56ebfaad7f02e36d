package rpc

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/conduit/pkg/chunked"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/relay"
)

// ServerConfig wires the server side of an RPC pair.
type ServerConfig struct {
	Name string
	// Channel is the shared request channel every client writes to (recv endpoint).
	Channel ports.Communicator
	// Input is the local model's request input (send endpoint).
	Input ports.Communicator
	// Output is where the local model writes its replies (recv endpoint).
	Output ports.Communicator
	// Responses hosts the clients' ephemeral response addresses.
	Responses ports.Transport
	// Clients is shared with the orchestrator's model record. Optional.
	Clients *ClientCount
}

// Server delivers calls to its model and routes each reply back to the caller.
// Replies are matched to calls in arrival order: the model must answer every
// call, in the order received.
type Server struct {
	cfg      ServerConfig
	opts     options
	logger   *slog.Logger
	clients  *ClientCount
	arena    *Arena
	request  *relay.Engine
	response *relay.Engine
	ctx      context.Context
}

// NewServer builds the request and response relays of a server.
func NewServer(cfg ServerConfig, opts ...Option) *Server {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	clients := cfg.Clients
	if clients == nil {
		clients = &ClientCount{}
	}
	s := &Server{
		cfg:     cfg,
		opts:    o,
		logger:  o.logger,
		clients: clients,
		arena:   NewArena(),
		ctx:     context.Background(),
	}

	base := append([]relay.Option{relay.WithLogger(o.logger)}, o.relayOpts...)
	s.request = relay.New(cfg.Name+".request", cfg.Channel, cfg.Input,
		append(base, relay.WithTransform(s.deliver))...)
	s.response = relay.New(cfg.Name+".response", cfg.Output, &dispatcher{s: s, eof: cfg.Output.EOF()}, base...)
	return s
}

func (s *Server) Name() string            { return s.cfg.Name }
func (s *Server) Clients() *ClientCount   { return s.clients }
func (s *Server) Arena() *Arena           { return s.arena }
func (s *Server) Request() *relay.Engine  { return s.request }
func (s *Server) Response() *relay.Engine { return s.response }
func (s *Server) PendingCalls() int       { return s.arena.Awaiting() }
func (s *Server) Done() <-chan struct{}   { return s.request.Done() }

// Open opens both long-lived relays.
func (s *Server) Open(ctx context.Context) error {
	if err := s.request.Open(ctx); err != nil {
		return err
	}
	return s.response.Open(ctx)
}

func (s *Server) IsOpen() bool { return s.request.IsOpen() && s.response.IsOpen() }

func (s *Server) Close() error {
	s.Terminate()
	return nil
}

// Start starts both relays.
func (s *Server) Start(ctx context.Context) {
	s.ctx = ctx
	s.request.Start(ctx)
	s.response.Start(ctx)
}

// GracefulStop drains both relays, then drops unanswered calls.
func (s *Server) GracefulStop(timeout time.Duration) {
	s.request.GracefulStop(timeout)
	s.response.GracefulStop(timeout)
	s.arena.TerminateAll()
}

// Terminate stops everything immediately.
func (s *Server) Terminate() {
	s.request.Terminate()
	s.response.Terminate()
	s.arena.TerminateAll()
}

// Release ends the model input of a server that has no clients, exactly as the
// last sign-off would. It does nothing once a client has signed on.
func (s *Server) Release() error {
	if !s.clients.Release() {
		return nil
	}
	s.logger.Info("server has no clients, closing server input", "relay", s.cfg.Name)
	if s.opts.onZero != nil {
		s.opts.onZero()
	}
	err := s.cfg.Input.Send(s.cfg.Input.EOF())
	s.request.Terminate()
	return err
}

// deliver is the request relay transform.
func (s *Server) deliver(msg []byte) ([]byte, error) {
	switch {
	case bytes.Equal(msg, SignOn):
		n := s.clients.SignOn()
		s.logger.Debug("client signed on", "relay", s.cfg.Name, "clients", n)
		return nil, relay.ErrSkip
	case bytes.Equal(msg, SignOff):
		n, zero := s.clients.SignOff()
		s.logger.Debug("client signed off", "relay", s.cfg.Name, "clients", n)
		if zero {
			s.logger.Info("last client signed off, closing server input", "relay", s.cfg.Name)
			if s.opts.onZero != nil {
				s.opts.onZero()
			}
			return nil, relay.ErrEndOfStream
		}
		return nil, relay.ErrSkip
	}

	env, err := Decode(msg)
	if err != nil {
		return nil, err
	}
	if err := s.spawn(env); err != nil {
		return nil, fmt.Errorf("response relay for %s: %w", env.RequestID, err)
	}
	return env.Payload, nil
}

func (s *Server) spawn(env Envelope) error {
	out, err := s.cfg.Responses.Open(ports.Send, env.ResponseAddress)
	if err != nil {
		return err
	}
	in := newSlot(s.cfg.Name + "." + env.ResponseAddress)
	name := fmt.Sprintf("%s.%s", s.cfg.Name, env.ResponseAddress)
	opts := append([]relay.Option{relay.WithLogger(s.logger)}, s.opts.relayOpts...)
	opts = append(opts, relay.WithMaxMessages(1))
	child := relay.New(name, in, NewOneShot(chunked.Wrap(out)), opts...)

	if err := child.Open(s.ctx); err != nil {
		child.Terminate()
		return err
	}
	if !s.arena.Add(&Pending{ID: env.RequestID, Address: env.ResponseAddress, relay: child, slot: in}) {
		child.Terminate()
		return fmt.Errorf("duplicate request id %s", env.RequestID)
	}
	child.Start(s.ctx)

	go func() {
		<-child.Done()
		if child.Status().Sent == 0 {
			s.logger.Warn("call abandoned before reply was delivered",
				"relay", s.cfg.Name, "request_id", env.RequestID)
		}
		s.arena.Release(env.RequestID)
	}()
	return nil
}

// dispatcher is the output of the server response relay: each reply goes to the
// oldest call still awaiting one.
type dispatcher struct {
	s   *Server
	eof []byte
}

func (d *dispatcher) Name() string               { return d.s.cfg.Name + ".dispatch" }
func (d *dispatcher) Address() string            { return d.Name() }
func (d *dispatcher) Direction() ports.Direction { return ports.Send }
func (d *dispatcher) Open(context.Context) error { return nil }
func (d *dispatcher) Close() error               { return nil }
func (d *dispatcher) IsOpen() bool               { return true }
func (d *dispatcher) MaxFrameSize() int          { return 0 }
func (d *dispatcher) EOF() []byte                { return d.eof }
func (d *dispatcher) Pending() int               { return 0 }

func (d *dispatcher) Recv(time.Duration) ([]byte, error) { return nil, ports.ErrWrongDirection }

// Send routes one reply. A reply nobody waits for is logged and dropped.
func (d *dispatcher) Send(msg []byte) error {
	if bytes.Equal(msg, d.eof) {
		return nil
	}
	p, err := d.s.arena.Claim()
	if err != nil {
		d.s.logger.Warn("dropping reply", "relay", d.s.cfg.Name, "err", err)
		return nil
	}
	if age := time.Since(p.QueuedAt); age > d.s.opts.staleAge {
		if waiting := d.s.arena.Awaiting(); waiting > 0 {
			d.s.logger.Warn("reply routed to a long-waiting call, later replies may reach the wrong caller",
				"relay", d.s.cfg.Name, "request_id", p.ID, "age", age, "waiting", waiting)
		}
	}
	if err := p.slot.Send(msg); err != nil {
		d.s.logger.Warn("dropping reply", "relay", d.s.cfg.Name, "request_id", p.ID, "err", err)
	}
	return nil
}
