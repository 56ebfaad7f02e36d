package orchestrator

import (
	"context"
	"fmt"

	"github.com/aretw0/conduit/pkg/adapters/file"
	"github.com/aretw0/conduit/pkg/adapters/memory"
	"github.com/aretw0/conduit/pkg/adapters/redis"
	"github.com/aretw0/conduit/pkg/chunked"
	"github.com/aretw0/conduit/pkg/graph"
	"github.com/aretw0/conduit/pkg/ports"
)

// buildTransports creates every transport the plan uses that was not supplied
// with WithTransport. Files are always available.
func (o *Orchestrator) buildTransports(context.Context) error {
	if _, ok := o.transports[graph.TransportFile]; !ok {
		o.transports[graph.TransportFile] = file.New("")
	}
	for _, name := range o.plan.Transports() {
		if _, ok := o.transports[name]; ok {
			continue
		}
		spec, ok := o.graph.Transport(name)
		if !ok {
			return fmt.Errorf("%w: %s", graph.ErrUnknownTransport, name)
		}
		t, err := o.newTransport(name, spec)
		if err != nil {
			return fmt.Errorf("transport %s: %w", name, err)
		}
		o.transports[name] = t
		o.logger.Debug("transport ready", "transport", name, "type", spec.Type)
	}
	return nil
}

func (o *Orchestrator) newTransport(name string, spec graph.TransportSpec) (ports.Transport, error) {
	switch spec.Type {
	case graph.TransportMemory:
		var cfg memory.Config
		if err := graph.DecodeOptions(spec.Options, &cfg); err != nil {
			return nil, err
		}
		return memory.NewTransport(name, cfg), nil
	case graph.TransportRedis:
		var cfg redis.Config
		if err := graph.DecodeOptions(spec.Options, &cfg); err != nil {
			return nil, err
		}
		t := redis.New(cfg, redis.WithName(name))
		o.closers = append(o.closers, t)
		return t, nil
	}
	return nil, fmt.Errorf("%w: type %q", graph.ErrUnknownTransport, spec.Type)
}

// endpoint opens the communicator for one side of a connection. Bounded
// transports get the chunking driver so messages of any size fit.
func (o *Orchestrator) endpoint(e graph.Endpoint, dir ports.Direction) (ports.Communicator, error) {
	t, ok := o.transports[e.Transport]
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrUnknownTransport, e.Transport)
	}
	c, err := t.Open(dir, e.Address)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", e, err)
	}
	return chunked.Wrap(c, chunked.WithLogger(o.logger)), nil
}
