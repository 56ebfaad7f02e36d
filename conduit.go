package conduit

import (
	"context"

	"github.com/aretw0/conduit/pkg/graph"
	"github.com/aretw0/conduit/pkg/orchestrator"
)

// Load reads the graph file at path (YAML or JSON) and prepares an
// orchestrator for it. Nothing is created until the orchestrator loads.
func Load(path string, opts ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	g, err := graph.Load(path)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(g, opts...), nil
}

// Run runs the graph file at path until every model has exited.
func Run(ctx context.Context, path string, opts ...orchestrator.Option) error {
	o, err := Load(path, opts...)
	if err != nil {
		return err
	}
	return o.Run(ctx)
}
