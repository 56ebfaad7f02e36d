package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/conduit"
	"github.com/aretw0/conduit/internal/presentation/tui"
	httpAdapter "github.com/aretw0/conduit/pkg/adapters/http"
	"github.com/aretw0/conduit/pkg/graph"
	"github.com/aretw0/conduit/pkg/orchestrator"
)

// ErrFailed is returned in strict mode when any model reported an error.
var ErrFailed = errors.New("a model reported an error")

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	GraphPath   string
	LogLevel    string
	MetricsAddr string
	Strict      bool
	Quiet       bool
	Out         io.Writer
}

// Execute runs the graph until every model exits or a double interrupt stops it.
func Execute(ctx context.Context, opts RunOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger, err := createLogger(opts.LogLevel)
	if err != nil {
		return err
	}
	g, err := graph.Load(opts.GraphPath)
	if err != nil {
		return err
	}
	if !opts.Quiet {
		tui.PrintBanner(out, conduit.Version)
	}

	signals := orchestrator.NewSignals()
	defer signals.Stop()
	o := orchestrator.New(g,
		orchestrator.WithLogger(logger),
		orchestrator.WithInterrupts(signals.Events()),
		orchestrator.WithStatusWriter(out),
	)

	if opts.MetricsAddr != "" {
		handler, err := httpAdapter.NewHandler(o, httpAdapter.WithLogger(logger))
		if err != nil {
			return err
		}
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := httpAdapter.Serve(srvCtx, opts.MetricsAddr, handler, logger); err != nil {
				logger.Error("status server failed", "addr", opts.MetricsAddr, "err", err)
			}
		}()
	}

	if !opts.Quiet {
		printSystemMessage(out, "Running '%s' with %d models. Interrupt once for status, twice to stop.", g.Name, len(g.Models))
	}
	err = o.Run(ctx)
	switch {
	case errors.Is(err, orchestrator.ErrInterrupted):
		if !opts.Quiet {
			printSystemMessage(out, "Stopped.")
		}
		return nil
	case err != nil:
		return err
	}
	if o.Failed() {
		if !opts.Quiet {
			printSystemMessage(out, "Finished with errors.")
		}
		if opts.Strict {
			return ErrFailed
		}
		return nil
	}
	if !opts.Quiet {
		printSystemMessage(out, "Finished.")
	}
	return nil
}

// Validate loads and plans the graph at path and prints a summary of what a
// run would create.
func Validate(path string, out io.Writer) error {
	g, err := graph.Load(path)
	if err != nil {
		return err
	}
	plan, err := g.Plan(nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Graph '%s' is valid.\n", g.Name)
	fmt.Fprintf(out, "  models:      %d (start order: %v)\n", len(plan.Order), plan.Order)
	fmt.Fprintf(out, "  relays:      %d\n", len(plan.Connections))
	fmt.Fprintf(out, "  servers:     %d\n", len(plan.Servers))
	fmt.Fprintf(out, "  rpc clients: %d\n", len(plan.Pairs))
	fmt.Fprintf(out, "  transports:  %v\n", plan.Transports())
	return nil
}

// Mermaid writes the Mermaid diagram of the graph at path, rendered for the
// terminal when render is set.
func Mermaid(path string, render bool, out io.Writer) error {
	g, err := graph.Load(path)
	if err != nil {
		return err
	}
	plan, err := g.Plan(nil)
	if err != nil {
		return err
	}
	diagram := graph.Mermaid(plan)
	if !render {
		_, err := io.WriteString(out, diagram)
		return err
	}
	r, err := tui.NewRenderer()
	if err != nil {
		return err
	}
	rendered, err := r(tui.Fence("mermaid", diagram))
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, rendered)
	return err
}
