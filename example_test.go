package conduit_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/conduit"
	"github.com/aretw0/conduit/pkg/adapters/memory"
	"github.com/aretw0/conduit/pkg/adapters/process"
	"github.com/aretw0/conduit/pkg/graph"
	"github.com/aretw0/conduit/pkg/model"
	"github.com/aretw0/conduit/pkg/orchestrator"
	"github.com/aretw0/conduit/pkg/ports"
)

const exampleGraph = `
name: shout
models:
  - name: echo
    inputs:
      - name: lines
        file: in.txt
    outputs:
      - name: lines
        file: out.txt
        translator: upper
`

// echo forwards every message of its input queue to its output queue.
func echo(tr ports.Transport) process.RunFunc {
	return func(ctx context.Context, env map[string]string) error {
		conn := model.New(env, model.WithTransport(graph.TransportMemory, tr))
		defer conn.Close()
		in, err := conn.Input(ctx, "lines")
		if err != nil {
			return err
		}
		out, err := conn.Output(ctx, "lines")
		if err != nil {
			return err
		}
		for {
			msg, err := conn.Next(ctx, in)
			if err != nil {
				return err
			}
			if err := out.Send(msg); err != nil {
				return err
			}
			if ports.IsEOF(in, msg) {
				return nil
			}
		}
	}
}

func Example() {
	dir, _ := os.MkdirTemp("", "conduit-example")
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "shout.yaml")
	_ = os.WriteFile(path, []byte(exampleGraph), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "in.txt"), []byte("hello\nconduit\n"), 0o644)

	tr := memory.NewTransport("", memory.Config{})
	err := conduit.Run(context.Background(), path,
		orchestrator.WithTransport(graph.TransportMemory, tr),
		orchestrator.WithModelFunc("echo", echo(tr)),
		orchestrator.WithPollInterval(10*time.Millisecond),
	)
	if err != nil {
		fmt.Println("run:", err)
		return
	}

	out, _ := os.ReadFile(filepath.Join(dir, "out.txt"))
	fmt.Print(string(out))
	// Output:
	// HELLO
	// CONDUIT
}
