/*
Package conduit runs a graph of cooperating models connected by message queues.

A model is any program (or in-process function) that reads messages from its
input queues and writes messages to its output queues. A graph file names the
models, their channels and the transports carrying them; conduit wires every
connection with a relay, launches the models and shuts the graph down as they
finish.

# Concepts

  - Transport: a backend hosting queues. Memory and Redis are built in; files
    act as sources and sinks.
  - Relay: a loop that moves messages from one endpoint to another, optionally
    through a translator.
  - Chunking: messages larger than a transport's frame limit are split into
    frames and reassembled transparently.
  - RPC: a model marked is_server answers calls from its client_of models; every
    call gets exactly one reply on a per-call address.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/conduit"
	)

	func main() {
		if err := conduit.Run(context.Background(), "graph.yaml"); err != nil {
			log.Fatal(err)
		}
	}

Models find their queues through environment variables such as
CONDUIT_IN_<CHANNEL> and CONDUIT_OUT_<CHANNEL>; see package graph.

The conduit command (cmd/conduit) wraps the same flow with validation, Mermaid
export, interrupt handling and an optional metrics endpoint.
*/
package conduit
