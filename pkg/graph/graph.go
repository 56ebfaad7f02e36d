package graph

import (
	"time"

	"github.com/aretw0/conduit/pkg/adapters/process"
)

// Exit actions a channel relay may take when the model owning it exits.
const (
	ExitNone      = "none"
	ExitDrain     = "drain"
	ExitTerminate = "terminate"
)

// Transport types understood by the orchestrator.
const (
	TransportMemory = "memory"
	TransportRedis  = "redis"
	TransportFile   = "file"
)

// Graph is a declarative description of models and the channels between them.
type Graph struct {
	Name             string                   `mapstructure:"name"`
	DefaultTransport string                   `mapstructure:"default_transport"`
	Transports       map[string]TransportSpec `mapstructure:"transports"`
	Models           []Model                  `mapstructure:"models"`
	// Grace is the window in which a second interrupt forces shutdown.
	Grace time.Duration `mapstructure:"grace"`
	// StopTimeout bounds each graceful drain.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// BaseDir resolves relative file bindings. Set by Load.
	BaseDir string `mapstructure:"-"`
}

// TransportSpec names a transport type. Every other key is handed to the
// transport as its options.
type TransportSpec struct {
	Type    string         `mapstructure:"type"`
	Options map[string]any `mapstructure:",remain"`
}

// Model is one participant of the graph.
type Model struct {
	Name    string            `mapstructure:"name"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Dir     string            `mapstructure:"dir"`
	// Transport is the default transport of the model's own endpoints.
	Transport string    `mapstructure:"transport"`
	Inputs    []Channel `mapstructure:"inputs"`
	Outputs   []Channel `mapstructure:"outputs"`
	Server    bool      `mapstructure:"is_server"`
	ClientOf  []string  `mapstructure:"client_of"`
}

// Channel declares one input or output of a model and what it is bound to.
// An input is fed by From ("model.output") or File; an output feeds To
// ("model.input") or File.
type Channel struct {
	Name       string `mapstructure:"name"`
	From       string `mapstructure:"from"`
	To         string `mapstructure:"to"`
	File       string `mapstructure:"file"`
	Transport  string `mapstructure:"transport"`
	Translator string `mapstructure:"translator"`
	OnExit     string `mapstructure:"on_exit"`
}

// Process returns the launch configuration of m.
func (m Model) Process() process.Config {
	return process.Config{
		Name:    m.Name,
		Command: m.Command,
		Args:    m.Args,
		Env:     m.Env,
		Dir:     m.Dir,
	}
}

// Model looks a model up by name.
func (g *Graph) Model(name string) (Model, bool) {
	for _, m := range g.Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// Transport resolves a transport name. The memory transport exists even when undeclared.
func (g *Graph) Transport(name string) (TransportSpec, bool) {
	if spec, ok := g.Transports[name]; ok {
		return spec, true
	}
	if name == TransportMemory {
		return TransportSpec{Type: TransportMemory}, true
	}
	return TransportSpec{}, false
}

// transportFor picks the transport of a channel of model m.
func (g *Graph) transportFor(m Model, ch Channel) string {
	switch {
	case ch.Transport != "":
		return ch.Transport
	case m.Transport != "":
		return m.Transport
	case g.DefaultTransport != "":
		return g.DefaultTransport
	}
	return TransportMemory
}

func (g *Graph) modelTransport(m Model) string {
	return g.transportFor(m, Channel{})
}
