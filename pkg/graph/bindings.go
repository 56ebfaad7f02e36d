package graph

import "github.com/aretw0/conduit/pkg/ports"

// EnvPrefix starts every binding injected into a model environment.
const EnvPrefix = ports.EnvPrefix

// EnvName builds a binding variable name: EnvName("in", "raw-text") is CONDUIT_IN_RAW_TEXT.
func EnvName(parts ...string) string { return ports.EnvName(parts...) }

// Bindings returns, per model, the addresses of its queues as environment
// variables. Each address X also gets X_TRANSPORT naming its transport.
// Transport-level variables (hosts, prefixes) are added by whoever builds the transports.
func (p *Plan) Bindings() map[string]map[string]string {
	out := make(map[string]map[string]string, len(p.Graph.Models))
	for _, m := range p.Graph.Models {
		out[m.Name] = map[string]string{EnvName("model"): m.Name}
	}
	bind := func(e Endpoint, parts ...string) {
		env, ok := out[e.Model]
		if !ok || e.IsFile() {
			return
		}
		name := EnvName(parts...)
		env[name] = e.Address
		env[name+"_TRANSPORT"] = e.Transport
	}
	for _, c := range p.Connections {
		bind(c.From, "out", c.From.Channel)
		bind(c.To, "in", c.To.Channel)
	}
	for _, s := range p.Servers {
		bind(s.Input, "rpc", "in")
		bind(s.Output, "rpc", "out")
	}
	for _, pair := range p.Pairs {
		bind(pair.Outbox, "call", pair.Server)
		bind(pair.Inbox, "reply", pair.Server)
	}
	return out
}
