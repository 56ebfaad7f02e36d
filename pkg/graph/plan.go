package graph

import (
	"path/filepath"
	"strings"
)

// Address helpers. Every queue a model reads or writes is named after the model.
func InputAddress(model, channel string) string  { return model + ".in." + channel }
func OutputAddress(model, channel string) string { return model + ".out." + channel }
func ServerAddress(server string) string         { return server + ".rpc" }
func ServerInputAddress(server string) string    { return server + ".rpc.in" }
func ServerOutputAddress(server string) string   { return server + ".rpc.out" }
func CallAddress(client, server string) string   { return client + ".call." + server }
func ReplyAddress(client, server string) string  { return client + ".reply." + server }

// Endpoint is one side of a connection: a model queue or a file.
type Endpoint struct {
	Model     string
	Channel   string
	File      string
	Transport string
	Address   string
}

// IsFile reports whether the endpoint is a file.
func (e Endpoint) IsFile() bool { return e.File != "" }

func (e Endpoint) String() string {
	if e.IsFile() {
		return "file:" + e.File
	}
	return e.Model + "." + e.Channel
}

// Connection is one relay: it reads From and writes To.
type Connection struct {
	Name       string
	From       Endpoint
	To         Endpoint
	Translator string
	OnExit     string
	// Owner is the model whose exit triggers OnExit: the writer of From, or the
	// reader of To when From is a file.
	Owner string
}

// ServerPlan is the request/response relay pair of a server model.
type ServerPlan struct {
	Name    string
	Channel Endpoint
	Input   Endpoint
	Output  Endpoint
}

// Pair binds a client model to a server.
type Pair struct {
	Client string
	Server string
	Outbox Endpoint
	Inbox  Endpoint
	// Responses is the transport carrying the per-call response addresses.
	Responses string
}

// Plan is the resolved graph: what to create, in which order.
type Plan struct {
	Graph       *Graph
	Order       []string
	Connections []Connection
	Servers     []ServerPlan
	Pairs       []Pair
}

// Plan validates the graph and resolves it.
func (g *Graph) Plan(translators *Translators) (*Plan, error) {
	if err := g.Validate(translators); err != nil {
		return nil, err
	}
	p := &Plan{Graph: g}
	seen := make(map[string]bool)
	add := func(c Connection) {
		key := c.From.Address + "->" + c.To.Address
		if seen[key] {
			return
		}
		seen[key] = true
		c.Name = c.From.String() + "->" + c.To.String()
		p.Connections = append(p.Connections, c)
	}

	for _, m := range g.Models {
		for _, out := range m.Outputs {
			from := g.modelEndpoint(m, out, false)
			switch {
			case out.File != "":
				add(Connection{From: from, To: g.fileEndpoint(out.File), Translator: out.Translator, OnExit: out.OnExit, Owner: m.Name})
			case out.To != "":
				target, in := g.lookup(out.To, true)
				add(Connection{
					From:       from,
					To:         g.modelEndpoint(target, in, true),
					Translator: first(out.Translator, in.Translator),
					OnExit:     first(out.OnExit, in.OnExit),
					Owner:      m.Name,
				})
			}
		}
		for _, in := range m.Inputs {
			to := g.modelEndpoint(m, in, true)
			switch {
			case in.File != "":
				add(Connection{From: g.fileEndpoint(in.File), To: to, Translator: in.Translator, OnExit: in.OnExit, Owner: m.Name})
			case in.From != "":
				source, out := g.lookup(in.From, false)
				add(Connection{
					From:       g.modelEndpoint(source, out, false),
					To:         to,
					Translator: first(out.Translator, in.Translator),
					OnExit:     first(out.OnExit, in.OnExit),
					Owner:      source.Name,
				})
			}
		}
	}

	for _, m := range g.Models {
		if !m.Server {
			continue
		}
		tr := g.modelTransport(m)
		p.Servers = append(p.Servers, ServerPlan{
			Name:    m.Name,
			Channel: Endpoint{Model: m.Name, Channel: "rpc", Transport: tr, Address: ServerAddress(m.Name)},
			Input:   Endpoint{Model: m.Name, Channel: "rpc.in", Transport: tr, Address: ServerInputAddress(m.Name)},
			Output:  Endpoint{Model: m.Name, Channel: "rpc.out", Transport: tr, Address: ServerOutputAddress(m.Name)},
		})
	}
	for _, m := range g.Models {
		tr := g.modelTransport(m)
		for _, server := range m.ClientOf {
			s, _ := g.Model(server)
			p.Pairs = append(p.Pairs, Pair{
				Client:    m.Name,
				Server:    server,
				Outbox:    Endpoint{Model: m.Name, Channel: "call." + server, Transport: tr, Address: CallAddress(m.Name, server)},
				Inbox:     Endpoint{Model: m.Name, Channel: "reply." + server, Transport: tr, Address: ReplyAddress(m.Name, server)},
				Responses: g.modelTransport(s),
			})
		}
	}

	p.Order = p.order()
	return p, nil
}

func (g *Graph) modelEndpoint(m Model, ch Channel, input bool) Endpoint {
	addr := OutputAddress(m.Name, ch.Name)
	if input {
		addr = InputAddress(m.Name, ch.Name)
	}
	return Endpoint{Model: m.Name, Channel: ch.Name, Transport: g.transportFor(m, ch), Address: addr}
}

func (g *Graph) fileEndpoint(path string) Endpoint {
	if !filepath.IsAbs(path) && g.BaseDir != "" {
		path = filepath.Join(g.BaseDir, path)
	}
	return Endpoint{File: path, Transport: TransportFile, Address: path}
}

// lookup resolves a validated "model.channel" reference.
func (g *Graph) lookup(ref string, input bool) (Model, Channel) {
	name, channel, _ := strings.Cut(ref, ".")
	m, _ := g.Model(name)
	list := m.Outputs
	if input {
		list = m.Inputs
	}
	for _, c := range list {
		if c.Name == channel {
			return m, c
		}
	}
	return m, Channel{Name: channel}
}

// order sorts models so that servers precede their clients and producers their
// consumers. Ties and cycles keep declaration order.
func (p *Plan) order() []string {
	models := p.Graph.Models
	index := make(map[string]int, len(models))
	for i, m := range models {
		index[m.Name] = i
	}
	indegree := make([]int, len(models))
	next := make([][]int, len(models))
	edge := func(from, to string) {
		i, ok1 := index[from]
		j, ok2 := index[to]
		if !ok1 || !ok2 || i == j {
			return
		}
		next[i] = append(next[i], j)
		indegree[j]++
	}
	for _, c := range p.Connections {
		if !c.From.IsFile() && !c.To.IsFile() {
			edge(c.From.Model, c.To.Model)
		}
	}
	for _, pair := range p.Pairs {
		edge(pair.Server, pair.Client)
	}

	out := make([]string, 0, len(models))
	done := make([]bool, len(models))
	for len(out) < len(models) {
		picked := -1
		for i := range models {
			if !done[i] && indegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			// Cycle: release the first remaining model.
			for i := range models {
				if !done[i] {
					picked = i
					break
				}
			}
		}
		done[picked] = true
		out = append(out, models[picked].Name)
		for _, j := range next[picked] {
			indegree[j]--
		}
	}
	return out
}

// ModelTransports lists the transports a model's endpoints live on.
func (p *Plan) ModelTransports(model string) []string {
	seen := make(map[string]bool)
	var out []string
	use := func(e Endpoint) {
		if e.Model == model && !e.IsFile() && !seen[e.Transport] {
			seen[e.Transport] = true
			out = append(out, e.Transport)
		}
	}
	for _, c := range p.Connections {
		use(c.From)
		use(c.To)
	}
	for _, s := range p.Servers {
		use(s.Input)
		use(s.Output)
	}
	for _, pair := range p.Pairs {
		use(pair.Outbox)
		use(pair.Inbox)
	}
	return out
}

// Transports lists every transport name the plan uses, files excluded.
func (p *Plan) Transports() []string {
	seen := make(map[string]bool)
	var out []string
	use := func(names ...string) {
		for _, n := range names {
			if n != TransportFile && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	for _, c := range p.Connections {
		use(c.From.Transport, c.To.Transport)
	}
	for _, s := range p.Servers {
		use(s.Channel.Transport)
	}
	for _, pair := range p.Pairs {
		use(pair.Outbox.Transport, pair.Responses)
	}
	return out
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
