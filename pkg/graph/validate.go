package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Validate checks the graph for configuration errors and reports all of them at once.
// A nil registry means DefaultTranslators.
func (g *Graph) Validate(translators *Translators) error {
	if translators == nil {
		translators = DefaultTranslators()
	}
	if len(g.Models) == 0 {
		return ErrEmptyGraph
	}

	var errs []error
	report := func(err error, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)))
	}

	for _, name := range slices.Sorted(maps.Keys(g.Transports)) {
		switch spec := g.Transports[name]; spec.Type {
		case TransportMemory, TransportRedis:
		default:
			report(ErrUnknownTransport, "transport %q has type %q", name, spec.Type)
		}
	}
	checkTransport := func(owner, name string) {
		if name == "" {
			return
		}
		if _, ok := g.Transport(name); !ok {
			report(ErrUnknownTransport, "%s uses %q", owner, name)
		}
	}
	checkTransport("default_transport", g.DefaultTransport)

	models := make(map[string]Model, len(g.Models))
	var ordered []Model
	for _, m := range g.Models {
		if !validName(m.Name) {
			report(ErrInvalidName, "model %q", m.Name)
			continue
		}
		if _, dup := models[m.Name]; dup {
			report(ErrDuplicateName, "model %q", m.Name)
			continue
		}
		models[m.Name] = m
		ordered = append(ordered, m)
	}

	// readers counts the inputs fed by each "model.output".
	readers := make(map[string]map[string]bool)
	addReader := func(output, input string) {
		if readers[output] == nil {
			readers[output] = make(map[string]bool)
		}
		readers[output][input] = true
	}
	// fed and consumed record bindings made from the other side.
	fed := make(map[string]bool)
	consumed := make(map[string]bool)

	resolve := func(owner, ref string, inputs bool) (Model, Channel, bool) {
		model, ch, ok := strings.Cut(ref, ".")
		if !ok {
			report(ErrUnknownChannel, "%s refers to %q, want model.channel", owner, ref)
			return Model{}, Channel{}, false
		}
		m, ok := models[model]
		if !ok {
			report(ErrUnknownModel, "%s refers to %q", owner, model)
			return Model{}, Channel{}, false
		}
		list, kind := m.Outputs, "output"
		if inputs {
			list, kind = m.Inputs, "input"
		}
		for _, c := range list {
			if c.Name == ch {
				return m, c, true
			}
		}
		report(ErrUnknownChannel, "%s refers to %s %q of model %q", owner, kind, ch, model)
		return Model{}, Channel{}, false
	}

	for _, m := range ordered {
		for _, client := range m.ClientOf {
			s, ok := models[client]
			switch {
			case !ok:
				report(ErrUnknownModel, "model %q is a client of %q", m.Name, client)
			case !s.Server:
				report(ErrNotServer, "model %q is a client of %q", m.Name, client)
			case client == m.Name:
				report(ErrInvalidName, "model %q is a client of itself", m.Name)
			}
		}
		checkTransport(fmt.Sprintf("model %q", m.Name), m.Transport)

		check := func(kind string, list []Channel) {
			seen := make(map[string]bool, len(list))
			for _, c := range list {
				owner := fmt.Sprintf("%s %s.%s", kind, m.Name, c.Name)
				if !validName(c.Name) {
					report(ErrInvalidName, "%s", owner)
					continue
				}
				if seen[c.Name] {
					report(ErrDuplicateName, "%s", owner)
				}
				seen[c.Name] = true
				if _, ok := translators.Lookup(c.Translator); !ok {
					report(ErrUnknownTranslator, "%s uses %q", owner, c.Translator)
				}
				switch c.OnExit {
				case "", ExitNone, ExitDrain, ExitTerminate:
				default:
					report(ErrUnknownExitAction, "%s uses %q", owner, c.OnExit)
				}
				checkTransport(owner, c.Transport)
			}
		}
		check("input", m.Inputs)
		check("output", m.Outputs)

		for _, out := range m.Outputs {
			owner := fmt.Sprintf("output %s.%s", m.Name, out.Name)
			if out.From != "" {
				report(ErrAmbiguousBinding, "%s sets from; outputs use to", owner)
			}
			if out.To != "" && out.File != "" {
				report(ErrAmbiguousBinding, "%s sets both to and file", owner)
			}
			if out.To != "" {
				if target, in, ok := resolve(owner, out.To, true); ok {
					addReader(m.Name+"."+out.Name, target.Name+"."+in.Name)
					fed[target.Name+"."+in.Name] = true
					if out.Translator != "" && in.Translator != "" && out.Translator != in.Translator {
						report(ErrAmbiguousBinding, "%s and input %s disagree on translator", owner, out.To)
					}
				}
			}
		}
		for _, in := range m.Inputs {
			owner := fmt.Sprintf("input %s.%s", m.Name, in.Name)
			if in.To != "" {
				report(ErrAmbiguousBinding, "%s sets to; inputs use from", owner)
			}
			if in.From != "" && in.File != "" {
				report(ErrAmbiguousBinding, "%s sets both from and file", owner)
			}
			if in.From != "" {
				if source, out, ok := resolve(owner, in.From, false); ok {
					addReader(source.Name+"."+out.Name, m.Name+"."+in.Name)
					consumed[source.Name+"."+out.Name] = true
				}
			}
		}
	}

	for _, output := range slices.Sorted(maps.Keys(readers)) {
		if len(readers[output]) > 1 {
			report(ErrFanOut, "output %s", output)
		}
	}
	for _, m := range ordered {
		for _, in := range m.Inputs {
			if in.From == "" && in.File == "" && !fed[m.Name+"."+in.Name] {
				report(ErrMissingBinding, "input %s.%s", m.Name, in.Name)
			}
		}
		for _, out := range m.Outputs {
			if out.To == "" && out.File == "" && !consumed[m.Name+"."+out.Name] {
				report(ErrMissingBinding, "output %s.%s", m.Name, out.Name)
			}
		}
	}
	return errors.Join(errs...)
}

func validName(s string) bool {
	return s != "" && !strings.ContainsAny(s, ". \t\n")
}
