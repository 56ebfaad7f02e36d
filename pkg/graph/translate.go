package graph

import (
	"bytes"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/conduit/pkg/relay"
)

// Translators maps translator names to relay transforms.
// Safe for concurrent use.
type Translators struct {
	mu sync.RWMutex
	m  map[string]relay.Transform
}

// DefaultTranslators returns a registry holding identity, upper, lower and trim.
func DefaultTranslators() *Translators {
	t := &Translators{m: make(map[string]relay.Transform)}
	t.Register("identity", relay.Identity)
	t.Register("upper", func(msg []byte) ([]byte, error) { return bytes.ToUpper(msg), nil })
	t.Register("lower", func(msg []byte) ([]byte, error) { return bytes.ToLower(msg), nil })
	t.Register("trim", trim)
	return t
}

// trim drops messages that are only whitespace, since an empty message cannot be sent.
func trim(msg []byte) ([]byte, error) {
	out := bytes.TrimSpace(msg)
	if len(out) == 0 {
		return nil, relay.ErrSkip
	}
	return out, nil
}

// Register adds or replaces a translator.
func (t *Translators) Register(name string, fn relay.Transform) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[name] = fn
}

// Lookup returns the translator name. The empty name is identity.
func (t *Translators) Lookup(name string) (relay.Transform, bool) {
	if name == "" {
		return relay.Identity, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.m[name]
	return fn, ok
}

// Names lists the registered translators, sorted.
func (t *Translators) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.m))
}

// Clone returns an independent copy.
func (t *Translators) Clone() *Translators {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Translators{m: maps.Clone(t.m)}
}
