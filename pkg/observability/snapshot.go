package observability

import "github.com/aretw0/conduit/pkg/relay"

// ModelStatus is the liveness of one model.
type ModelStatus struct {
	Name     string `json:"name"`
	Alive    bool   `json:"alive"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// Snapshot is the state of a whole run at one instant.
type Snapshot struct {
	Relays []relay.Status `json:"relays"`
	Models []ModelStatus  `json:"models"`
	Failed bool           `json:"failed"`
}

// Source produces snapshots. The orchestrator is one.
type Source interface {
	Snapshot() Snapshot
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Snapshot

func (f SourceFunc) Snapshot() Snapshot { return f() }
