package observability

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/conduit/pkg/relay"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer renders snapshots as a plain status table, colored when writing to a terminal.
type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

// NewPrinter writes to w. Colors are enabled only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	profile := termenv.Ascii
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		profile = termenv.EnvColorProfile()
	}
	return &Printer{w: w, profile: profile}
}

// Print writes one status line per relay, then one per model.
func (p *Printer) Print(snap Snapshot) error {
	header := fmt.Sprintf("--- %d relays, %d models ---", len(snap.Relays), len(snap.Models))
	if snap.Failed {
		header += " " + p.paint("FAILED", "#f87171")
	}
	if _, err := fmt.Fprintln(p.w, header); err != nil {
		return err
	}
	for _, s := range snap.Relays {
		if _, err := fmt.Fprintln(p.w, p.paint(s.String(), stateColor(s.State))); err != nil {
			return err
		}
	}
	for _, m := range snap.Models {
		line := fmt.Sprintf("%-40s %-10s exit=%d", m.Name, modelState(m), m.ExitCode)
		if m.Error != "" {
			line += " err=" + m.Error
		}
		color := "#4ade80"
		if !m.Alive {
			color = "#9ca3af"
		}
		if m.Error != "" {
			color = "#f87171"
		}
		if _, err := fmt.Fprintln(p.w, p.paint(line, color)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) paint(s, hex string) string {
	if p.profile == termenv.Ascii {
		return s
	}
	return termenv.String(s).Foreground(p.profile.Color(hex)).String()
}

func modelState(m ModelStatus) string {
	if m.Alive {
		return "running"
	}
	return "exited"
}

func stateColor(s relay.State) string {
	switch s {
	case relay.StateClosed:
		return "#9ca3af"
	case relay.StateWaiting, relay.StateReceiving:
		return "#93c5fd"
	}
	return "#4ade80"
}
