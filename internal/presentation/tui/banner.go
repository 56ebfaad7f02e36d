package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text, color string
}{
	{`                       _       _ _   `, "#22d3ee"},
	{`   ___ ___  _ __   __| |_   _(_) |_ `, "#38bdf8"},
	{`  / __/ _ \| '_ \ / _' | | | | | __|`, "#60a5fa"},
	{` | (_| (_) | | | | (_| | |_| | | |_ `, "#818cf8"},
	{`  \___\___/|_| |_|\__,_|\__,_|_|\__|`, "#a78bfa"},
}

// PrintBanner writes the conduit banner and version to w. Colors are only
// used when w is a terminal that supports them.
func PrintBanner(w io.Writer, version string) {
	p := termenv.NewOutput(w).EnvColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
