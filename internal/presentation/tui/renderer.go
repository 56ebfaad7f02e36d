package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown for the terminal,
// picking a light or dark style from the background.
func NewRenderer() (func(string) (string, error), error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

// Fence wraps code in a fenced markdown block of the given language.
func Fence(lang, code string) string {
	return "```" + lang + "\n" + code + "```\n"
}
