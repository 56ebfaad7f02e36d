package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/conduit/internal/logging"
)

// createLogger builds the application logger. An empty level disables logging.
func createLogger(level string) (*slog.Logger, error) {
	if level == "" {
		return logging.NewNop(), nil
	}
	l, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.New(l), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
