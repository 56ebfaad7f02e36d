package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Conduit runs graphs of models connected by message queues",
	Long: `Conduit reads a graph file (YAML or JSON), wires every channel with a relay
over memory, Redis or files, launches the models and shuts the graph down as
they finish.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log to stderr at this level (debug, info, warn, error)")
}
