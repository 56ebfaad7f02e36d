package main

import (
	"github.com/aretw0/conduit/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <graph>",
	Short: "Run a graph until every model exits",
	Long: `Starts every relay and model of the graph. Interrupt once to print the
status table, twice within the grace window to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel, _ := cmd.Flags().GetString("log-level")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		strict, _ := cmd.Flags().GetBool("strict")
		quiet, _ := cmd.Flags().GetBool("quiet")

		return cli.Execute(cmd.Context(), cli.RunOptions{
			GraphPath:   args[0],
			LogLevel:    logLevel,
			MetricsAddr: metricsAddr,
			Strict:      strict,
			Quiet:       quiet,
			Out:         cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("metrics-addr", "", "Serve /status, /events and /metrics on this address")
	runCmd.Flags().Bool("strict", false, "Exit with an error when any model reported an error")
	runCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner and progress messages")
}
