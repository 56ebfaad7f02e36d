package main

import (
	"github.com/aretw0/conduit/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <graph>",
	Short: "Check the graph for configuration errors",
	Long:  `Loads and resolves the graph without starting anything, reporting every configuration error at once.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Validate(args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
