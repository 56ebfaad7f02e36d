package main

import (
	"github.com/aretw0/conduit/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <graph>",
	Short: "Export the graph as a Mermaid diagram",
	Long:  `Resolves the graph and outputs a Mermaid flowchart (graph LR) of its models, relays and RPC pairs.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		render, _ := cmd.Flags().GetBool("render")
		return cli.Mermaid(args[0], render, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("render", false, "Render the diagram source for the terminal")
}
