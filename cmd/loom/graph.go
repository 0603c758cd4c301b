package main

import (
	"context"
	"fmt"
	"os"

	"github.com/magicprompt/loom/graphs"
	"github.com/magicprompt/loom/internal/graphdef"
	"github.com/magicprompt/loom/internal/presentation/graph"
	"github.com/magicprompt/loom/pkg/adapters/file"
	"github.com/magicprompt/loom/pkg/ports"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the graph visualization",
	Long:  `Loads the graph definition and outputs a Mermaid diagram (graph TD) of the question flow.`,
	Run: func(cmd *cobra.Command, args []string) {
		graphDir, _ := cmd.Flags().GetString("graph")
		presets, _ := cmd.Flags().GetStringSlice("preset")

		var source ports.GraphSource
		if graphDir == "" {
			source = graphs.Default()
		} else {
			source = file.NewSource(graphDir)
		}

		g, err := graphdef.NewLoader(source).Load(context.Background(), presets...)
		if err != nil {
			fmt.Printf("Error loading graph: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(graph.GenerateMermaid(g, nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringSlice("preset", nil, "Preset ids to merge before rendering")
}
