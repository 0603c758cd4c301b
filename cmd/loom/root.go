package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom is a graph-guided prompt builder",
	Long: `Loom walks a declarative graph of questions, asks a local model to
answer each one, and weaves the collected answers into a bilingual
image-generation prompt.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("graph", "", "Directory with base.yaml and presets/ (default: embedded graph)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging to stderr")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress system messages")
}
