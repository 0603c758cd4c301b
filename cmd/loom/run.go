package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/magicprompt/loom/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a prompt-building session",
	Long: `Starts (or resumes) a session, walks the graph with the configured
model, and prints the bilingual export package when the traversal finishes.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := gatherRunOptions(cmd)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := cli.RunSession(ctx, opts); err != nil {
			if ctx.Err() != nil {
				// Interrupted sessions resume from the persisted rows.
				fmt.Println("\nInterrupted.")
				return
			}
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func gatherRunOptions(cmd *cobra.Command) cli.RunOptions {
	graphDir, _ := cmd.Flags().GetString("graph")
	debug, _ := cmd.Flags().GetBool("debug")
	quiet, _ := cmd.Flags().GetBool("quiet")
	sessionID, _ := cmd.Flags().GetString("session")
	presets, _ := cmd.Flags().GetStringSlice("preset")
	store, _ := cmd.Flags().GetString("store")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	redisAddr, _ := cmd.Flags().GetString("redis-addr")
	redisDB, _ := cmd.Flags().GetInt("redis-db")
	ollamaURL, _ := cmd.Flags().GetString("ollama-url")
	model, _ := cmd.Flags().GetString("model")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	topP, _ := cmd.Flags().GetFloat64("top-p")
	stepMode, _ := cmd.Flags().GetBool("step")

	return cli.RunOptions{
		GraphDir:    graphDir,
		SessionID:   sessionID,
		Presets:     presets,
		Store:       store,
		DataDir:     dataDir,
		RedisAddr:   redisAddr,
		RedisDB:     redisDB,
		OllamaURL:   ollamaURL,
		Model:       model,
		Temperature: temperature,
		TopP:        topP,
		StepMode:    stepMode,
		Debug:       debug,
		Quiet:       quiet,
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("session", "s", "", "Session id to resume (or to create with a fixed id)")
	runCmd.Flags().StringSlice("preset", nil, "Preset ids to merge into the base graph")
	runCmd.Flags().String("store", "memory", "Session store: memory, file or redis")
	runCmd.Flags().String("data-dir", "", "Directory for the file store (default .loom/sessions)")
	runCmd.Flags().String("redis-addr", "", "Redis address (default localhost:6379)")
	runCmd.Flags().Int("redis-db", 0, "Redis database number")
	runCmd.Flags().String("ollama-url", "", "Ollama OpenAI-compatible endpoint (default http://localhost:11434/v1)")
	runCmd.Flags().String("model", "", "Model name (default mistral)")
	runCmd.Flags().Float64("temperature", 0, "Sampling temperature (default 0.8)")
	runCmd.Flags().Float64("top-p", 0, "Nucleus sampling cutoff (default 0.7)")
	runCmd.Flags().Bool("step", false, "Advance a single node instead of running to completion")
}
