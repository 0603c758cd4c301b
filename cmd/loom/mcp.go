package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magicprompt/loom/internal/cli"
	"github.com/magicprompt/loom/internal/logging"
	"github.com/magicprompt/loom/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the loom engine as an MCP Server, so AI agents can drive
prompt-building sessions as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := gatherRunOptions(cmd)
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		logger := logging.New(slog.LevelDebug)
		slog.SetDefault(logger)

		invoker, err := cli.NewInvoker(opts)
		if err != nil {
			log.Fatalf("Error initializing model client: %v", err)
		}
		engine, sessions, err := cli.CreateEngine(opts, invoker, logger)
		if err != nil {
			log.Fatalf("Error initializing loom: %v", err)
		}

		srv := mcp.NewServer(engine, sessions)

		switch transport {
		case "stdio":
			// Keep JSON-RPC on stdout clean.
			log.SetOutput(os.Stderr)
			slog.Info("Starting Loom MCP Server (Stdio)...")
			if err := srv.ServeStdio(); err != nil {
				slog.Error("MCP Server execution failed", "err", err)
				os.Exit(1)
			}
		case "sse":
			slog.Info("Starting Loom MCP Server (SSE)", "port", port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil {
				if err != http.ErrServerClosed {
					slog.Error("MCP Server execution failed", "err", err)
					os.Exit(1)
				}
			}
			slog.Info("MCP Server stopped gracefully")
		default:
			log.Fatalf("Unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().StringSlice("preset", nil, "Preset ids to merge into the base graph")
	mcpCmd.Flags().String("store", "memory", "Session store: memory, file or redis")
	mcpCmd.Flags().String("data-dir", "", "Directory for the file store (default .loom/sessions)")
	mcpCmd.Flags().String("redis-addr", "", "Redis address (default localhost:6379)")
	mcpCmd.Flags().Int("redis-db", 0, "Redis database number")
	mcpCmd.Flags().String("ollama-url", "", "Ollama OpenAI-compatible endpoint (default http://localhost:11434/v1)")
	mcpCmd.Flags().String("model", "", "Model name (default mistral)")
}
