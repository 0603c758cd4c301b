package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpAdapter "github.com/magicprompt/loom/internal/adapters/http"
	"github.com/magicprompt/loom/internal/cli"
	"github.com/magicprompt/loom/internal/logging"
	"github.com/magicprompt/loom/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the loom engine in server mode, exposing sessions and exports as a JSON API over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := gatherRunOptions(cmd)
		port, _ := cmd.Flags().GetString("port")

		logger := logging.New(slog.LevelInfo)
		if opts.Debug {
			logger = logging.New(slog.LevelDebug)
		}

		// Collectors surface on the handler's /metrics endpoint.
		metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
		opts.Hooks = metrics.Hooks()

		invoker, err := cli.NewInvoker(opts)
		if err != nil {
			fmt.Printf("Error initializing model client: %v\n", err)
			os.Exit(1)
		}
		engine, sessions, err := cli.CreateEngine(opts, invoker, logger)
		if err != nil {
			fmt.Printf("Error initializing loom: %v\n", err)
			os.Exit(1)
		}

		handler := httpAdapter.NewHandler(engine, sessions, httpAdapter.WithLogger(logger))

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: handler,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("Starting Loom Server on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("Loom Server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().StringSlice("preset", nil, "Preset ids to merge into the base graph")
	serveCmd.Flags().String("store", "memory", "Session store: memory, file or redis")
	serveCmd.Flags().String("data-dir", "", "Directory for the file store (default .loom/sessions)")
	serveCmd.Flags().String("redis-addr", "", "Redis address (default localhost:6379)")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")
	serveCmd.Flags().String("ollama-url", "", "Ollama OpenAI-compatible endpoint (default http://localhost:11434/v1)")
	serveCmd.Flags().String("model", "", "Model name (default mistral)")
	serveCmd.Flags().Float64("temperature", 0, "Sampling temperature (default 0.8)")
	serveCmd.Flags().Float64("top-p", 0, "Nucleus sampling cutoff (default 0.7)")
}
