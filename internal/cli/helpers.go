// Package cli holds the shared wiring behind the loom commands: engine and
// store construction, logging setup, and the interactive session loop.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/magicprompt/loom/internal/logging"
	"github.com/magicprompt/loom/pkg/domain"
	"golang.org/x/term"
)

// RunOptions gathers everything the commands configure via flags.
type RunOptions struct {
	GraphDir  string // empty means the embedded default graph
	SessionID string
	Presets   []string

	Store     string // memory, file or redis
	DataDir   string
	RedisAddr string
	RedisDB   int

	OllamaURL   string
	Model       string
	Temperature float64
	TopP        float64

	StepMode bool // advance one node per invocation instead of running to completion
	Debug    bool
	Quiet    bool

	// Hooks are merged with the debug hooks; the serve command feeds
	// Prometheus collectors through here.
	Hooks domain.LifecycleHooks
}

// createLogger configures the application logger. In debug mode it writes to
// stderr so it stays separate from the stdout flow UI.
func createLogger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.NewNop()
}

// isTerminal reports whether stdout is an interactive terminal. Rendering
// falls back to plain text when piping.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// printSystemMessage prints a standardized system message to stdout.
func printSystemMessage(format string, args ...any) {
	fmt.Printf(">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Enter Node", "node_id", e.NodeID, "layer", e.Layer)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Leave Node", "node_id", e.NodeID)
		},
		OnLLMCall: func(ctx context.Context, e *domain.LLMEvent) {
			logger.Debug("LLM Call", "node_id", e.NodeID, "attempt", e.Attempt)
		},
		OnLLMReturn: func(ctx context.Context, e *domain.LLMEvent) {
			if e.IsError {
				logger.Debug("LLM Return (Error)", "node_id", e.NodeID, "duration", e.Duration)
			} else {
				logger.Debug("LLM Return (Success)", "node_id", e.NodeID, "duration", e.Duration)
			}
		},
		OnBranch: func(ctx context.Context, e *domain.BranchEvent) {
			logger.Debug("Branch", "node_id", e.NodeID, "targets", e.Targets)
		},
		OnFailure: func(ctx context.Context, e *domain.FailureEvent) {
			logger.Debug("Failure", "node_id", e.NodeID, "kind", e.Kind)
		},
	}
}
