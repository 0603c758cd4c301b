package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/magicprompt/loom"
	"github.com/magicprompt/loom/internal/presentation/tui"
	"github.com/magicprompt/loom/pkg/domain"
)

// RunSession drives one session: start or resume, advance, and on completion
// assemble and print the bilingual export package.
func RunSession(ctx context.Context, opts RunOptions) error {
	logger := createLogger(opts.Debug)

	invoker, err := NewInvoker(opts)
	if err != nil {
		return fmt.Errorf("error initializing model client: %w", err)
	}
	engine, sessions, err := CreateEngine(opts, invoker, logger)
	if err != nil {
		return err
	}

	if !opts.Quiet && isTerminal() {
		tui.PrintBanner()
	}

	state, resumed, err := loadOrStart(ctx, engine, opts.SessionID)
	if err != nil {
		return err
	}
	if !opts.Quiet {
		if resumed {
			printSystemMessage("Resuming session '%s' at '%s'.", state.SessionID, state.Current)
		} else {
			printSystemMessage("Session '%s' started at '%s'.", state.SessionID, state.Current)
		}
	}

	err = sessions.WithLock(ctx, state.SessionID, func(ctx context.Context) error {
		var stepErr error
		if opts.StepMode {
			state, stepErr = engine.Step(ctx, state)
		} else {
			state, stepErr = engine.Run(ctx, state)
		}
		return stepErr
	})
	if err != nil {
		reportFailure(state, err, opts.Quiet)
		return err
	}

	if !opts.Quiet {
		printProgress(engine.Graph(), state)
	}
	if !state.Terminal() {
		return nil
	}

	pkg, err := engine.Export(ctx, state)
	if err != nil {
		if errors.Is(err, domain.ErrExportExists) {
			printSystemMessage("Export already written for session '%s'.", state.SessionID)
			return nil
		}
		return fmt.Errorf("error assembling export: %w", err)
	}
	printExport(pkg, opts.Quiet)
	return nil
}

// loadOrStart resumes an existing session or starts a fresh one.
func loadOrStart(ctx context.Context, engine *loom.Engine, sessionID string) (*domain.State, bool, error) {
	if sessionID != "" {
		state, err := engine.Resume(ctx, sessionID)
		if err == nil {
			return state, true, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, false, err
		}
	}
	state, err := engine.Start(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return state, false, nil
}

func reportFailure(state *domain.State, err error, quiet bool) {
	if quiet {
		return
	}
	if state != nil && state.Failure != nil {
		printSystemMessage("Failed at '%s' (%s): %s", state.Failure.NodeID, state.Failure.Kind, state.Failure.Message)
		if domain.Retryable(err) {
			printSystemMessage("The failure is retryable; run the same session again to continue.")
		}
		return
	}
	printSystemMessage("Failed: %v", err)
}

// printProgress shows one summary line per visited node that declares a
// summary key, then the overall position.
func printProgress(g *domain.Graph, state *domain.State) {
	for _, rec := range state.Path {
		node := g.Node(rec.NodeID)
		if node == nil || node.SummaryKey == "" {
			continue
		}
		if v, ok := rec.Fields[node.SummaryKey]; ok && v != "" {
			printSystemMessage("%s: %s", node.SummaryKey, v)
		}
	}
	switch state.Status {
	case domain.StatusTerminated:
		printSystemMessage("Finished after %d steps.", len(state.Path))
	case domain.StatusAtNode:
		printSystemMessage("Paused at '%s' after %d steps.", state.Current, len(state.Path))
	}
}

// printExport renders the package as markdown through glamour when stdout is
// a terminal, and as plain text otherwise.
func printExport(pkg *domain.ExportPackage, quiet bool) {
	var b strings.Builder
	if !quiet {
		fmt.Fprintf(&b, "# Session %s\n\n", pkg.SessionID)
	}
	b.WriteString("## RU\n\n")
	b.WriteString(pkg.RU)
	b.WriteString("\n## EN\n\n")
	b.WriteString(pkg.EN)

	if isTerminal() {
		render := tui.NewRenderer()
		if out, err := render(b.String()); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(b.String())
}
