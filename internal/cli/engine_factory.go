package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/magicprompt/loom"
	"github.com/magicprompt/loom/graphs"
	"github.com/magicprompt/loom/pkg/adapters/file"
	"github.com/magicprompt/loom/pkg/adapters/memory"
	"github.com/magicprompt/loom/pkg/adapters/ollama"
	rds "github.com/magicprompt/loom/pkg/adapters/redis"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/ports"
	"github.com/magicprompt/loom/pkg/session"
)

// createSource picks the graph source: a directory on disk, or the embedded
// default graph when no directory was given.
func createSource(opts RunOptions) ports.GraphSource {
	if opts.GraphDir == "" {
		return graphs.Default()
	}
	return file.NewSource(opts.GraphDir)
}

// createStore builds the session store selected by --store.
func createStore(opts RunOptions) (ports.SessionStore, error) {
	switch opts.Store {
	case "", "memory":
		return memory.NewStore(), nil
	case "file":
		dir := opts.DataDir
		if dir == "" {
			dir = filepath.Join(".loom", "sessions")
		}
		return file.NewStore(dir), nil
	case "redis":
		addr := opts.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		return rds.New(addr, "", opts.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown store %q (supported: memory, file, redis)", opts.Store)
	}
}

// createSessions builds the session manager, with distributed locking when
// the store is shared between processes.
func createSessions(opts RunOptions, store ports.SessionStore, logger *slog.Logger) *session.Manager {
	mgrOpts := []session.Option{session.WithLogger(logger)}
	if opts.Store == "redis" {
		addr := opts.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client := rds.NewClient(addr, "", opts.RedisDB)
		mgrOpts = append(mgrOpts, session.WithLocker(rds.NewLocker(client, "loom")))
	}
	return session.NewManager(store, mgrOpts...)
}

// NewInvoker builds the Ollama-backed invoker from the flags.
func NewInvoker(opts RunOptions) (ports.Invoker, error) {
	cfg := ollama.DefaultConfig()
	if opts.OllamaURL != "" {
		cfg.ServerURL = opts.OllamaURL
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.Temperature > 0 {
		cfg.Temperature = opts.Temperature
	}
	if opts.TopP > 0 {
		cfg.TopP = opts.TopP
	}
	return ollama.New(cfg)
}

// CreateEngine initializes a loom engine with standard CLI conventions.
func CreateEngine(opts RunOptions, invoker ports.Invoker, logger *slog.Logger) (*loom.Engine, *session.Manager, error) {
	store, err := createStore(opts)
	if err != nil {
		return nil, nil, err
	}

	hooks := opts.Hooks
	if opts.Debug {
		hooks = domain.MergeHooks(hooks, createDebugHooks(logger))
	}
	engineOpts := []loom.Option{
		loom.WithLogger(logger),
		loom.WithStore(store),
		loom.WithPresets(opts.Presets...),
		loom.WithLifecycleHooks(hooks),
	}

	engine, err := loom.New(createSource(opts), invoker, engineOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, createSessions(opts, store, logger), nil
}
