// Package mcp exposes the engine as a Model Context Protocol server, so MCP
// clients can drive prompt-building sessions as tools.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/magicprompt/loom"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/session"
)

// SessionResponse is the unified structured result across session tools.
type SessionResponse struct {
	State    *domain.State     `json:"state" jsonschema_description:"The current traversal state"`
	Fields   map[string]string `json:"fields" jsonschema_description:"Collected context fields"`
	Terminal bool              `json:"terminal" jsonschema_description:"Whether the session has finished"`
}

// Server wraps the engine and exposes it over MCP.
type Server struct {
	engine    *loom.Engine
	sessions  *session.Manager
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server over an engine with a configured store.
func NewServer(engine *loom.Engine, sessions *session.Manager) *Server {
	s := &Server{
		engine:    engine,
		sessions:  sessions,
		mcpServer: server.NewMCPServer("loom-mcp", strings.TrimSpace(loom.Version)),
	}
	s.registerTools()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server over Server-Sent Events on the given port and
// shuts down gracefully when the context is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	startTool := mcp.NewTool("start_session",
		mcp.WithDescription("Start a new prompt-building session at the graph entry node."),
		mcp.WithString("session_id", mcp.Description("Session id to use (optional; generated when omitted)")),
		mcp.WithOutputSchema[SessionResponse](),
	)
	s.mcpServer.AddTool(startTool, mcp.NewStructuredToolHandler(s.handleStart))

	advanceTool := mcp.NewTool("advance_session",
		mcp.WithDescription("Advance a session by one step, or run it to completion."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithBoolean("to_completion", mcp.Description("Run until terminal instead of a single step")),
		mcp.WithOutputSchema[SessionResponse](),
	)
	s.mcpServer.AddTool(advanceTool, mcp.NewStructuredToolHandler(s.handleAdvance))

	getTool := mcp.NewTool("get_session",
		mcp.WithDescription("Inspect the current state of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[SessionResponse](),
	)
	s.mcpServer.AddTool(getTool, mcp.NewStructuredToolHandler(s.handleGet))

	exportTool := mcp.NewTool("export_session",
		mcp.WithDescription("Assemble and store the bilingual export package for a terminated session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[domain.ExportPackage](),
	)
	s.mcpServer.AddTool(exportTool, mcp.NewStructuredToolHandler(s.handleExport))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the loaded graph definition for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		g := s.engine.Graph()
		var b strings.Builder
		fmt.Fprintf(&b, "version: %s\n", g.Version())
		for _, n := range g.Nodes() {
			fmt.Fprintf(&b, "%s (%s) collects %s\n", n.ID, n.Layer, strings.Join(n.Collect, ", "))
			for _, e := range g.Outgoing(n.ID) {
				cond := e.When.String()
				if cond == "" {
					cond = "always"
				}
				fmt.Fprintf(&b, "  -> %s [%s]\n", e.Target, cond)
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	})
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	state, err := s.engine.Start(ctx, id)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return toResponse(state), nil
}

func (s *Server) handleAdvance(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		return SessionResponse{}, fmt.Errorf("session_id is required")
	}
	toCompletion, _ := args["to_completion"].(bool)

	var out *domain.State
	err := s.sessions.WithLock(ctx, id, func(ctx context.Context) error {
		state, err := s.engine.Resume(ctx, id)
		if err != nil {
			return err
		}
		if toCompletion {
			out, err = s.engine.Run(ctx, state)
		} else {
			out, err = s.engine.Step(ctx, state)
		}
		return err
	})
	if err != nil {
		if out != nil {
			// Surface the failing node and kind alongside the error.
			return toResponse(out), nil
		}
		return SessionResponse{}, fmt.Errorf("advance failed: %w", err)
	}
	return toResponse(out), nil
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		return SessionResponse{}, fmt.Errorf("session_id is required")
	}
	state, err := s.engine.Resume(ctx, id)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("get failed: %w", err)
	}
	return toResponse(state), nil
}

func (s *Server) handleExport(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (domain.ExportPackage, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		return domain.ExportPackage{}, fmt.Errorf("session_id is required")
	}
	var pkg *domain.ExportPackage
	err := s.sessions.WithLock(ctx, id, func(ctx context.Context) error {
		state, err := s.engine.Resume(ctx, id)
		if err != nil {
			return err
		}
		pkg, err = s.engine.Export(ctx, state)
		return err
	})
	if err != nil {
		return domain.ExportPackage{}, fmt.Errorf("export failed: %w", err)
	}
	return *pkg, nil
}

func toResponse(state *domain.State) SessionResponse {
	return SessionResponse{
		State:    state,
		Fields:   state.Context.Snapshot(),
		Terminal: state.Terminal(),
	}
}
