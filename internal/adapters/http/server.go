// Package http exposes the engine over a JSON API. State lives in the
// persistence collaborator; every request replays the session, so any
// replica behind a load balancer can serve it.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magicprompt/loom"
	"github.com/magicprompt/loom/internal/logging"
	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/session"
)

// Server wires the engine and session manager into HTTP handlers.
type Server struct {
	engine   *loom.Engine
	sessions *session.Manager
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the router. The engine must be configured with a store;
// the manager must wrap the same store.
func NewHandler(engine *loom.Engine, sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{engine: engine, sessions: sessions, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/graph", s.handleGraph)
	r.Post("/sessions", s.handleCreate)
	r.Get("/sessions", s.handleList)
	r.Get("/sessions/{id}", s.handleGet)
	r.Post("/sessions/{id}/step", s.handleStep)
	r.Post("/sessions/{id}/run", s.handleRun)
	r.Post("/sessions/{id}/export", s.handleExport)
	r.Get("/sessions/{id}/export", s.handleGetExport)
	r.Delete("/sessions/{id}", s.handleDelete)
	return r
}

// stateResponse is the wire shape of a session state. The context snapshot
// is inlined since domain.Context does not serialize itself.
type stateResponse struct {
	*domain.State
	Fields map[string]string `json:"fields"`
}

func toResponse(st *domain.State) stateResponse {
	return stateResponse{State: st, Fields: st.Context.Snapshot()}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

type errorResponse struct {
	Error string         `json:"error"`
	Kind  string         `json:"kind,omitempty"`
	State *stateResponse `json:"state,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error, st *domain.State) {
	resp := errorResponse{Error: err.Error(), Kind: domain.FailureKind(err)}
	if st != nil {
		r := toResponse(st)
		resp.State = &r
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g := s.engine.Graph()
	type edgeDTO struct {
		Source    string `json:"source"`
		Target    string `json:"target"`
		Condition string `json:"condition,omitempty"`
	}
	var edges []edgeDTO
	for _, n := range g.Nodes() {
		for _, e := range g.Outgoing(n.ID) {
			edges = append(edges, edgeDTO{Source: e.Source, Target: e.Target, Condition: e.When.String()})
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"version": g.Version(),
		"presets": g.Presets(),
		"nodes":   g.Nodes(),
		"edges":   edges,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means generated id
	}
	state, err := s.engine.Start(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err, nil)
		return
	}
	s.writeJSON(w, http.StatusCreated, toResponse(state))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.engine.Resume(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(state))
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	s.advance(w, r, s.engine.Step)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.advance(w, r, s.engine.Run)
}

// advance replays the session under its lock, applies move (Step or Run),
// and returns the resulting state. A failed step still returns the state so
// the client sees the failing node, the kind, and the collected fields.
func (s *Server) advance(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, st *domain.State) (*domain.State, error)) {
	id := chi.URLParam(r, "id")
	var out *domain.State
	err := s.sessions.WithLock(r.Context(), id, func(ctx context.Context) error {
		state, err := s.engine.Resume(ctx, id)
		if err != nil {
			return err
		}
		out, err = move(ctx, state)
		return err
	})
	if err != nil {
		s.writeError(w, statusFor(err), err, out)
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(out))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var pkg *domain.ExportPackage
	err := s.sessions.WithLock(r.Context(), id, func(ctx context.Context) error {
		state, err := s.engine.Resume(ctx, id)
		if err != nil {
			return err
		}
		pkg, err = s.engine.Export(ctx, state)
		return err
	})
	if err != nil {
		s.writeError(w, statusFor(err), err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.sessions.WithLock(r.Context(), id, func(ctx context.Context) error {
		return s.sessions.Store().Delete(ctx, id)
	})
	if err != nil {
		s.writeError(w, statusFor(err), err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	row, err := s.sessions.Store().LoadExport(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, row.Package)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExportExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
