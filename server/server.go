// Package server exposes editor sessions over HTTP. Each session is a
// scenario player: clients create one from a layout document, post steps to
// it and read back snapshots.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"facette.io/natsort"
	"github.com/amp-labs/diagramfsm/configs"
	"github.com/amp-labs/diagramfsm/diagram"
	"github.com/amp-labs/diagramfsm/editor"
	"github.com/amp-labs/diagramfsm/logger"
	"github.com/amp-labs/diagramfsm/scenario"
	"github.com/amp-labs/diagramfsm/statemachine/visualizer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// ErrUnknownSession is reported for session ids that do not exist.
var ErrUnknownSession = errors.New("unknown session")

// Server holds the live sessions.
type Server struct {
	opts []editor.Option

	mu       sync.RWMutex
	sessions map[string]*scenario.Player
}

// New returns a Server whose editors get opts.
func New(opts ...editor.Option) *Server {
	return &Server{
		opts:     opts,
		sessions: make(map[string]*scenario.Player),
	}
}

// Handler returns the routes of s.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/configs", s.listConfigs)
	r.Get("/configs/{name}/graph", s.graphConfig)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/{id}", s.getSession)
		r.Delete("/{id}", s.deleteSession)
		r.Post("/{id}/steps", s.postSteps)
	})

	return r
}

// Close destroys every session.
func (s *Server) Close(ctx context.Context) {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*scenario.Player)
	s.mu.Unlock()

	for _, player := range sessions {
		player.Close(ctx)
	}
}

// SessionView is the JSON form of a session.
type SessionView struct {
	editor.Snapshot

	Edges []diagram.Edge `json:"edges"`
}

// StepsResponse answers a batch of steps.
type StepsResponse struct {
	Applied  int         `json:"applied"`
	Failures []string    `json:"failures,omitempty"`
	Error    string      `json:"error,omitempty"`
	Session  SessionView `json:"session"`
}

func view(player *scenario.Player) SessionView {
	edges := player.Scene().Edges()
	if edges == nil {
		edges = []diagram.Edge{}
	}

	return SessionView{Snapshot: player.Editor().Snapshot(), Edges: edges}
}

func (s *Server) player(id string) (*scenario.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	player, ok := s.sessions[id]

	return player, ok
}

func (s *Server) listConfigs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, configs.Loader{}.ListAvailable())
}

func (s *Server) graphConfig(w http.ResponseWriter, r *http.Request) {
	config, err := configs.Load(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)

		return
	}

	graph, err := visualizer.GenerateMermaid(config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, graph)
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))

	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	natsort.Sort(ids)

	writeJSON(w, http.StatusOK, ids)
}

// createSession accepts a scenario document (JSON or YAML) and places its
// nodes. Steps in the document are run right away.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	sc, err := scenario.ParseSetup(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	ctx := r.Context()

	player, err := scenario.Start(ctx, sc, s.opts...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	id := player.Editor().Session()

	s.mu.Lock()
	s.sessions[id] = player
	s.mu.Unlock()

	logger.Get(logger.WithSession(ctx, id)).Info("Session created", "nodes", len(sc.Nodes))

	resp := apply(logger.WithSession(ctx, id), player, sc.Steps)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	player, ok := s.player(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownSession)

		return
	}

	writeJSON(w, http.StatusOK, view(player))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	player, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownSession)

		return
	}

	player.Close(logger.WithSession(r.Context(), id))
	w.WriteHeader(http.StatusNoContent)
}

// postSteps accepts one step object or an array of them.
func (s *Server) postSteps(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	player, ok := s.player(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownSession)

		return
	}

	var body any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	var raws []any

	switch v := body.(type) {
	case []any:
		raws = v
	case map[string]any:
		raws = []any{v}
	default:
		writeError(w, http.StatusBadRequest, scenario.ErrInvalidScenario)

		return
	}

	steps := make([]scenario.Step, 0, len(raws))

	for _, raw := range raws {
		m, ok := raw.(map[string]any)
		if !ok {
			writeError(w, http.StatusBadRequest, scenario.ErrInvalidScenario)

			return
		}

		step, err := scenario.DecodeStep(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)

			return
		}

		steps = append(steps, step)
	}

	resp := apply(logger.WithSession(r.Context(), id), player, steps)

	status := http.StatusOK
	if resp.Error != "" {
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, resp)
}

func apply(ctx context.Context, player *scenario.Player, steps []scenario.Step) StepsResponse {
	var resp StepsResponse

	for _, step := range steps {
		failures, err := player.Apply(ctx, step)
		if err != nil {
			resp.Error = err.Error()

			break
		}

		resp.Failures = append(resp.Failures, failures...)
		resp.Applied++
	}

	resp.Session = view(player)

	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requestLogger logs one line per request at debug level, warn for 5xx.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log := logger.Get(r.Context()).With(
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)

		if ww.Status() >= http.StatusInternalServerError {
			log.Warn("HTTP request failed")

			return
		}

		log.Debug("HTTP request served")
	})
}
