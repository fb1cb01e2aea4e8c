// Package server exposes the dialogue pipeline over HTTP and WebSocket.
//
// REST surface:
//
//   - POST /v1/sessions          — create a session, returns its id
//   - GET  /v1/sessions/{id}/stream — upgrade to the bidirectional event stream
//   - GET  /v1/health            — per-generator health probes
//   - GET  /v1/models            — per-generator capabilities
//   - GET  /v1/personas          — the persona preset table
//
// The WebSocket protocol is implemented in connection.go.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/visema/internal/control"
	"github.com/MrWong99/visema/internal/engine"
	"github.com/MrWong99/visema/internal/observe"
	"github.com/MrWong99/visema/internal/session"
	"github.com/MrWong99/visema/pkg/types"
)

// probeTimeout bounds each generator health probe.
const probeTimeout = 5 * time.Second

// Generator is the slice of a provider the server needs for health and
// capability reporting. All providers implement it regardless of kind.
type Generator interface {
	Health(ctx context.Context) types.HealthStatus
	Capabilities() types.Capabilities
}

// Generators names the providers backing the active pipeline mode. Split mode
// fills LLM, TTS and Avatar; combined mode fills Realtime and Avatar. Nil
// entries are omitted from health and model reports.
type Generators struct {
	LLM      Generator
	TTS      Generator
	Avatar   Generator
	Realtime Generator
}

// byName returns the populated generators keyed by their report name. Clients
// always poll the llm/tts/avatar keys, so in combined mode the realtime
// handle, which serves both text and speech, answers for the llm and tts
// slots.
func (g Generators) byName() map[string]Generator {
	out := make(map[string]Generator, 3)
	if g.LLM != nil {
		out["llm"] = g.LLM
	}
	if g.TTS != nil {
		out["tts"] = g.TTS
	}
	if g.Avatar != nil {
		out["avatar"] = g.Avatar
	}
	if g.Realtime != nil {
		if g.LLM == nil {
			out["llm"] = g.Realtime
		}
		if g.TTS == nil {
			out["tts"] = g.Realtime
		}
	}
	return out
}

// Server routes REST and WebSocket traffic to the registry and engine.
type Server struct {
	registry *session.Registry
	engine   engine.Engine
	gens     Generators
	metrics  *observe.Metrics
}

// New assembles a Server. metrics may be nil, in which case the package-level
// default instruments are used.
func New(reg *session.Registry, eng engine.Engine, gens Generators, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		registry: reg,
		engine:   eng,
		gens:     gens,
		metrics:  metrics,
	}
}

// Register mounts all routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /v1/personas", s.handlePersonas)
}

// createSessionRequest is the POST /v1/sessions body. All fields are
// optional; omitted halves inherit the persona defaults.
type createSessionRequest struct {
	PersonaID string                  `json:"persona_id"`
	Emotion   *types.EmotionControl   `json:"emotion"`
	Character *types.CharacterControl `json:"character"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
			return
		}
	}
	if req.PersonaID == "" {
		req.PersonaID = types.DefaultPersonaID
	}

	sess, err := s.registry.Create(req.PersonaID, req.Emotion, req.Character)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.ActiveSessions.Add(r.Context(), 1)
	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id": sess.ID,
		"persona":    sess.PersonaName,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	gens := s.gens.byName()

	type probe struct {
		name   string
		status types.HealthStatus
	}
	results := make(chan probe, len(gens))

	var wg sync.WaitGroup
	for name, g := range gens {
		wg.Add(1)
		go func(name string, g Generator) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			results <- probe{name: name, status: g.Health(ctx)}
		}(name, g)
	}
	wg.Wait()
	close(results)

	report := make(map[string]types.HealthStatus, len(gens))
	healthy := true
	for p := range results {
		report[p.name] = p.status
		healthy = healthy && p.status.Healthy
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"mode":       string(s.engine.Mode()),
		"generators": report,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	report := make(map[string]types.Capabilities)
	for name, g := range s.gens.byName() {
		report[name] = g.Capabilities()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":       string(s.engine.Mode()),
		"generators": report,
	})
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"personas": control.List(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
