// Package server exposes the chunk pipeline over HTTP and websocket.
//
// Routes:
//
//	POST /v1/sessions/{session}/chunks   process one audio chunk
//	POST /v1/sessions/{session}/reset    clear the session's context window
//	GET  /v1/sessions/{session}/context  inspect the session's window
//	GET  /v1/sessions/{session}/stream   websocket chunk streaming
//	POST /v1/transcribe                  transcribe one payload, no session
//	POST /v1/analyze                     analyze caller-supplied text
//	GET  /healthz, /readyz, /metrics     operational endpoints
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callwarden/callwarden/internal/chunk"
	"github.com/callwarden/callwarden/internal/health"
	"github.com/callwarden/callwarden/internal/observe"
	"github.com/callwarden/callwarden/internal/pipeline"
	"github.com/callwarden/callwarden/internal/session"
)

// ChunkRequest is the body of POST /v1/sessions/{session}/chunks and of each
// websocket chunk frame.
type ChunkRequest struct {
	// ChunkID is the caller-assigned chunk identifier, echoed in the result.
	ChunkID uint64 `json:"chunk_id"`

	// Audio is the base64-encoded audio payload.
	Audio string `json:"audio"`
}

// TranscribeRequest is the body of POST /v1/transcribe.
type TranscribeRequest struct {
	// Audio is the base64-encoded audio payload.
	Audio string `json:"audio"`
}

// TranscribeResponse is the body returned by POST /v1/transcribe.
type TranscribeResponse struct {
	Transcript string `json:"transcript"`
	Silent     bool   `json:"silent"`
}

// AnalyzeRequest is the body of POST /v1/analyze.
type AnalyzeRequest struct {
	Transcript string `json:"transcript"`
	Context    string `json:"context,omitempty"`
}

// ErrorResponse is the body returned for any failed request.
type ErrorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	// Stage names the pipeline stage that failed, when the failure came
	// out of chunk processing. Empty for transport-level errors.
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// fragmentView is one window entry on the context inspection endpoint.
type fragmentView struct {
	Text       string    `json:"text"`
	Sequence   uint64    `json:"sequence"`
	ReceivedAt time.Time `json:"received_at"`
}

// contextResponse is the body of GET /v1/sessions/{session}/context.
type contextResponse struct {
	SessionID string         `json:"session_id"`
	Context   string         `json:"context"`
	Fragments []fragmentView `json:"fragments"`
	Stats     statsView      `json:"stats"`
	CreatedAt time.Time      `json:"created_at"`
}

type statsView struct {
	ChunkCount    uint64 `json:"chunk_count"`
	EvictedTotal  uint64 `json:"evicted_total"`
	LastRiskLevel string `json:"last_risk_level,omitempty"`
}

// Server routes HTTP and websocket traffic into the chunk pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	registry *session.Registry
	health   *health.Handler
	metrics  *observe.Metrics
}

// Option configures a [Server].
type Option func(*Server)

// WithCheckers registers readiness checkers served on /readyz.
func WithCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.health = health.New(checkers...) }
}

// WithMetrics overrides the metrics sink, primarily for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server. The pipeline and registry are required.
func New(p *pipeline.Pipeline, registry *session.Registry, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline is required")
	}
	if registry == nil {
		return nil, errors.New("session registry is required")
	}
	s := &Server{
		pipeline: p,
		registry: registry,
		health:   health.New(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the full route tree wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions/{session}/chunks", s.handleChunk)
	mux.HandleFunc("POST /v1/sessions/{session}/reset", s.handleReset)
	mux.HandleFunc("GET /v1/sessions/{session}/context", s.handleContext)
	mux.HandleFunc("GET /v1/sessions/{session}/stream", s.handleStream)
	mux.HandleFunc("POST /v1/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return cors(observe.Middleware(s.metrics)(mux))
}

// cors admits browser clients from any origin and answers preflight
// requests. Outermost wrapper so preflights never reach the mux.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")

	var req ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return
	}

	res, err := s.pipeline.Process(r.Context(), sessionID, req.ChunkID, req.Audio)
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	sess := s.registry.Get(sessionID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "", "session not found")
		return
	}

	sess.Lock()
	sess.Window.Reset()
	sess.Touch(time.Now())
	sess.Unlock()

	observe.Logger(r.Context()).Info("session window reset", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	sess := s.registry.Get(sessionID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "", "session not found")
		return
	}

	sess.Lock()
	fragments := sess.Window.Fragments()
	flattened := sess.Window.Flatten()
	stats := sess.Stats
	createdAt := sess.CreatedAt
	sess.Unlock()

	views := make([]fragmentView, len(fragments))
	for i, f := range fragments {
		views[i] = fragmentView{Text: f.Text, Sequence: f.Sequence, ReceivedAt: f.ReceivedAt}
	}

	writeJSON(w, http.StatusOK, contextResponse{
		SessionID: sessionID,
		Context:   flattened,
		Fragments: views,
		Stats: statsView{
			ChunkCount:    stats.ChunkCount,
			EvictedTotal:  stats.EvictedTotal,
			LastRiskLevel: stats.LastRiskLevel,
		},
		CreatedAt: createdAt,
	})
}

// handleTranscribe transcribes one standalone payload. No session is created
// and no context window is touched.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req TranscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return
	}

	transcript, err := s.pipeline.Transcribe(r.Context(), req.Audio)
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TranscribeResponse{
		Transcript: transcript.Text,
		Silent:     transcript.IsEmpty(),
	})
}

// handleAnalyze runs risk analysis over caller-supplied text, bypassing the
// session windows entirely.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "", "transcript is required")
		return
	}

	verdict, err := s.pipeline.Analyze(r.Context(), req.Transcript, req.Context)
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// writeStageError maps a pipeline failure to an HTTP status: decode failures
// are the client's fault, provider failures are upstream trouble.
func writeStageError(w http.ResponseWriter, err error) {
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}

	status := http.StatusBadGateway
	if se.Stage == pipeline.StageDecode {
		status = http.StatusBadRequest
	}
	var de *chunk.DecodeError
	if errors.As(err, &de) {
		status = http.StatusBadRequest
	}
	writeError(w, status, string(se.Stage), se.Err.Error())
}

func writeError(w http.ResponseWriter, status int, stage, message string) {
	writeJSON(w, status, ErrorResponse{Error: errorDetail{Stage: stage, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
