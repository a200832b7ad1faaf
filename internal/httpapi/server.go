// Package httpapi exposes the session manager over a JSON HTTP API.
//
// Routes:
//
//	POST /v1/sessions                      create and start a session
//	GET  /v1/sessions/{id}                 session status snapshot
//	POST /v1/sessions/{id}/utterances      submit a recognized utterance
//	POST /v1/sessions/{id}/finalize        finalize and fetch the report
//	POST /v1/sessions/{id}/abandon         abandon the session
//	GET  /healthz                          liveness probe
//	GET  /metrics                          Prometheus scrape endpoint
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/cam-hm/opik-career-agent/internal/app"
	"github.com/cam-hm/opik-career-agent/internal/interview"
	"github.com/cam-hm/opik-career-agent/internal/observe"
)

// maxBodyBytes bounds request bodies; utterances are short by nature.
const maxBodyBytes = 1 << 20

// Server handles the HTTP API. Create with [NewServer], mount via [Routes].
type Server struct {
	manager *app.Manager
	metrics *observe.Metrics
}

// NewServer creates a Server over the given session manager. metrics may be
// nil to disable request instrumentation.
func NewServer(manager *app.Manager, metrics *observe.Metrics) *Server {
	return &Server{manager: manager, metrics: metrics}
}

// Routes builds the chi router with all endpoints mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observeRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Post("/utterances", s.handleUtterance)
			r.Post("/finalize", s.handleFinalize)
			r.Post("/abandon", s.handleAbandon)
		})
	})
	return r
}

// observeRequests records per-route request latency.
func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				observe.Attr("method", r.Method),
				observe.Attr("path", pattern),
			))
	})
}

type createSessionRequest struct {
	CandidateID string `json:"candidate_id"`
	TargetRole  string `json:"target_role"`
}

type sessionResponse struct {
	SessionID   string     `json:"session_id"`
	CandidateID string     `json:"candidate_id,omitempty"`
	TargetRole  string     `json:"target_role,omitempty"`
	Status      string     `json:"status"`
	StageID     string     `json:"stage_id"`
	StageIndex  int        `json:"stage_index"`
	Tier        string     `json:"tier"`
	TurnCount   int        `json:"turn_count"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toSessionResponse(v interview.StatusView) sessionResponse {
	resp := sessionResponse{
		SessionID:   v.SessionID,
		CandidateID: v.CandidateID,
		TargetRole:  v.TargetRole,
		Status:      string(v.Status),
		StageID:     v.StageID,
		StageIndex:  v.StageIndex,
		Tier:        string(v.Tier),
		TurnCount:   v.TurnCount,
		CreatedAt:   v.CreatedAt,
	}
	if !v.CompletedAt.IsZero() {
		t := v.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

type utteranceRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	Seq      int    `json:"seq"`
	Status   string `json:"status"`
	Response string `json:"response,omitempty"`
	StageID  string `json:"stage_id"`
	Tier     string `json:"tier"`

	// Audio is base64-encoded in JSON; absent for text-only turns.
	Audio       []byte `json:"audio,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

func toTurnResponse(t interview.Turn) turnResponse {
	resp := turnResponse{
		Seq:      t.Seq,
		Status:   string(t.Status),
		Response: t.Response,
		StageID:  t.StageID,
		Tier:     string(t.Tier),
	}
	if t.Audio != nil {
		resp.Audio = t.Audio.Data
		resp.AudioFormat = t.Audio.Format
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := s.manager.CreateSession(r.Context(), req.CandidateID, req.TargetRole)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(view))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Status(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(view))
}

func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	turn, err := s.manager.SubmitUtterance(r.Context(), chi.URLParam(r, "sessionID"), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResponse(turn))
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Finalize(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Abandon(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes the JSON request body into dst, rejecting unknown fields.
// On failure it writes a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps engine errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var ce *interview.CompositionError
	switch {
	case errors.Is(err, app.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, interview.ErrTurnInProgress),
		errors.Is(err, interview.ErrAlreadyStarted),
		errors.Is(err, interview.ErrNotStarted):
		status = http.StatusConflict
	case errors.Is(err, interview.ErrSessionClosed):
		status = http.StatusGone
	case errors.As(err, &ce):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
