// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frostline/scoreboard/internal/adapters/cache"
	"github.com/frostline/scoreboard/internal/domain/model"
	"github.com/frostline/scoreboard/pkg/metrics"
)

// Dependencies required by HTTP handlers. An interface bundle keeps the
// handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// Scores returns the cached view for the requested shape together with
	// its ETag and Last-Modified validators.
	Scores(ctx context.Context, all bool) (cache.Entry, error)

	// Submit persists a sanitized submission and returns the fresh
	// top-10-per-category view.
	Submit(ctx context.Context, sub model.Submission) ([]model.ScoreRecord, error)
}

// Server wires HTTP routes for the scoreboard API.
type Server struct {
	scoresHandler *ScoresHandler
	healthHandler *HealthHandler
	statsHandler  *StatsHandler

	limiter    *clientLimiter
	corsOrigin string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPlayDeadline sets the moment after which GET responses switch to the
// long cache max-age. Zero means play never ends.
func WithPlayDeadline(t time.Time) ServerOption {
	return func(s *Server) { s.scoresHandler.deadline = t }
}

// WithServerClock injects a time source for cache-control decisions.
func WithServerClock(clock func() time.Time) ServerOption {
	return func(s *Server) {
		if clock != nil {
			s.scoresHandler.clock = clock
		}
	}
}

// WithRateLimit bounds submissions per client identity.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) { s.limiter = newClientLimiter(rps, burst) }
}

// WithTrustProxy derives client identity from header instead of the peer
// address.
func WithTrustProxy(header string) ServerOption {
	return func(s *Server) {
		if s.limiter != nil {
			s.limiter.trustHeader = header
		}
	}
}

// WithCORSOrigin sets the allowed frontend origin.
func WithCORSOrigin(origin string) ServerOption {
	return func(s *Server) { s.corsOrigin = origin }
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		scoresHandler: NewScoresHandler(deps),
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux. The /scores pipeline runs
// request-ID, CORS and rate-limit middleware before the core handler.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	scores := MetricsMiddleware(s.scoresHandler.HandleScores, "scores")
	if s.limiter != nil {
		scores = s.limiter.middleware(scores)
	}
	scores = corsMiddleware(scores, s.corsOrigin)
	scores = requestIDMiddleware(scores)
	mux.HandleFunc("/scores", scores)
}

type submitResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Scores  []model.ScoreRecord `json:"scores,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the error body. A nil err yields the generic status text
// so internal detail stays in logs.
func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
