// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/frostline/scoreboard/internal/adapters/cache"
	"github.com/frostline/scoreboard/internal/adapters/repository"
	service "github.com/frostline/scoreboard/internal/app"
	"github.com/frostline/scoreboard/internal/domain/model"
	"github.com/frostline/scoreboard/internal/domain/sanitize"
	"github.com/frostline/scoreboard/pkg/logger"
	"github.com/frostline/scoreboard/pkg/metrics"
)

// Score bounds accepted by POST /scores.
const (
	MinScore = 0
	MaxScore = 1_000_000
)

// Cache max-age in seconds: short while the game is playable, long after.
const (
	maxAgePlayable = 30
	maxAgeEnded    = 3600
)

// ScoresHandler serves GET and POST /scores.
type ScoresHandler struct {
	deps     Dependencies
	deadline time.Time
	clock    func() time.Time
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies) *ScoresHandler {
	return &ScoresHandler{
		deps:  deps,
		clock: time.Now,
	}
}

// HandleScores dispatches by method.
func (h *ScoresHandler) HandleScores(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		http.NotFound(w, r)
	}
}

// handleGet serves the leaderboard with conditional-request support.
func (h *ScoresHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_scores"

	all := r.URL.Query().Get("all") == "true"
	entry, err := h.deps.Scores(r.Context(), all)
	if err != nil {
		logger.Get().Error(r.Context(), "leaderboard read failed", logger.Error(Wrap(op, err)))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, must-revalidate", h.maxAge()))
	w.Header().Set("ETag", entry.ETag)
	w.Header().Set("Last-Modified", entry.LastModified.UTC().Format(http.TimeFormat))

	if notModified(r, entry) {
		metrics.RecordNotModified()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Payload)
}

// maxAge picks the cache TTL: data churns while play is open and goes quiet
// after the deadline.
func (h *ScoresHandler) maxAge() int {
	if h.deadline.IsZero() || h.clock().Before(h.deadline) {
		return maxAgePlayable
	}
	return maxAgeEnded
}

// notModified evaluates If-None-Match (preferred) and If-Modified-Since
// against the entry's validators.
func notModified(r *http.Request, entry cache.Entry) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		for _, candidate := range strings.Split(inm, ",") {
			candidate = strings.TrimSpace(candidate)
			candidate = strings.TrimPrefix(candidate, "W/")
			if candidate == "*" || candidate == entry.ETag {
				return true
			}
		}
		return false
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		// HTTP dates carry second precision.
		return !entry.LastModified.Truncate(time.Second).After(since)
	}
	return false
}

// submitRequest tolerates numbers arriving as JSON numbers or numeric
// strings; the browser clients are not consistent about it.
type submitRequest struct {
	Name  *string `json:"name"`
	Score any     `json:"score"`
	Time  any     `json:"time"`
}

// handlePost validates, sanitizes and persists a submission.
func (h *ScoresHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	ctx := r.Context()
	log := logger.Get()

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var req submitRequest
	if err := dec.Decode(&req); err != nil {
		metrics.RecordSubmissionRejected("body")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if req.Name == nil || req.Score == nil {
		metrics.RecordSubmissionRejected("missing_field")
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("name and score are required")))
		return
	}

	rawName := *req.Name
	name := sanitize.Name(rawName)
	if name == "" {
		metrics.RecordSubmissionRejected("empty_name")
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("name is empty after sanitization")))
		return
	}
	if sanitize.Suspicious(rawName) || sanitize.Suspicious(name) {
		metrics.RecordSuspiciousName()
		log.Warn(ctx, "suspicious name rejected", logger.String("name", rawName))
		writeError(w, http.StatusBadRequest, "bad_request",
			WrapKind(op, ErrBadRequest, errors.New("name contains disallowed content")))
		return
	}

	score, err := parseScore(req.Score)
	if err != nil {
		metrics.RecordSubmissionRejected("score")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	sub := model.Submission{
		Name:  name,
		Score: score,
		// Unparseable time values are dropped, not rejected.
		Time: parseGameTime(req.Time),
	}

	scores, err := h.deps.Submit(ctx, sub)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicate):
			metrics.RecordSubmissionDuplicate()
			writeJSON(w, http.StatusTooManyRequests, submitResponse{
				Success: false,
				Message: "duplicate submission, try again later",
			})
		case errors.Is(err, repository.ErrLockTimeout):
			log.Warn(ctx, "store contended", logger.Error(Wrap(op, err)))
			writeError(w, http.StatusServiceUnavailable, "busy", errors.New("store busy, retry later"))
		default:
			log.Error(ctx, "submission failed", logger.Error(Wrap(op, err)))
			writeError(w, http.StatusInternalServerError, "internal_error", nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Success: true,
		Message: "score recorded",
		Scores:  scores,
	})
}

// parseScore coerces a JSON number or numeric string into a bounded int.
func parseScore(v any) (int, error) {
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	if n < MinScore || n > MaxScore {
		return 0, fmt.Errorf("score must be an integer between %d and %d", MinScore, MaxScore)
	}
	return n, nil
}

// parseGameTime coerces the optional game-duration value. Anything that does
// not parse as a non-negative integer is treated as absent.
func parseGameTime(v any) *int {
	if v == nil {
		return nil
	}
	n, err := toInt(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil {
			return 0, err
		}
		return int(n), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, err
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
