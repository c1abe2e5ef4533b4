// Package api serves the daemon's read-only status endpoints. Remote
// control is deliberately absent; the CLI talks to settings and the
// daemon picks changes up from the file watch.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"backupnow/internal/coordinator"
	"backupnow/internal/domain"
)

// TimerSource provides the current timers in registry order.
type TimerSource interface {
	Timers() []*domain.Timer
}

// RunSource reports in-flight job executions.
type RunSource interface {
	Running() []coordinator.RunningJob
}

// CopyTotals reports lifetime copy counters.
type CopyTotals interface {
	Totals() (files, bytes int64)
}

// BreakerStatus reports destinations currently refused by the circuit
// breaker.
type BreakerStatus interface {
	OpenDestinations() []string
}

// HealthChecker provides history store health for verbose /healthz
// responses.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	timers  TimerSource
	running RunSource
	totals  CopyTotals    // optional, nil = omitted from status
	breaker BreakerStatus // optional, nil = omitted from status
	db      HealthChecker // optional, nil = simple health only
	log     zerolog.Logger
	clock   func() time.Time
}

func NewHandler(timers TimerSource, running RunSource, log zerolog.Logger) *Handler {
	return &Handler{
		timers:  timers,
		running: running,
		log:     log,
		clock:   time.Now,
	}
}

// WithCopyTotals adds lifetime copy counters to the status response.
func (h *Handler) WithCopyTotals(totals CopyTotals) *Handler {
	h.totals = totals
	return h
}

// WithBreaker adds open-destination reporting to the status response.
func (h *Handler) WithBreaker(breaker BreakerStatus) *Handler {
	h.breaker = breaker
	return h
}

// WithHealthChecker sets the history health checker for verbose
// /healthz responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/healthz" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/api/status" && r.Method == http.MethodGet:
		h.status(w, r)

	default:
		h.writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["history"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["history"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	h.writeJSON(w, statusCode, resp)
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()

	timers := h.timers.Timers()
	resp := StatusResponse{
		CheckedAt: formatTime(now),
		Timers:    make([]TimerStatus, len(timers)),
		Running:   []RunningJobStatus{},
	}

	for i, t := range timers {
		ts := TimerStatus{
			Name:     t.Name,
			Time:     t.TimeOfDay,
			Span:     t.Span.String(),
			Commands: t.Commands,
			Enabled:  t.Enabled,
			Ready:    t.Ready(now),
		}
		if boundary := t.Boundary(now); !boundary.IsZero() {
			ts.Boundary = formatTime(boundary)
		}
		if t.Ran != nil {
			ts.Ran = formatTime(*t.Ran)
		}
		resp.Timers[i] = ts
	}

	for _, run := range h.running.Running() {
		resp.Running = append(resp.Running, RunningJobStatus{
			ID:        run.ID.String(),
			Name:      run.Name,
			StartedAt: formatTime(run.StartedAt),
		})
	}

	if h.totals != nil {
		files, bytes := h.totals.Totals()
		resp.Copied = &CopyTotalsStatus{Files: files, Bytes: bytes}
	}
	if h.breaker != nil {
		resp.OpenDestinations = h.breaker.OpenDestinations()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("encoding api response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}
