package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backupnow/internal/coordinator"
	"backupnow/internal/domain"
)

type mockTimerSource struct {
	timers []*domain.Timer
}

func (m *mockTimerSource) Timers() []*domain.Timer { return m.timers }

type mockRunSource struct {
	running []coordinator.RunningJob
}

func (m *mockRunSource) Running() []coordinator.RunningJob { return m.running }

type mockCopyTotals struct {
	files, bytes int64
}

func (m *mockCopyTotals) Totals() (int64, int64) { return m.files, m.bytes }

type mockBreakerStatus struct {
	open []string
}

func (m *mockBreakerStatus) OpenDestinations() []string { return m.open }

type mockHealthChecker struct {
	mu     sync.Mutex
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func mustTimer(t *testing.T, name, timeOfDay, spanName string, enabled bool, ran *time.Time) *domain.Timer {
	t.Helper()
	span, err := domain.ParseSpan(spanName)
	if err != nil {
		t.Fatal(err)
	}
	timer, err := domain.NewTimer(name, timeOfDay, span, []string{domain.WildcardCommand}, enabled, ran)
	if err != nil {
		t.Fatal(err)
	}
	return timer
}

func serveStatus(t *testing.T, h *Handler) StatusResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status endpoint returned %d: %s", w.Code, w.Body.String())
	}
	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal status response: %v", err)
	}
	return resp
}

func TestHandler_Healthz_Simple(t *testing.T) {
	h := NewHandler(&mockTimerSource{}, &mockRunSource{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
	if resp.Components != nil {
		t.Errorf("simple health should have no components, got %v", resp.Components)
	}
}

func TestHandler_Healthz_VerboseHealthy(t *testing.T) {
	h := NewHandler(&mockTimerSource{}, &mockRunSource{}, zerolog.Nop()).
		WithHealthChecker(&mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Components["history"] != "healthy" {
		t.Errorf("history component = %q, want healthy", resp.Components["history"])
	}
}

func TestHandler_Healthz_VerboseDegraded(t *testing.T) {
	checker := &mockHealthChecker{
		pingFn: func(context.Context) error { return context.DeadlineExceeded },
	}
	h := NewHandler(&mockTimerSource{}, &mockRunSource{}, zerolog.Nop()).
		WithHealthChecker(checker)

	req := httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
	if !strings.HasPrefix(resp.Components["history"], "unhealthy") {
		t.Errorf("history component = %q, want unhealthy prefix", resp.Components["history"])
	}
}

func TestHandler_Status_ReportsTimersAtFixedInstant(t *testing.T) {
	now := time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)
	ran := time.Date(2026, 4, 9, 12, 0, 1, 0, time.UTC)

	timers := &mockTimerSource{timers: []*domain.Timer{
		mustTimer(t, "nightly", "12:00", "daily", true, &ran),
		mustTimer(t, "paused", "12:00", "daily", false, nil),
	}}
	h := NewHandler(timers, &mockRunSource{}, zerolog.Nop())
	h.clock = func() time.Time { return now }

	resp := serveStatus(t, h)

	if resp.CheckedAt != "2026-04-10T15:00:00Z" {
		t.Errorf("CheckedAt = %q", resp.CheckedAt)
	}
	if len(resp.Timers) != 2 {
		t.Fatalf("got %d timers, want 2", len(resp.Timers))
	}

	nightly := resp.Timers[0]
	if nightly.Name != "nightly" || !nightly.Ready {
		t.Errorf("nightly = %+v, want ready", nightly)
	}
	if nightly.Boundary != "2026-04-10T12:00:00Z" {
		t.Errorf("nightly.Boundary = %q", nightly.Boundary)
	}
	if nightly.Ran != "2026-04-09T12:00:01Z" {
		t.Errorf("nightly.Ran = %q", nightly.Ran)
	}

	paused := resp.Timers[1]
	if paused.Ready {
		t.Error("disabled timer reported ready")
	}
	if paused.Ran != "" {
		t.Errorf("paused.Ran = %q, want empty", paused.Ran)
	}
}

func TestHandler_Status_ReportsRunningAndTotals(t *testing.T) {
	startedAt := time.Date(2026, 4, 10, 14, 59, 30, 0, time.UTC)
	running := &mockRunSource{running: []coordinator.RunningJob{
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000007"), Name: "photos", StartedAt: startedAt},
	}}
	h := NewHandler(&mockTimerSource{}, running, zerolog.Nop()).
		WithCopyTotals(&mockCopyTotals{files: 12, bytes: 4096}).
		WithBreaker(&mockBreakerStatus{open: []string{"/mnt/usb0"}})

	resp := serveStatus(t, h)

	if len(resp.Running) != 1 {
		t.Fatalf("got %d running jobs, want 1", len(resp.Running))
	}
	if resp.Running[0].Name != "photos" {
		t.Errorf("running job name = %q", resp.Running[0].Name)
	}
	if resp.Running[0].StartedAt != "2026-04-10T14:59:30Z" {
		t.Errorf("running job started_at = %q", resp.Running[0].StartedAt)
	}
	if resp.Copied == nil || resp.Copied.Files != 12 || resp.Copied.Bytes != 4096 {
		t.Errorf("Copied = %+v", resp.Copied)
	}
	if len(resp.OpenDestinations) != 1 || resp.OpenDestinations[0] != "/mnt/usb0" {
		t.Errorf("OpenDestinations = %v", resp.OpenDestinations)
	}
}

func TestHandler_Status_OmitsOptionalSections(t *testing.T) {
	h := NewHandler(&mockTimerSource{}, &mockRunSource{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	body := w.Body.String()
	if strings.Contains(body, "copied") {
		t.Errorf("status without totals should omit copied: %s", body)
	}
	if strings.Contains(body, "open_destinations") {
		t.Errorf("status without breaker should omit open_destinations: %s", body)
	}
	if !strings.Contains(body, `"running":[]`) {
		t.Errorf("running should encode as an empty array: %s", body)
	}
}

func TestHandler_UnknownPath(t *testing.T) {
	h := NewHandler(&mockTimerSource{}, &mockRunSource{}, zerolog.Nop())

	for _, tt := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/nope"},
		{http.MethodPost, "/healthz"},
		{http.MethodDelete, "/api/status"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tt.method, tt.path, w.Code)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal error response: %v", err)
		}
		if resp.Error != "not found" {
			t.Errorf("error = %q, want 'not found'", resp.Error)
		}
	}
}
