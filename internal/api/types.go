package api

import "time"

// TimerStatus is one timer's row in the status response, evaluated at
// the response's checked_at instant.
type TimerStatus struct {
	Name     string   `json:"name"`
	Time     string   `json:"time"`
	Span     string   `json:"span"`
	Commands []string `json:"commands"`
	Enabled  bool     `json:"enabled"`
	Boundary string   `json:"boundary,omitempty"`
	Ran      string   `json:"ran,omitempty"`
	Ready    bool     `json:"ready"`
}

type RunningJobStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartedAt string `json:"started_at"`
}

type CopyTotalsStatus struct {
	Files int64 `json:"files"`
	Bytes int64 `json:"bytes"`
}

type StatusResponse struct {
	CheckedAt        string             `json:"checked_at"`
	Timers           []TimerStatus      `json:"timers"`
	Running          []RunningJobStatus `json:"running"`
	Copied           *CopyTotalsStatus  `json:"copied,omitempty"`
	OpenDestinations []string           `json:"open_destinations,omitempty"`
}

// HealthResponse represents the /healthz endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
