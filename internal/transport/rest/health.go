package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	CheckedAt  time.Time    `json:"checked_at"`
	DurationMs int64        `json:"duration_ms"`
}

// Pinger is a dependency the readiness check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	components map[string]Pinger
	timeout    time.Duration
}

// NewHealthHandler probes each named component on readiness checks. Nil
// pingers are skipped.
func NewHealthHandler(components map[string]Pinger) *HealthHandler {
	live := make(map[string]Pinger, len(components))
	for name, p := range components {
		if p != nil {
			live[name] = p
		}
	}
	return &HealthHandler{components: live, timeout: 2 * time.Second}
}

// pingHandler reports liveness only.
func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "OK"}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// healthCheckHandler probes every component.
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:     HealthHealthy,
		CheckedAt:  time.Now(),
		Components: make(map[string]CheckEntry, len(h.components)),
	}
	for name, p := range h.components {
		start := time.Now()
		err := p.Ping(ctx)
		entry := CheckEntry{
			Status:     HealthHealthy,
			CheckedAt:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			entry.Status = HealthUnhealthy
			entry.Message = err.Error()
			resp.Status = HealthUnhealthy
		}
		resp.Components[name] = entry
	}

	statusCode := http.StatusOK
	if resp.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
