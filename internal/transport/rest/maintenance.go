package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/transport"
)

// SweepRunner runs every registered sweep job once.
type SweepRunner interface {
	RunOnce(ctx context.Context) error
}

type MaintenanceHandler struct {
	*transport.BaseHandler
	runner SweepRunner
}

func NewMaintenanceHandler(base *transport.BaseHandler, runner SweepRunner) *MaintenanceHandler {
	return &MaintenanceHandler{BaseHandler: base, runner: runner}
}

// Sweep handles POST /api/v1/maintenance/sweep
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.runner.RunOnce(r.Context()); err != nil {
		h.HandleError(w, internal.NewInternalError("sweep failed", err))
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"detail":      "Sweep finished.",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
