package handler

import (
	"net/http"
	"time"

	natsclient "github.com/aegis-ops/console/internal/nats"
	"github.com/aegis-ops/console/internal/service"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsclient.Client
	console    *service.Console
	started    time.Time
}

// NewHealthHandler creates a new health handler. natsClient is nil when the
// event journal is disabled.
func NewHealthHandler(natsClient *natsclient.Client, console *service.Console) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		console:    console,
		started:    time.Now(),
	}
}

func (h *HealthHandler) journalState() string {
	switch {
	case h.natsClient == nil:
		return "disabled"
	case h.natsClient.IsConnected():
		return "connected"
	default:
		return "disconnected"
	}
}

// Health handles GET /health. It reports liveness and the number of views
// per conversation kind.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"views":          h.console.Counts(),
		"journal":        h.journalState(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Ready handles GET /ready. A configured journal must be connected; views
// keep working without it but would lose their event history.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if state := h.journalState(); state == "disconnected" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not ready",
			"reason":  "NATS not connected",
			"journal": state,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"journal": h.journalState(),
	})
}
