package api

import (
	"context"
	"net/http"
	"time"
)

// Service status values.
const (
	StatusActive   = "active"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// HealthHandler reports liveness and dependency status.
type HealthHandler struct {
	store     Pinger
	generator Pinger
	whatsapp  Pinger
	timeout   time.Duration
}

// NewHealthHandler creates a health handler. generator and whatsapp may be nil
// when the backend does not support probing or is not configured.
func NewHealthHandler(store, generator, whatsapp Pinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{store: store, generator: generator, whatsapp: whatsapp, timeout: timeout}
}

// Live answers the liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServiceStatus probes every dependency. A store failure is an error; a
// generator or WhatsApp failure only degrades the service.
func (h *HealthHandler) ServiceStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services := map[string]string{
		"store":     probe(ctx, h.store),
		"generator": probe(ctx, h.generator),
		"whatsapp":  probe(ctx, h.whatsapp),
	}

	overall := StatusActive
	switch {
	case services["store"] == "unavailable":
		overall = StatusError
	case services["generator"] == "unavailable", services["whatsapp"] == "unavailable":
		overall = StatusDegraded
	}

	status := http.StatusOK
	if overall == StatusError {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, map[string]any{
		"overall_status": overall,
		"services":       services,
	})
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "unavailable"
	}
	return "ok"
}
