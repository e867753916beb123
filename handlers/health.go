package handlers

import (
	"net/http"
	"time"
)

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	Persistence   map[string]any `json:"persistence"`
	System        map[string]any `json:"system"`
}

// HealthCheck returns server health information. Unhealthy responds 503.
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, details, err := h.health.HealthCheck()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Health check failed")
		return
	}

	var uptime time.Duration
	if start := h.dataStore.GetServerStartTime(); !start.IsZero() {
		uptime = h.clock().Sub(start)
	}

	response := HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
	}
	if m, ok := details["data"].(map[string]any); ok {
		response.Data = m
	}
	if m, ok := details["persistence"].(map[string]any); ok {
		response.Persistence = m
	}
	if m, ok := details["system"].(map[string]any); ok {
		response.System = m
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	RespondWithJSON(w, code, response)
}
