package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

var startTime = time.Now()

// HealthChecker is implemented by dependencies that can report their health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SearchCounter reports how many searches are in flight.
type SearchCounter interface {
	Active() int
}

type HealthHandler struct {
	redis    HealthChecker
	searches SearchCounter
	version  string
}

type HealthResponse struct {
	Status         string            `json:"status"`
	Timestamp      time.Time         `json:"timestamp"`
	Services       map[string]string `json:"services"`
	Version        string            `json:"version"`
	Uptime         string            `json:"uptime"`
	ActiveSearches int               `json:"active_searches"`
}

func NewHealthHandler(redis HealthChecker, searches SearchCounter, version string) *HealthHandler {
	return &HealthHandler{
		redis:    redis,
		searches: searches,
		version:  version,
	}
}

// HealthCheck reports overall service health. Redis only backs session
// selections, so an unhealthy redis degrades the service instead of failing it.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{"matcher": "healthy"}
	status := "healthy"

	if h.redis == nil {
		services["redis"] = "unhealthy: not configured"
		status = "degraded"
	} else if err := h.redis.HealthCheck(r.Context()); err != nil {
		services["redis"] = "unhealthy: " + err.Error()
		status = "degraded"
	} else {
		services["redis"] = "healthy"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	}
	if h.searches != nil {
		response.ActiveSearches = h.searches.Active()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

// ReadinessCheck reports whether the service can take searches.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// LivenessCheck reports that the process is alive.
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
