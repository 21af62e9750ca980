package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/certdesk/admin-console/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker reports on the console's query cache and session.
type HealthChecker struct {
	engine   *service.QueryEngine
	sessions *service.SessionService
	version  string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(engine *service.QueryEngine, sessions *service.SessionService, version string) *HealthChecker {
	return &HealthChecker{
		engine:   engine,
		sessions: sessions,
		version:  version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.engine != nil {
		stats := h.engine.Stats()
		if stats.Closed {
			checks["query_cache"] = "closed"
			healthy = false
		} else {
			checks["query_cache"] = fmt.Sprintf("ok: %d entries, %d subscribed, %d in flight",
				stats.Entries, stats.Subscribed, stats.InFlight)
		}
	} else {
		checks["query_cache"] = "not configured"
	}

	if h.sessions != nil {
		if h.sessions.IsAuthenticated() {
			checks["session"] = "authenticated"
		} else {
			checks["session"] = "anonymous"
		}
	} else {
		checks["session"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
