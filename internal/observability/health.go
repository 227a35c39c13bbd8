package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

const (
	serviceName    = "tts-gateway"
	serviceVersion = "1.0.0"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthCheckFunc reports whether a dependency is usable
type HealthCheckFunc func(ctx context.Context) (bool, error)

// HealthCheckHandler handles liveness requests
func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Version:   serviceVersion,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		writeHealth(w, http.StatusOK, status)
	}
}

// CheckDependencies runs every check and reports their individual status
func CheckDependencies(ctx context.Context, checks map[string]HealthCheckFunc) (map[string]DependencyStatus, bool) {
	dependencies := make(map[string]DependencyStatus, len(checks))
	allHealthy := true

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := checks[name]
		if check == nil {
			continue
		}

		start := time.Now()
		healthy, err := check(ctx)
		latency := time.Since(start).Milliseconds()

		status := "healthy"
		message := ""
		if err != nil || !healthy {
			status = "unhealthy"
			allHealthy = false
			if err != nil {
				message = err.Error()
			}
		}

		dependencies[name] = DependencyStatus{
			Status:    status,
			Message:   message,
			LatencyMs: latency,
		}
	}

	return dependencies, allHealthy
}

// ReadinessHandler handles readiness requests.
// Checks are passed in by name to avoid import cycles.
func ReadinessHandler(checks map[string]HealthCheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dependencies, allHealthy := CheckDependencies(ctx, checks)

		status := HealthStatus{
			Status:       "ready",
			Service:      serviceName,
			Version:      serviceVersion,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}

		code := http.StatusOK
		if !allHealthy {
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}

		writeHealth(w, code, status)
	}
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger := GetLogger()
		logger.Warn().Err(err).Msg("Failed to encode health status")
	}
}
