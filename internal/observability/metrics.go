package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway metrics
	synthesizeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_synthesize_requests_total",
		Help: "Total number of /synthesize requests by response status class",
	}, []string{"status"})

	inflightSyntheses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tts_gateway_inflight_syntheses",
		Help: "Number of upstream syntheses currently in flight",
	})

	// Upstream metrics
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_upstream_requests_total",
		Help: "Total number of upstream TTS requests",
	}, []string{"provider", "status"})

	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tts_gateway_upstream_latency_seconds",
		Help:    "Upstream TTS latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"provider"})

	// Artifact metrics
	artifactEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_artifacts_total",
		Help: "Audio artifact lifecycle transitions",
	}, []string{"event"}) // event: "created", "expired", "removed", "delete_failed"

	artifactBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_gateway_artifact_bytes_total",
		Help: "Total audio bytes written to the store",
	})

	pendingExpiries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tts_gateway_pending_expiries",
		Help: "Number of artifacts waiting for deletion",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tts_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// RecordSynthesizeResponse records the final status of a /synthesize request
func RecordSynthesizeResponse(statusCode int) {
	status := "2xx"
	switch {
	case statusCode >= 500:
		status = "5xx"
	case statusCode >= 400:
		status = "4xx"
	}
	synthesizeRequests.WithLabelValues(status).Inc()
}

// TrackInflight increments the in-flight gauge and returns a func that decrements it
func TrackInflight() func() {
	inflightSyntheses.Inc()
	return inflightSyntheses.Dec
}

// RecordUpstream records the outcome and latency of an upstream call
func RecordUpstream(provider string, start time.Time, success bool) {
	upstreamLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	upstreamRequests.WithLabelValues(provider, status).Inc()
}

// RecordArtifactCreated records a newly written artifact
func RecordArtifactCreated(size int) {
	artifactEvents.WithLabelValues("created").Inc()
	artifactBytes.Add(float64(size))
}

// RecordArtifactEvent records an artifact lifecycle transition
func RecordArtifactEvent(event string) {
	artifactEvents.WithLabelValues(event).Inc()
}

// SetPendingExpiries updates the pending expiry gauge
func SetPendingExpiries(n int) {
	pendingExpiries.Set(float64(n))
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
