package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/tts-gateway/internal/observability"
)

// RouterOptions lists what the router mounts. Nil handlers are not mounted.
type RouterOptions struct {
	Synthesize      http.HandlerFunc
	Audio           http.Handler // serves "/<filename>"; mounted under /audio
	Events          http.HandlerFunc
	ReadinessChecks map[string]observability.HealthCheckFunc
	AllowedOrigins  []string
	MetricsEnabled  bool
}

// NewRouter builds the HTTP surface of the gateway
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	if opts.Synthesize != nil {
		r.Post("/synthesize", opts.Synthesize)
	}
	if opts.Audio != nil {
		audioFiles := http.StripPrefix("/audio", opts.Audio)
		r.Get("/audio/*", audioFiles.ServeHTTP)
		r.Head("/audio/*", audioFiles.ServeHTTP)
	}
	if opts.Events != nil {
		r.Get("/events", opts.Events)
	}

	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(opts.ReadinessChecks))
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
