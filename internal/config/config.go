package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the TTS gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"3000"`

	// Public base URL for generated audio links (e.g. https://tts.example.com when behind a proxy).
	// Optional; if unset, links are built from the scheme and Host of the inbound request.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`

	// Comma-separated list of allowed CORS origins
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// ElevenLabs TTS API configuration
	ElevenLabsAPIKey  string        `envconfig:"ELEVENLABS_API_KEY" required:"true"`
	ElevenLabsBaseURL string        `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io"`
	ElevenLabsTimeout time.Duration `envconfig:"ELEVENLABS_TIMEOUT" default:"0s"` // 0 = no client timeout

	// Synthesis defaults applied when a request omits a field
	DefaultVoiceID         string  `envconfig:"TTS_DEFAULT_VOICE_ID" default:"21m00Tcm4TlvDq8ikWAM"`
	DefaultModelID         string  `envconfig:"TTS_DEFAULT_MODEL_ID" default:"eleven_multilingual_v2"`
	DefaultStability       float64 `envconfig:"TTS_DEFAULT_STABILITY" default:"0.75"`
	DefaultSimilarityBoost float64 `envconfig:"TTS_DEFAULT_SIMILARITY_BOOST" default:"0.75"`

	// Audio store configuration
	AudioDir            string        `envconfig:"AUDIO_DIR" default:"audio"`
	AudioTTL            time.Duration `envconfig:"AUDIO_TTL" default:"10m"`
	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"1s"`

	// Maximum number of upstream syntheses in flight at once
	MaxConcurrentSyntheses int64 `envconfig:"MAX_CONCURRENT_SYNTHESES" default:"32"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Artifact lifecycle events
	NATSURL     string `envconfig:"NATS_URL" default:""` // Empty disables NATS publishing
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"tts.artifacts"`

	// Optional gRPC health endpoint for orchestrators that probe over gRPC
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ElevenLabsAPIKey == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is required")
	}
	if c.AudioDir == "" {
		return fmt.Errorf("AUDIO_DIR must not be empty")
	}
	if c.AudioTTL <= 0 {
		return fmt.Errorf("AUDIO_TTL must be positive, got %s", c.AudioTTL)
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive, got %s", c.ExpirySweepInterval)
	}
	if c.MaxConcurrentSyntheses <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_SYNTHESES must be positive, got %d", c.MaxConcurrentSyntheses)
	}
	if c.CircuitBreakerMaxFailures <= 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_MAX_FAILURES must be positive, got %d", c.CircuitBreakerMaxFailures)
	}
	if c.CircuitBreakerResetTimeout <= 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_RESET_TIMEOUT must be positive, got %d", c.CircuitBreakerResetTimeout)
	}
	return nil
}

// AllowedOrigins splits CORSAllowedOrigins into its entries
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
