package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/resilience"
)

const (
	providerElevenLabs = "elevenlabs"

	// Upper bound on how much of an error payload is read for logging
	maxErrorBodyBytes = 4 << 10
)

// ElevenLabsClient implements Synthesizer using the ElevenLabs text-to-speech API
type ElevenLabsClient struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
}

// elevenLabsRequest is the JSON body of a text-to-speech call
type elevenLabsRequest struct {
	Text          string        `json:"text"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
	ModelID       string        `json:"model_id"`
}

// NewElevenLabsClient creates a new ElevenLabs TTS client
func NewElevenLabsClient(cfg *config.Config) *ElevenLabsClient {
	circuitBreaker := resilience.NewCircuitBreaker(
		providerElevenLabs,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	logger := observability.WithComponent("tts")
	circuitBreaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	})

	return &ElevenLabsClient{
		apiKey:         cfg.ElevenLabsAPIKey,
		baseURL:        strings.TrimRight(cfg.ElevenLabsBaseURL, "/"),
		httpClient:     &http.Client{Timeout: cfg.ElevenLabsTimeout},
		circuitBreaker: circuitBreaker,
	}
}

// Synthesize posts the text to the voice's text-to-speech endpoint and returns the MPEG audio
func (c *ElevenLabsClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	var (
		audio    []byte
		rejected error
	)

	err := c.circuitBreaker.Call(func() error {
		start := time.Now()
		data, err := c.synthesize(ctx, req)
		observability.RecordUpstream(providerElevenLabs, start, err == nil)
		if err != nil && !isOutage(err) {
			// The provider answered; only this request is at fault
			rejected = err
			return nil
		}
		if err != nil {
			observability.IncrementCircuitBreakerFailures(providerElevenLabs)
			return err
		}
		audio = data
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &UpstreamError{Provider: providerElevenLabs, Err: err}
	}
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}

	return audio, nil
}

// isOutage reports whether err says the provider is unusable for every caller:
// no response, a 5xx, rate limiting, or our API key being refused. Other 4xx
// responses reject one request's input and must not trip the breaker.
func isOutage(err error) bool {
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) || upstreamErr.StatusCode == 0 {
		return true
	}

	switch code := upstreamErr.StatusCode; {
	case code >= http.StatusInternalServerError:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusUnauthorized, code == http.StatusForbidden:
		return true
	}
	return false
}

func (c *ElevenLabsClient) synthesize(ctx context.Context, req Request) ([]byte, error) {
	reqBody := elevenLabsRequest{
		// Quotes are stripped before this point; escaping keeps the body safe if that ever changes
		Text:          strings.ReplaceAll(req.Text, `"`, `\"`),
		VoiceSettings: req.VoiceSettings,
		ModelID:       req.ModelID,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &UpstreamError{Provider: providerElevenLabs, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, url.PathEscape(req.VoiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &UpstreamError{Provider: providerElevenLabs, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Provider: providerElevenLabs, Err: fmt.Errorf("failed to make request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamError{
			Provider:   providerElevenLabs,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(detail))),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Provider: providerElevenLabs, Err: fmt.Errorf("failed to read audio response: %w", err)}
	}

	return audio, nil
}

// HealthCheck reports whether the client is configured and the circuit is not open.
// An open circuit is reported with the breaker's failure counts.
func (c *ElevenLabsClient) HealthCheck(_ context.Context) (bool, error) {
	if c.apiKey == "" {
		return false, fmt.Errorf("ElevenLabs API key is not configured")
	}
	if c.circuitBreaker.GetState() == resilience.StateOpen {
		_, requests, failures, rate := c.circuitBreaker.GetStats()
		return false, fmt.Errorf("%w: %d of %d calls failed (%.0f%%)", resilience.ErrCircuitOpen, failures, requests, rate)
	}
	return true, nil
}
