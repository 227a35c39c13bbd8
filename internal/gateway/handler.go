// Package gateway implements the HTTP surface of the TTS gateway: the
// synthesize endpoint, its request parsing and error mapping, and the router
// that also serves stored audio.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lexiqai/tts-gateway/internal/audio"
	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/events"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/tts"
)

// ArtifactStore persists synthesized audio
type ArtifactStore interface {
	Write(data []byte) (audio.Artifact, error)
}

// ExpiryScheduler registers an artifact for deletion and returns its deadline
type ExpiryScheduler interface {
	Schedule(name string, createdAt time.Time) time.Time
}

// Handler serves POST /synthesize
type Handler struct {
	synth         tts.Synthesizer
	store         ArtifactStore
	scheduler     ExpiryScheduler
	publisher     events.Publisher
	defaults      Defaults
	publicBaseURL string
	slots         *semaphore.Weighted
}

// NewHandler wires the synthesize endpoint to its collaborators
func NewHandler(cfg *config.Config, synth tts.Synthesizer, store ArtifactStore, scheduler ExpiryScheduler, publisher events.Publisher) *Handler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Handler{
		synth:         synth,
		store:         store,
		scheduler:     scheduler,
		publisher:     publisher,
		defaults:      DefaultsFromConfig(cfg),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		slots:         semaphore.NewWeighted(cfg.MaxConcurrentSyntheses),
	}
}

type synthesizeResponse struct {
	AudioFileURL string `json:"audioFileUrl"`
}

// Synthesize handles a synthesis request end to end
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx)

	fields, err := parseBody(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	req, err := resolveRequest(fields, h.defaults)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := h.synthesize(ctx, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	artifact, err := h.store.Write(data)
	if err != nil {
		h.fail(w, r, fmt.Errorf("failed to store audio: %w", err))
		return
	}
	deadline := h.scheduler.Schedule(artifact.Name, artifact.CreatedAt)
	observability.RecordArtifactCreated(len(data))

	audioURL := h.artifactURL(r, artifact.Name)

	logger.Info().
		Str("artifact", artifact.Name).
		Str("voice", req.VoiceID).
		Str("model", req.ModelID).
		Int64("bytes", artifact.Size).
		Time("expires_at", deadline).
		Msg("Audio synthesized")

	_ = h.publisher.Publish(context.WithoutCancel(ctx), events.Event{
		Type:      events.ArtifactCreated,
		Artifact:  artifact.Name,
		URL:       audioURL,
		Size:      artifact.Size,
		ExpiresAt: &deadline,
		Time:      artifact.CreatedAt,
	})

	observability.RecordSynthesizeResponse(http.StatusOK)
	writeJSON(w, http.StatusOK, synthesizeResponse{AudioFileURL: audioURL})
}

// synthesize waits for a free slot, then calls the provider. The call is
// detached from the request so a client disconnect does not abort it.
func (h *Handler) synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer h.slots.Release(1)

	done := observability.TrackInflight()
	defer done()

	data, err := h.synth.Synthesize(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	return data, nil
}

func (h *Handler) artifactURL(r *http.Request, name string) string {
	base := h.publicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/audio/" + name
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := classify(err)
	logger := observability.LoggerFromContext(r.Context())

	event := logger.Warn()
	if resp.status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Str("kind", resp.kind).Int("status", resp.status).Msg("Synthesis request failed")

	observability.RecordError(resp.kind, "gateway")
	observability.RecordSynthesizeResponse(resp.status)

	if body, ok := resp.body.(string); ok {
		w.Header().Set("Content-Type", resp.contentType)
		w.WriteHeader(resp.status)
		_, _ = io.WriteString(w, body)
		return
	}
	writeJSON(w, resp.status, resp.body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := observability.WithComponent("gateway")
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}
