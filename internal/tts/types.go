package tts

import (
	"context"
	"fmt"
)

// VoiceSettings are the provider tuning parameters for a single synthesis
type VoiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
}

// Request is a fully resolved synthesis request; defaults are applied by the caller
type Request struct {
	Text          string
	VoiceID       string
	ModelID       string
	VoiceSettings VoiceSettings
}

// Synthesizer turns text into encoded audio bytes.
// The gateway depends only on this interface so providers can be swapped.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// UpstreamError reports a failed call to the TTS provider: a transport error,
// a non-2xx response or a rejected call while the circuit is open.
type UpstreamError struct {
	Provider   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s upstream request failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
