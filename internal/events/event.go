// Package events distributes audio artifact lifecycle notifications to
// websocket subscribers and, optionally, a NATS subject.
package events

import (
	"context"
	"time"

	"github.com/lexiqai/tts-gateway/internal/observability"
)

// Type names a lifecycle transition
type Type string

const (
	ArtifactCreated Type = "artifact.created"
	ArtifactExpired Type = "artifact.expired"
	ArtifactRemoved Type = "artifact.removed" // removed by something other than expiry
)

// Event describes one artifact lifecycle transition
type Event struct {
	Type      Type       `json:"type"`
	Artifact  string     `json:"artifact"`
	URL       string     `json:"url,omitempty"`
	Size      int64      `json:"size,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Time      time.Time  `json:"time"`
}

// Publisher delivers events. Implementations must not block the caller for long.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to every publisher; failures are logged, not returned
type Multi []Publisher

// Publish implements Publisher
func (m Multi) Publish(ctx context.Context, event Event) error {
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			observability.RecordError("publish", "events")
			logger := observability.WithComponent("events")
			logger.Warn().
				Err(err).
				Str("type", string(event.Type)).
				Str("artifact", event.Artifact).
				Msg("Failed to publish artifact event")
		}
	}
	return nil
}

// Nop discards events
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, Event) error { return nil }
