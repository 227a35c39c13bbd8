package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lexiqai/tts-gateway/internal/observability"
)

// NATSPublisher publishes artifact events as JSON on a NATS subject
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url and publishes on subject
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	logger := observability.WithComponent("events-nats")

	conn, err := nats.Connect(url,
		nats.Name("tts-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return NewNATSPublisherWithConn(conn, subject), nil
}

// NewNATSPublisherWithConn wraps an existing connection
func NewNATSPublisherWithConn(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Publish implements Publisher. The subject is suffixed with the event type,
// e.g. tts.artifacts.artifact.created, so consumers can filter with wildcards.
func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.subject + "." + string(event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// HealthCheck reports whether the connection is up
func (p *NATSPublisher) HealthCheck(_ context.Context) (bool, error) {
	if !p.conn.IsConnected() {
		return false, fmt.Errorf("NATS connection is %s", p.conn.Status())
	}
	return true, nil
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
