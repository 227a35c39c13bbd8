// Package expiry deletes audio artifacts a fixed TTL after they were created.
//
// Pending deletions live in an in-memory registry of (artifact, deadline)
// pairs that a single loop sweeps periodically. Every entry leaves the
// registry before its deletion is attempted, so each one fires exactly once;
// failures are logged and never retried. There is no cancellation.
package expiry

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/lexiqai/tts-gateway/internal/audio"
	"github.com/lexiqai/tts-gateway/internal/events"
	"github.com/lexiqai/tts-gateway/internal/observability"
)

// Deleter removes an artifact by name
type Deleter interface {
	Delete(name string) error
}

// Scheduler owns the registry of pending deletions
type Scheduler struct {
	ttl       time.Duration
	deleter   Deleter
	publisher events.Publisher

	mu      sync.Mutex
	pending map[string]time.Time

	now func() time.Time
}

// NewScheduler creates a scheduler that deletes through deleter ttl after creation
func NewScheduler(ttl time.Duration, deleter Deleter, publisher events.Publisher) *Scheduler {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Scheduler{
		ttl:       ttl,
		deleter:   deleter,
		publisher: publisher,
		pending:   make(map[string]time.Time),
		now:       time.Now,
	}
}

// Schedule registers the artifact for deletion at createdAt+TTL and returns that deadline.
// Scheduling a name that is already pending keeps the earlier deadline.
func (s *Scheduler) Schedule(name string, createdAt time.Time) time.Time {
	deadline := createdAt.Add(s.ttl)

	s.mu.Lock()
	if existing, ok := s.pending[name]; ok && existing.Before(deadline) {
		deadline = existing
	}
	s.pending[name] = deadline
	s.mu.Unlock()

	observability.SetPendingExpiries(s.Pending())
	return deadline
}

// Recover schedules artifacts found on disk at startup, so files written
// before a restart still expire.
func (s *Scheduler) Recover(artifacts []audio.Artifact) int {
	for _, a := range artifacts {
		s.Schedule(a.Name, a.CreatedAt)
	}
	return len(artifacts)
}

// IsPending reports whether the artifact still waits for its deletion
func (s *Scheduler) IsPending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[name]
	return ok
}

// Pending returns the number of scheduled deletions
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep deletes every artifact whose deadline is not after now and returns how many were attempted
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) int {
	type due struct {
		name     string
		deadline time.Time
	}

	s.mu.Lock()
	var batch []due
	for name, deadline := range s.pending {
		if !deadline.After(now) {
			batch = append(batch, due{name: name, deadline: deadline})
			delete(s.pending, name)
		}
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	observability.SetPendingExpiries(s.Pending())

	sort.Slice(batch, func(i, j int) bool { return batch[i].deadline.Before(batch[j].deadline) })

	logger := observability.WithComponent("expiry")
	for _, d := range batch {
		if err := s.deleter.Delete(d.name); err != nil {
			observability.RecordArtifactEvent("delete_failed")
			event := logger.Error()
			if errors.Is(err, fs.ErrNotExist) {
				event = logger.Warn()
			}
			event.Err(err).Str("artifact", d.name).Msg("Failed to delete expired artifact")
			continue
		}

		observability.RecordArtifactEvent("expired")
		logger.Info().Str("artifact", d.name).Time("deadline", d.deadline).Msg("Expired artifact deleted")
		_ = s.publisher.Publish(ctx, events.Event{
			Type:     events.ArtifactExpired,
			Artifact: d.name,
			Time:     now,
		})
	}

	return len(batch)
}

// Run sweeps every interval until ctx is done
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Sweep(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx, s.now())
		}
	}
}
