package audio

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/lexiqai/tts-gateway/internal/observability"
)

// RemoveFunc is called with the name of an artifact that disappeared from the store
type RemoveFunc func(name string)

// Watcher reports artifacts removed from the store directory, whoever removed them.
// It only observes; it never changes scheduled deletions.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onRemove RemoveFunc
}

// NewWatcher starts watching the store directory
func NewWatcher(store *Store, onRemove RemoveFunc) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(store.Dir()); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}

	return &Watcher{
		dir:      store.Dir(),
		watcher:  w,
		onRemove: onRemove,
	}, nil
}

// Run dispatches removal events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	logger := observability.WithComponent("audio-watcher")
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(event.Name)
			if !IsArtifactName(name) {
				continue
			}
			logger.Debug().Str("artifact", name).Str("op", event.Op.String()).Msg("Artifact left the store")
			if w.onRemove != nil {
				w.onRemove(name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Str("dir", w.dir).Msg("File watcher error")
		}
	}
}
