package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsRemovedArtifacts(t *testing.T) {
	store := newTestStore(t, time.UnixMilli(1700000000000))
	artifact, err := store.Write([]byte("x"))
	require.NoError(t, err)

	removed := make(chan string, 4)
	watcher, err := NewWatcher(store, func(name string) { removed <- name })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Non-artifact files are ignored
	other := filepath.Join(store.Dir(), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	require.NoError(t, os.Remove(other))

	require.NoError(t, os.Remove(artifact.Path))

	select {
	case name := <-removed:
		require.Equal(t, artifact.Name, name)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for removal event")
	}
}
