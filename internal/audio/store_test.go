package audio

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()

	store := NewStore(filepath.Join(t.TempDir(), "audio"))
	store.now = func() time.Time { return now }
	require.NoError(t, store.Init())
	return store
}

func TestStore_InitIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "audio")
	store := NewStore(dir)

	require.NoError(t, store.Init())
	require.NoError(t, store.Init())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStore_InitRemovesStaleTempFiles(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.UnixMilli(1700000000000))
	stale := filepath.Join(store.Dir(), ".audio-123.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o600))

	require.NoError(t, store.Init())

	_, err := os.Stat(stale)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestStore_Write(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000000123)
	store := newTestStore(t, now)
	data := []byte("ID3 fake mp3 payload")

	artifact, err := store.Write(data)
	require.NoError(t, err)

	assert.Equal(t, "audio-1700000000123.mp3", artifact.Name)
	assert.Equal(t, filepath.Join(store.Dir(), artifact.Name), artifact.Path)
	assert.True(t, artifact.CreatedAt.Equal(now))
	assert.Equal(t, int64(len(data)), artifact.Size)

	onDisk, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	temps, err := filepath.Glob(filepath.Join(store.Dir(), tempPattern))
	require.NoError(t, err)
	assert.Empty(t, temps, "temp file must be cleaned up")
}

func TestStore_WriteNeverReusesName(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.UnixMilli(1700000000000))

	first, err := store.Write([]byte("first"))
	require.NoError(t, err)
	second, err := store.Write([]byte("second"))
	require.NoError(t, err)

	assert.Equal(t, "audio-1700000000000.mp3", first.Name)
	assert.Equal(t, "audio-1700000000001.mp3", second.Name)

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data), "existing artifact must not be overwritten")
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.UnixMilli(1700000000000))
	artifact, err := store.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(artifact.Name))
	_, err = os.Stat(artifact.Path)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	err = store.Delete(artifact.Name)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "delete", storageErr.Op)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestStore_DeleteRejectsForeignNames(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.UnixMilli(1700000000000))

	for _, name := range []string{"../secret", "notes.txt", "audio-abc.mp3", ""} {
		err := store.Delete(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestStore_Scan(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.UnixMilli(1700000000000))
	_, err := store.Write([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "README"), []byte("ignore"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "audio-1.mp3"), 0o755))

	artifacts, err := store.Scan()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "audio-1700000000000.mp3", artifacts[0].Name)
	assert.True(t, artifacts[0].CreatedAt.Equal(time.UnixMilli(1700000000000)))
}

func TestParseName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    time.Time
		wantErr bool
	}{
		{"audio-1700000000000.mp3", time.UnixMilli(1700000000000), false},
		{"audio-0.mp3", time.UnixMilli(0), false},
		{"audio-.mp3", time.Time{}, true},
		{"audio-12.wav", time.Time{}, true},
		{"xaudio-12.mp3", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want))
			assert.Equal(t, tt.name, FileName(got))
		})
	}
}

func TestStore_Handler(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.UnixMilli(1700000000000))
	data := []byte("mp3 bytes")
	artifact, err := store.Write(data)
	require.NoError(t, err)

	handler := http.StripPrefix("/audio", store.Handler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audio/"+artifact.Name, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, data, rec.Body.Bytes())

	for _, path := range []string{"/audio/", "/audio/audio-1.mp3", "/audio/.audio-1.tmp", "/audio/../go.mod"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestStore_HealthCheck(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.Now())
	healthy, err := store.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, healthy)

	missing := NewStore(filepath.Join(t.TempDir(), "missing"))
	healthy, err = missing.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.False(t, healthy)
}
