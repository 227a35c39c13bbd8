// Package audio stores synthesized audio artifacts in a flat directory and
// serves them read-only over HTTP.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644

	tempPattern = ".audio-*.tmp"

	// Bounds the no-clobber name search when several writes land in the same millisecond
	maxNameAttempts = 1000
)

var artifactNamePattern = regexp.MustCompile(`^audio-(\d+)\.mp3$`)

// ErrInvalidName is returned for names that do not look like audio-<unix-ms>.mp3
var ErrInvalidName = errors.New("invalid artifact name")

// StorageError reports a failed disk operation on the store
type StorageError struct {
	Op   string // "init", "write", "delete", "scan"
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("audio store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("audio store %s %s failed: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Artifact is an audio file owned by the store until it expires
type Artifact struct {
	Name      string
	Path      string
	CreatedAt time.Time
	Size      int64
}

// Store keeps artifacts as audio-<unix-ms>.mp3 files under a single directory
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir; Init must be called before use
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the store root
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns the artifact name for a creation time
func FileName(createdAt time.Time) string {
	return fmt.Sprintf("audio-%d.mp3", createdAt.UnixMilli())
}

// IsArtifactName reports whether name is a store-generated artifact name
func IsArtifactName(name string) bool {
	return artifactNamePattern.MatchString(name)
}

// ParseName extracts the creation time encoded in an artifact name
func ParseName(name string) (time.Time, error) {
	m := artifactNamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidName, name, err)
	}
	return time.UnixMilli(ms), nil
}

// Init creates the store directory if needed and removes temp files left by an
// interrupted write. It is safe to call on every start.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return &StorageError{Op: "init", Err: err}
	}

	stale, err := filepath.Glob(filepath.Join(s.dir, tempPattern))
	if err != nil {
		return &StorageError{Op: "init", Err: err}
	}
	for _, path := range stale {
		_ = os.Remove(path)
	}

	return nil
}

// Write stores data under a new, never reused name.
// The file becomes visible only once fully written.
func (s *Store) Write(data []byte) (Artifact, error) {
	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return Artifact{}, &StorageError{Op: "write", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Artifact{}, &StorageError{Op: "write", Err: err}
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return Artifact{}, &StorageError{Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return Artifact{}, &StorageError{Op: "write", Err: err}
	}

	ms := s.now().UnixMilli()
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		createdAt := time.UnixMilli(ms + int64(attempt))
		name := FileName(createdAt)
		path := filepath.Join(s.dir, name)

		// Link never replaces an existing file, unlike Rename
		err := os.Link(tmpPath, path)
		if err == nil {
			return Artifact{
				Name:      name,
				Path:      path,
				CreatedAt: createdAt,
				Size:      int64(len(data)),
			}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return Artifact{}, &StorageError{Op: "write", Name: name, Err: err}
		}
	}

	return Artifact{}, &StorageError{Op: "write", Err: fmt.Errorf("no free name after %d attempts", maxNameAttempts)}
}

// Delete removes an artifact. A missing file is reported as an error wrapping fs.ErrNotExist.
func (s *Store) Delete(name string) error {
	if !IsArtifactName(name) {
		return &StorageError{Op: "delete", Name: name, Err: ErrInvalidName}
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		return &StorageError{Op: "delete", Name: name, Err: err}
	}
	return nil
}

// Scan lists the artifacts currently on disk
func (s *Store) Scan() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StorageError{Op: "scan", Err: err}
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() || !IsArtifactName(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}

		createdAt, err := ParseName(entry.Name())
		if err != nil {
			createdAt = info.ModTime()
		}

		artifacts = append(artifacts, Artifact{
			Name:      entry.Name(),
			Path:      filepath.Join(s.dir, entry.Name()),
			CreatedAt: createdAt,
			Size:      info.Size(),
		})
	}

	return artifacts, nil
}

// HealthCheck verifies the directory exists and is writable
func (s *Store) HealthCheck(_ context.Context) (bool, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s is not a directory", s.dir)
	}

	probe, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return false, fmt.Errorf("audio directory is not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, nil
}
