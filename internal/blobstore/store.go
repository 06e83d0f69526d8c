// Package blobstore implements the artifact object store: a filesystem
// backed store addressed by object key, HMAC-signed upload capabilities,
// and the ingest trigger that bridges "artifact landed" to "job exists".
package blobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrObjectNotFound is returned when no object exists under a key.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys that escape the store root or are
	// otherwise unusable as paths.
	ErrInvalidKey = errors.New("invalid object key")
)

// Metadata is the sidecar record written next to every object.
type Metadata struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	// Context carries opaque side-channel data attached at upload admission
	// (e.g. conversation history). Best effort; may be empty.
	Context   string    `json:"context,omitempty"`
	WrittenAt time.Time `json:"written_at"`
}

// Store is a filesystem object store. Keys are slash-separated paths under
// a single root; writes are atomic (temp file + rename) so a crashed write
// never leaves a partial object visible.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates the store, making the root directory if needed.
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blobstore root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

// Put writes an object and its metadata sidecar. The object only becomes
// visible once both writes complete.
func (s *Store) Put(key string, meta Metadata, r io.Reader) (int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write object body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize object body: %w", err)
	}

	meta.Size = size
	if meta.WrittenAt.IsZero() {
		meta.WrittenAt = time.Now().UTC()
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("failed to encode object metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta.json", metaBytes, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write object metadata: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to commit object: %w", err)
	}

	s.logger.Info("Object stored",
		slog.String("key", key),
		slog.Int64("size", size),
		slog.String("content_type", meta.ContentType),
	)

	return size, nil
}

// Get opens an object for reading along with its metadata.
func (s *Store) Get(key string) (io.ReadCloser, Metadata, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, Metadata{}, err
	}

	meta, err := s.Stat(key)
	if err != nil {
		return nil, Metadata{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Metadata{}, ErrObjectNotFound
		}
		return nil, Metadata{}, fmt.Errorf("failed to open object: %w", err)
	}

	return f, meta, nil
}

// Stat returns an object's metadata without opening the body.
func (s *Store) Stat(key string) (Metadata, error) {
	path, err := s.resolve(key)
	if err != nil {
		return Metadata{}, err
	}

	raw, err := os.ReadFile(path + ".meta.json")
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, ErrObjectNotFound
		}
		return Metadata{}, fmt.Errorf("failed to read object metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode object metadata: %w", err)
	}

	return meta, nil
}

// Exists reports whether an object exists under the key.
func (s *Store) Exists(key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// resolve maps a key to a filesystem path, rejecting anything that could
// escape the root.
func (s *Store) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}
