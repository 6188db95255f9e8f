// Package docstore persists the post log as a single versioned JSON document
// on disk.
package docstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blackmichael/journal/internal/domain"
)

// CurrentVersion is the document layout written by this package. Version 0
// is the legacy layout: a bare JSON array of posts.
const CurrentVersion = 1

// Compile-time assertion that FileStore implements domain.DocumentStore.
var _ domain.DocumentStore = (*FileStore)(nil)

// Document is the on-disk layout.
type Document struct {
	Version int           `json:"version"`
	Posts   []domain.Post `json:"posts"`
}

// FileStore reads and writes the post document at a fixed path. Writes are
// atomic: the document is written to a temporary file in the same directory
// and renamed over the old one.
type FileStore struct {
	path string

	mu     sync.Mutex
	digest [sha256.Size]byte // of the last content read or written
}

// NewFileStore creates a FileStore for path. The file does not need to exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document path.
func (f *FileStore) Path() string {
	return f.path
}

// Read returns the stored posts, or domain.ErrNotFound if the file does not
// exist.
func (f *FileStore) Read(_ context.Context) ([]domain.Post, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	posts, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}

	f.remember(data)
	return posts, nil
}

// Write replaces the document with posts.
func (f *FileStore) Write(_ context.Context, posts []domain.Post) error {
	data, err := Encode(posts)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(f.path, data); err != nil {
		return err
	}

	f.remember(data)
	return nil
}

// changed reports whether data differs from what this store last read or
// wrote.
func (f *FileStore) changed(data []byte) bool {
	sum := sha256.Sum256(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	return sum != f.digest
}

func (f *FileStore) remember(data []byte) {
	sum := sha256.Sum256(data)
	f.mu.Lock()
	f.digest = sum
	f.mu.Unlock()
}

// Encode renders posts as a current-version document.
func Encode(posts []domain.Post) ([]byte, error) {
	if posts == nil {
		posts = []domain.Post{}
	}
	data, err := json.MarshalIndent(Document{Version: CurrentVersion, Posts: posts}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode posts: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a document of any supported version.
func Decode(data []byte) ([]domain.Post, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var posts []domain.Post
		if err := json.Unmarshal(trimmed, &posts); err != nil {
			return nil, fmt.Errorf("unmarshal legacy posts: %w", err)
		}
		return posts, nil
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("document version %d is newer than supported version %d", doc.Version, CurrentVersion)
	}
	return doc.Posts, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
