// Package fsblob implements [blob.Store] on top of a local directory tree.
// References map directly to file paths below the root. Writes go through a
// temp file plus rename so readers never observe a partially written object.
package fsblob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/wagmirep/lahstats/pkg/blob"
)

// Store is a directory-backed [blob.Store]. Safe for concurrent use.
type Store struct {
	root string
}

var _ blob.Store = (*Store)(nil)

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsblob: create root %q: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Put implements [blob.Store].
func (s *Store) Put(ctx context.Context, ref string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsblob: mkdir for %q: %w", ref, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("fsblob: create temp for %q: %w", ref, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("fsblob: write %q: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("fsblob: close %q: %w", ref, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("fsblob: rename %q: %w", ref, err)
	}
	return nil
}

// Get implements [blob.Store].
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fsblob: %q: %w", ref, blob.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fsblob: read %q: %w", ref, err)
	}
	return data, nil
}

// resolve maps ref to an absolute path below the root, rejecting references
// that would escape it.
func (s *Store) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("fsblob: invalid reference %q", ref)
	}
	return filepath.Join(s.root, clean), nil
}
