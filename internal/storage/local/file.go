// Package local implements a local filesystem snapshot backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/allofdaniel/placecrawl/internal/storage"
)

// Config captures the parameters for the local filesystem backend.
type Config struct {
	// Path is the snapshot file. Its parent directory is created on demand.
	Path string `mapstructure:"path" yaml:"path"`
}

// File stores a snapshot in one file, replacing it atomically on every write.
type File struct {
	path string
}

// New creates a file-backed snapshot store.
func New(cfg Config) (*File, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	info, err := os.Stat(cfg.Path)
	switch {
	case err == nil && info.IsDir():
		return nil, fmt.Errorf("snapshot path %s is a directory", cfg.Path)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to stat snapshot path: %w", err)
	}
	return &File{path: filepath.Clean(cfg.Path)}, nil
}

// Read returns the current snapshot or storage.ErrNotExist.
func (f *File) Read(_ context.Context) ([]byte, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// Write stages data in a temp file next to the target, syncs it and renames it
// over the target.
func (f *File) Write(_ context.Context, data []byte) (err error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// URI returns a file:// URI for the snapshot.
func (f *File) URI() string {
	return fmt.Sprintf("file://%s", f.path)
}
