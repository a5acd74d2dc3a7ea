package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Persistence is the backing-store abstraction for collections. Paths are
// opaque tokens sanitized by the caller, never raw external input.
type Persistence interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Exists(path string) (bool, error)
	Remove(path string) error
}

// FS persists collections as files under a root directory.
type FS struct {
	root string
}

// NewFS creates a filesystem persistence rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FS{root: dir}, nil
}

// Read returns the file contents.
func (f *FS) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(f.join(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the file contents atomically (write to temp, rename).
func (f *FS) Write(path string, data []byte) error {
	full := f.join(path)
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Exists reports whether the file is present.
func (f *FS) Exists(path string) (bool, error) {
	_, err := os.Stat(f.join(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// Remove deletes the file. Removing a missing file is not an error.
func (f *FS) Remove(path string) error {
	if err := os.Remove(f.join(path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (f *FS) join(path string) string {
	return filepath.Join(f.root, filepath.Base(path))
}
