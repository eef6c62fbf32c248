package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/reverie/internal/apperr"
)

// ImageExt is the extension of every stored image.
const ImageExt = ".png"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the artifact directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory, creating it
// when missing.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute artifact directory.
func (f *FS) Root() string { return f.root }

// ImageName returns a fresh artifact name for entryID. Every update gets a new
// name so a stale file can be removed without touching the current one.
func ImageName(entryID string) string {
	return entryID + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + ImageExt
}

// safePath resolves a flat artifact name against the root and rejects
// anything that is not a plain file name (directory traversal).
func (f *FS) safePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("storage: invalid artifact name %q: %w", name, apperr.ErrInvalidInput)
	}
	return filepath.Join(f.root, name), nil
}

// Save writes content under a new name derived from entryID: tmp file → fsync → rename.
func (f *FS) Save(entryID string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("storage: empty image: %w", apperr.ErrInvalidInput)
	}
	name := ImageName(entryID)
	abs, err := f.safePath(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(f.root, ".reverie-tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return name, nil
}

// Read returns the raw bytes of an artifact.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: read %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Delete removes an artifact.
func (f *FS) Delete(name string) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}
