package secretstore

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// File stores each key in its own file under dir.
type File struct {
	dir string
	mu  sync.Mutex
}

// DefaultDir returns the per-user config directory for service.
func DefaultDir(service string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Join(ErrBackendUnavailable, err)
	}
	return filepath.Join(base, service), nil
}

// NewFile creates dir (0700) if needed and returns a file-backed store.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the directory holding the secrets.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".secret")
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrBackendUnavailable, err)
	}
	return string(data), true, nil
}

// Set writes to a temp file and renames it over the target so readers never
// see a partial value.
func (f *File) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Join(ErrBackendUnavailable, err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return errors.Join(ErrBackendUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Join(ErrBackendUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

var _ Store = (*File)(nil)
