package files

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

var ErrNotFound = errors.New("file not found")
var ErrInvalidKey = errors.New("invalid storage key")

// validKeyPattern allows uuid-style keys only (no path traversal possible)
var validKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// FSStorage implements Storage using the local filesystem.
type FSStorage struct {
	basePath string
}

// NewFSStorage creates a new filesystem-based storage.
func NewFSStorage(basePath string) (*FSStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &FSStorage{basePath: basePath}, nil
}

func validateKey(key string) error {
	if key == "" || len(key) > 64 || !validKeyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}

func (s *FSStorage) path(key string) string {
	return filepath.Join(s.basePath, key)
}

func (s *FSStorage) Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	f, err := os.Create(s.path(key))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return io.Copy(f, data)
}

func (s *FSStorage) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *FSStorage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
