package files

import (
	"context"
	"io"
)

// Storage defines the interface for blob storage.
type Storage interface {
	// Save stores the blob under key. size may be -1 if unknown.
	Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error)
	Load(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
