package files

import (
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/logging"
)

// S3Storage implements Storage against any S3-compatible object store.
type S3Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	Endpoint  string // e.g. "s3.us-east-005.backblazeb2.com"
	KeyID     string
	SecretKey string
	Bucket    string
	Prefix    string // optional folder prefix for all objects
}

// NewS3Storage creates a new S3-backed storage.
func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	logging.S3.Printf("initializing storage (bucket=%s, prefix=%s, endpoint=%s)", cfg.Bucket, cfg.Prefix, cfg.Endpoint)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.KeyID, cfg.SecretKey, ""),
		Secure: true,
	})
	if err != nil {
		logging.S3.Printf("failed to create client: %v", err)
		return nil, err
	}

	logging.S3.Printf("storage initialized successfully")
	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Storage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Storage) Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	obj := s.objectKey(key)
	logging.S3.Printf("uploading %s to bucket %s", obj, s.bucket)

	info, err := s.client.PutObject(ctx, s.bucket, obj, data, size, minio.PutObjectOptions{})
	if err != nil {
		logging.S3.Printf("upload failed for %s: %v", obj, err)
		return 0, err
	}

	logging.S3.Printf("uploaded %s successfully (%d bytes)", obj, info.Size)
	return info.Size, nil
}

func (s *S3Storage) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	obj := s.objectKey(key)

	reader, err := s.client.GetObject(ctx, s.bucket, obj, minio.GetObjectOptions{})
	if err != nil {
		logging.S3.Printf("failed to get object %s: %v", obj, err)
		return nil, err
	}

	// GetObject is lazy; stat to surface missing objects now
	if _, err := reader.Stat(); err != nil {
		reader.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		logging.S3.Printf("failed to stat object %s: %v", obj, err)
		return nil, err
	}

	return reader, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	obj := s.objectKey(key)
	logging.S3.Printf("deleting %s from bucket %s", obj, s.bucket)

	err := s.client.RemoveObject(ctx, s.bucket, obj, minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return ErrNotFound
		}
		logging.S3.Printf("failed to delete %s: %v", obj, err)
		return err
	}

	return nil
}
