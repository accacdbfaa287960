// Package storage contains object storage abstractions and the backends that
// hold uploaded document versions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"doclocker/internal/config"
)

var (
	// ErrObjectNotFound is returned by Get when no object exists under the key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrPresignUnsupported is returned by backends that cannot issue signed URLs.
	ErrPresignUnsupported = errors.New("presigned urls not supported by backend")
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known, or -1 if unknown.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
// URL is a stable, backend-qualified reference such as s3://bucket/key; it is
// not directly downloadable, use PresignGet for that.
type ObjectInfo struct {
	Key          string
	URL          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the object storage collaborator. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// New builds the backend selected by cfg.Storage.Backend and applies the
// configured per-call timeout.
func New(ctx context.Context, cfg *config.AppConfig) (Storage, error) {
	var (
		s   Storage
		err error
	)
	switch cfg.Storage.Backend {
	case "", "minio":
		s, err = NewMinIO(cfg.MinIO)
	case "s3":
		s, err = NewS3(ctx, cfg.S3)
	case "local":
		s, err = NewLocal(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(s, cfg.Storage.Timeout), nil
}

func tracedHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}
