package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"doclocker/internal/apperr"
	"doclocker/internal/logging"
	"doclocker/internal/metrics"
	"doclocker/internal/model"
	"doclocker/internal/repository"
	"doclocker/internal/storage"
)

// Retry budgets for optimistic writes.
const (
	maxVersionAttempts = 5
	maxTokenAttempts   = 5
)

// Options carries the tunables shared by all services.
type Options struct {
	DBTimeout      time.Duration
	PresignExpiry  time.Duration
	MaxUploadBytes int64
	AllowedTypes   []string
	PublicBaseURL  string
	Now            func() time.Time
	Logger         logrus.FieldLogger
	Metrics        *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.DBTimeout <= 0 {
		o.DBTimeout = 5 * time.Second
	}
	if o.PresignExpiry <= 0 {
		o.PresignExpiry = 15 * time.Minute
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 10 << 20
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

func (o Options) dbCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.DBTimeout)
}

// downloadURL returns a presigned link for v, or the API download route when
// the backend cannot presign.
func (o Options) downloadURL(ctx context.Context, store storage.Storage, v model.Version) string {
	if u, err := store.PresignGet(ctx, v.StorageKey, o.PresignExpiry); err == nil {
		return u
	} else if !errors.Is(err, storage.ErrPresignUnsupported) {
		o.Logger.WithError(err).WithField("storage_key", v.StorageKey).Warn("presign failed, falling back to api download")
	}
	return fmt.Sprintf("%s/documents/%s/versions/%d/file", o.PublicBaseURL, v.DocumentID, v.VersionNumber)
}

// notFoundOr maps repository.ErrNotFound to a NotFound error with msg and
// everything else to a PersistenceError.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return apperr.Persistence("database operation failed", err)
}
