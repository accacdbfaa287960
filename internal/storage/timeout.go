package storage

import (
	"context"
	"io"
	"time"
)

type timeoutStorage struct {
	inner   Storage
	timeout time.Duration
}

// WithTimeout bounds every call on s by d. A non-positive d returns s unchanged.
// For Get, the deadline covers reading the body and is released on Close.
func WithTimeout(s Storage, d time.Duration) Storage {
	if d <= 0 {
		return s
	}
	return &timeoutStorage{inner: s, timeout: d}
}

func (t *timeoutStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Put(ctx, key, r, opt)
}

func (t *timeoutStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	rc, info, err := t.inner.Get(ctx, key)
	if err != nil {
		cancel()
		return nil, ObjectInfo{}, err
	}
	return &cancelOnClose{ReadCloser: rc, cancel: cancel}, info, nil
}

func (t *timeoutStorage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Delete(ctx, key)
}

func (t *timeoutStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.PresignGet(ctx, key, expiry)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
