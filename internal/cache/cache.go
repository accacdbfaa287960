// Package cache holds a read-through cache of QR bindings in front of the
// binding repository. Cache failures are never fatal: they degrade to misses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"doclocker/internal/config"
	"doclocker/internal/model"
)

// BindingCache caches bindings by token.
type BindingCache interface {
	Get(ctx context.Context, qrID string) (*model.QRBinding, bool)
	Set(ctx context.Context, b *model.QRBinding)
	Invalidate(ctx context.Context, qrIDs ...string)
}

// Noop is a BindingCache that stores nothing.
type Noop struct{}

func (Noop) Get(context.Context, string) (*model.QRBinding, bool) { return nil, false }
func (Noop) Set(context.Context, *model.QRBinding)                {}
func (Noop) Invalidate(context.Context, ...string)                {}

// Redis is a BindingCache backed by redis.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    logrus.FieldLogger
}

// NewRedisClient builds a client from cfg and checks connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedis wraps client. A non-positive ttl defaults to five minutes.
func NewRedis(client redis.UniversalClient, ttl time.Duration, log logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, ttl: ttl, log: log.WithField("component", "binding_cache")}
}

func (r *Redis) key(qrID string) string {
	return fmt.Sprintf("doclocker:qr:%s", qrID)
}

func (r *Redis) Get(ctx context.Context, qrID string) (*model.QRBinding, bool) {
	val, err := r.client.Get(ctx, r.key(qrID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.WithError(err).WithField("qr_id", qrID).Warn("cache read failed")
		return nil, false
	}

	var b model.QRBinding
	if err := json.Unmarshal(val, &b); err != nil {
		r.log.WithError(err).WithField("qr_id", qrID).Warn("cache entry corrupt")
		return nil, false
	}
	return &b, true
}

func (r *Redis) Set(ctx context.Context, b *model.QRBinding) {
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.key(b.QRID), data, r.ttl).Err(); err != nil {
		r.log.WithError(err).WithField("qr_id", b.QRID).Warn("cache write failed")
	}
}

func (r *Redis) Invalidate(ctx context.Context, qrIDs ...string) {
	if len(qrIDs) == 0 {
		return
	}
	keys := make([]string, len(qrIDs))
	for i, id := range qrIDs {
		keys[i] = r.key(id)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.WithError(err).WithField("qr_ids", qrIDs).Warn("cache invalidation failed")
	}
}
