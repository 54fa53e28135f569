package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"mobirides/internal/verification/models"
	id "mobirides/pkg/domain"
)

const cacheKeyPrefix = "verification:user:"

// RedisCache decorates a Backend with a read-through Redis cache. Writes go
// to the backend first and then refresh the cached copy. Cache failures are
// logged and never fail the call; the backend stays the source of truth.
type RedisCache struct {
	next   Backend
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*RedisCache)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func NewRedisCache(next Backend, client *redis.Client, ttl time.Duration, opts ...CacheOption) *RedisCache {
	c := &RedisCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func cacheKey(userID id.UserID) string {
	return cacheKeyPrefix + userID.String()
}

func (c *RedisCache) Get(ctx context.Context, userID id.UserID) (*models.VerificationData, error) {
	raw, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	switch {
	case err == nil:
		var record models.VerificationData
		if jsonErr := json.Unmarshal(raw, &record); jsonErr == nil {
			return models.Normalize(&record), nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cached verification", "user_id", userID.String())
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "verification cache read failed", "user_id", userID.String(), "error", err)
	}

	record, err := c.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, record)
	return record, nil
}

func (c *RedisCache) Create(ctx context.Context, data *models.VerificationData) (*models.VerificationData, error) {
	record, err := c.next.Create(ctx, data)
	if err != nil {
		return nil, err
	}
	c.set(ctx, record)
	return record, nil
}

func (c *RedisCache) Upsert(ctx context.Context, data *models.VerificationData) (*models.VerificationData, error) {
	record, err := c.next.Upsert(ctx, data)
	if err != nil {
		c.invalidate(ctx, data.UserID)
		return nil, err
	}
	c.set(ctx, record)
	return record, nil
}

func (c *RedisCache) Execute(ctx context.Context, userID id.UserID, validate func(*models.VerificationData) error, mutate func(*models.VerificationData)) (*models.VerificationData, error) {
	record, err := c.next.Execute(ctx, userID, validate, mutate)
	if err != nil {
		return nil, err
	}
	c.set(ctx, record)
	return record, nil
}

// ListByStatus bypasses the cache; the review queue must reflect the database.
func (c *RedisCache) ListByStatus(ctx context.Context, status models.Status) ([]*models.VerificationData, error) {
	return c.next.ListByStatus(ctx, status)
}

// Invalidate drops the cached copy so the next Get reads the backend.
func (c *RedisCache) Invalidate(ctx context.Context, userID id.UserID) {
	c.invalidate(ctx, userID)
}

func (c *RedisCache) set(ctx context.Context, record *models.VerificationData) {
	raw, err := json.Marshal(record)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode verification for cache", "user_id", record.UserID.String(), "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(record.UserID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "verification cache write failed", "user_id", record.UserID.String(), "error", err)
	}
}

func (c *RedisCache) invalidate(ctx context.Context, userID id.UserID) {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "verification cache invalidation failed", "user_id", userID.String(), "error", err)
	}
}
