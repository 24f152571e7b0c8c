package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

// CacheRepository stores JSON payloads in Redis for the catalog cache.
type CacheRepository struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	return &CacheRepository{rdb: client, logger: logger}
}

// Get unmarshals the cached value at key into dest. A missing key yields
// ErrCacheMiss, never a fault.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.rdb == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cached %s: %w", key, err)
	}
	return nil
}

// Set stores value as JSON under key with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.rdb == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes every key matching the glob pattern. Used to drop
// all cached catalog entries after a course or enrollment mutation.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.rdb == nil {
		return nil
	}

	iter := r.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return nil
}

// Close releases the underlying connection.
func (r *CacheRepository) Close() error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
