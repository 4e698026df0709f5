// internal/db/redis.go
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	cachePrefix = "powerline:cache:"
	// keys unlinked per round trip while invalidating
	scanBatch = 100
)

// ErrCacheMiss is returned by GetCache when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// RedisDB is the read-through cache in front of the queue queries. Every key
// lives under cachePrefix so invalidation never touches foreign data.
type RedisDB struct {
	Client *redis.Client
	log    *logrus.Entry
}

func NewRedisDB(ctx context.Context, redisURL string) (*RedisDB, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log := logrus.WithField("component", "cache")
	log.WithField("addr", opt.Addr).Info("Connected to Redis")
	return &RedisDB{Client: client, log: log}, nil
}

func (r *RedisDB) Close() {
	if r.Client == nil {
		return
	}
	if err := r.Client.Close(); err != nil {
		r.log.WithError(err).Warn("Redis close failed")
		return
	}
	r.log.Info("Redis connection closed")
}

func (r *RedisDB) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// ============================================
// Cache
// ============================================

// SetCache stores value as JSON for ttl.
func (r *RedisDB) SetCache(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %q: %w", key, err)
	}
	return r.Client.Set(ctx, cachePrefix+key, data, ttl).Err()
}

// GetCache decodes the cached value into dest.
func (r *RedisDB) GetCache(ctx context.Context, key string, dest interface{}) error {
	data, err := r.Client.Get(ctx, cachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// an undecodable entry is as good as absent
		r.Client.Del(ctx, cachePrefix+key)
		return fmt.Errorf("%w: corrupt entry %q", ErrCacheMiss, key)
	}
	return nil
}

// InvalidateCache unlinks every cache key matching the glob pattern, one scan
// batch at a time.
func (r *RedisDB) InvalidateCache(ctx context.Context, pattern string) error {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := r.Client.Scan(ctx, cursor, cachePrefix+pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := r.Client.Unlink(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("unlink %q: %w", pattern, err)
			}
			removed += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	r.log.WithFields(logrus.Fields{"pattern": pattern, "removed": removed}).Debug("Cache invalidated")
	return nil
}
