package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/skyfeed/skyfeed/pkg/config"
	"github.com/skyfeed/skyfeed/pkg/logging"
)

const keyPrefix = "skyfeed:"

var (
	// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
	ErrCacheDisabled = errors.New("cache is disabled")
	// ErrMiss is returned when a key is not cached
	ErrMiss = errors.New("cache miss")
)

// Redis wraps the Redis client used as the mirror tier
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis client. It returns nil when Redis is not configured.
func NewRedis(cfg *config.RedisConfig) (*Redis, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis cache disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return &Redis{client: client, ttl: cfg.TTL}, nil
}

// HashKey builds a fixed-length key from arbitrary parts
func HashKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func (r *Redis) namespaceKey(key string) string {
	return keyPrefix + key
}

// GetJSON decodes the value stored under key into v
func (r *Redis) GetJSON(ctx context.Context, key string, v interface{}) error {
	if r == nil || r.client == nil {
		return ErrCacheDisabled
	}
	data, err := r.client.Get(ctx, r.namespaceKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SetJSON stores v under key with the configured TTL
func (r *Redis) SetJSON(ctx context.Context, key string, v interface{}) error {
	if r == nil || r.client == nil {
		return ErrCacheDisabled
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.namespaceKey(key), data, r.ttl).Err()
}

// Delete removes a key from cache
func (r *Redis) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return ErrCacheDisabled
	}
	return r.client.Del(ctx, r.namespaceKey(key)).Err()
}

// Exists reports whether key is stored
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil {
		return false, ErrCacheDisabled
	}
	n, err := r.client.Exists(ctx, r.namespaceKey(key)).Result()
	return n > 0, err
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Health checks Redis health
func (r *Redis) Health(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrCacheDisabled
	}
	return r.client.Ping(ctx).Err()
}
