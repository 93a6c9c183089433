package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage shares the session tier between processes of one deployment.
type RedisStorage struct {
	client *redis.Client
}

var _ ExpiringStorage = (*RedisStorage)(nil)

// NewRedisStorage wraps an existing client.
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// OpenRedisStorage connects to redisURL and checks the connection.
func OpenRedisStorage(ctx context.Context, redisURL string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStorage{client: client}, nil
}

func (r *RedisStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get value: %w", err)
	}
	return val, true, nil
}

func (r *RedisStorage) SetItem(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// SetItemTTL stores value and lets Redis expire it after ttl.
func (r *RedisStorage) SetItemTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStorage) RemoveItem(ctx context.Context, key string) error {
	return r.client.Unlink(ctx, key).Err()
}

// Keys scans for every key starting with prefix.
func (r *RedisStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	pattern := escapeGlob(prefix) + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		out = append(out, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
