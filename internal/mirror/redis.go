package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis-backed variable store.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore persists mirrored variables as plain Redis strings. It serves
// both halves: writes from the middleware and reads for the startup restore.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the link with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Set assigns a named variable.
func (s *RedisStore) Set(ctx context.Context, name, value string) error {
	return s.client.Set(ctx, name, value, 0).Err()
}

// Get fetches a named variable; absence is not an error.
func (s *RedisStore) Get(ctx context.Context, name string) (string, bool, error) {
	value, err := s.client.Get(ctx, name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Close releases the client resources.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var (
	_ VariableStore  = (*RedisStore)(nil)
	_ VariableReader = (*RedisStore)(nil)
)
