// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis shared tier
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	DialTimeout time.Duration
}

// redisClient is the subset of Redis used by RedisStore
type redisClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, match string) ([]string, error)
	Close() error
}

// errRedisNil marks a missing key in redisClient.Get
var errRedisNil = errors.New("redis: nil")

// goRedisClient adapts *redis.Client
type goRedisClient struct {
	client *redis.Client
}

var _ redisClient = (*goRedisClient)(nil)

func (c *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errRedisNil
	}
	return data, err
}

func (c *goRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *goRedisClient) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.client.Del(ctx, keys...).Result()
}

func (c *goRedisClient) Scan(ctx context.Context, match string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}

// RedisStore is a SharedStore on Redis. Keys are namespaced by Prefix and
// expire server-side at the entry deadline.
type RedisStore struct {
	client redisClient
	prefix string
	now    func() time.Time
}

var _ SharedStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return newRedisStore(&goRedisClient{client: client}, cfg.Prefix, nil), nil
}

func newRedisStore(client redisClient, prefix string, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, prefix: prefix, now: now}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key)
	if errors.Is(err, errRedisNil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	e, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, err
	}
	if e.Expired(s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, e Entry) error {
	ttl := e.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := s.client.Scan(ctx, s.prefix+pattern)
	if err != nil {
		return 0, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...)
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
