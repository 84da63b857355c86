// Package cache keeps rendered marker sets in Redis so outline reads skip
// the document scan while the revision is unchanged.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chronicle/outline/internal/numbering"
)

// ErrMiss is returned when no marker set is cached for the requested revision.
var ErrMiss = errors.New("cache: miss")

const defaultTTL = 10 * time.Minute

// RedisMarkerCache stores the latest marker set per document.
type RedisMarkerCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMarkerCache connects to redisURL and verifies the connection.
func NewRedisMarkerCache(redisURL string, ttl time.Duration) (*RedisMarkerCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisMarkerCacheWithClient(client, ttl), nil
}

// NewRedisMarkerCacheWithClient wraps an existing client.
func NewRedisMarkerCacheWithClient(client *redis.Client, ttl time.Duration) *RedisMarkerCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisMarkerCache{
		client: client,
		prefix: "outline:markers:",
		ttl:    ttl,
	}
}

func (c *RedisMarkerCache) key(documentID string) string {
	return c.prefix + documentID
}

// Get returns the cached set for documentID when it was rendered from
// revision.
func (c *RedisMarkerCache) Get(ctx context.Context, documentID string, revision int64) (numbering.MarkerSet, error) {
	raw, err := c.client.Get(ctx, c.key(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return numbering.MarkerSet{}, ErrMiss
	}
	if err != nil {
		return numbering.MarkerSet{}, fmt.Errorf("lookup markers: %w", err)
	}

	var set numbering.MarkerSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return numbering.MarkerSet{}, fmt.Errorf("unmarshal markers: %w", err)
	}
	if set.Revision != revision {
		return numbering.MarkerSet{}, ErrMiss
	}
	return set, nil
}

// Put replaces the cached set for documentID.
func (c *RedisMarkerCache) Put(ctx context.Context, documentID string, set numbering.MarkerSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal markers: %w", err)
	}
	if err := c.client.Set(ctx, c.key(documentID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("save markers: %w", err)
	}
	return nil
}

// Invalidate drops the cached set for documentID. Missing keys are fine.
func (c *RedisMarkerCache) Invalidate(ctx context.Context, documentID string) error {
	if err := c.client.Del(ctx, c.key(documentID)).Err(); err != nil {
		return fmt.Errorf("invalidate markers: %w", err)
	}
	return nil
}

func (c *RedisMarkerCache) Close() error {
	return c.client.Close()
}

func (c *RedisMarkerCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
