// Package cache keeps the latest joke document in Redis between requests.
package cache

import (
	"context"
	"dadjokes-api/pkg/jokes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "dadjokes:doc:"

// Redis is a read-through document cache. Every failure is logged and
// reported as a miss so the store falls back to replaying the topic.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a cache over client. Entries expire after ttl.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Dial connects to addr and verifies the connection with a ping.
func Dial(ctx context.Context, addr string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("connect to redis (%s): %w", addr, err)
	}
	return New(client, ttl, logger), nil
}

// Key returns the Redis key holding topic's document.
func Key(topic string) string {
	return keyPrefix + topic
}

// Get returns the cached document for topic.
func (c *Redis) Get(ctx context.Context, topic string) (*jokes.Document, bool) {
	data, err := c.client.Get(ctx, Key(topic)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Cache read failed", "topic", topic, "error", err)
		}
		return nil, false
	}

	var doc jokes.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.Warn("Cached document is corrupt", "topic", topic, "error", err)
		return nil, false
	}
	if doc.Items == nil {
		doc.Items = []jokes.Item{}
	}
	return &doc, true
}

// Set stores doc as the latest document for topic.
func (c *Redis) Set(ctx context.Context, topic string, doc *jokes.Document) {
	data, err := json.Marshal(doc)
	if err != nil {
		c.logger.Warn("Failed to encode document for cache", "topic", topic, "error", err)
		return
	}
	if err := c.client.Set(ctx, Key(topic), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed", "topic", topic, "error", err)
	}
}

// Add stores doc only when topic has no entry. Replays fill the cache with
// Add so they never overwrite a document written through by a later save.
func (c *Redis) Add(ctx context.Context, topic string, doc *jokes.Document) {
	data, err := json.Marshal(doc)
	if err != nil {
		c.logger.Warn("Failed to encode document for cache", "topic", topic, "error", err)
		return
	}
	if err := c.client.SetNX(ctx, Key(topic), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache fill failed", "topic", topic, "error", err)
	}
}

// Close releases the underlying connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}
