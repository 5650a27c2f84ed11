package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"threadhub/internal/model"
)

// TurnCache stores reconciled views keyed by thread. A cached view is only
// valid for the LastSeq it was computed at.
type TurnCache interface {
	Get(ctx context.Context, threadID string) (*model.ThreadTurns, bool, error)
	Put(ctx context.Context, view *model.ThreadTurns) error
	Invalidate(ctx context.Context, threadID string) error
}

// NopTurnCache is used when no Redis is configured.
type NopTurnCache struct{}

func (NopTurnCache) Get(context.Context, string) (*model.ThreadTurns, bool, error) {
	return nil, false, nil
}
func (NopTurnCache) Put(context.Context, *model.ThreadTurns) error { return nil }
func (NopTurnCache) Invalidate(context.Context, string) error      { return nil }

type RedisTurnCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisTurnCache parses a redis:// URL and returns a cache client.
func NewRedisTurnCache(url string, ttl time.Duration) (*RedisTurnCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisTurnCacheWithClient(redis.NewClient(opts), ttl), nil
}

func NewRedisTurnCacheWithClient(client *redis.Client, ttl time.Duration) *RedisTurnCache {
	return &RedisTurnCache{client: client, ttl: ttl, prefix: "threadhub:turns:"}
}

func (c *RedisTurnCache) key(threadID string) string {
	return c.prefix + threadID
}

func (c *RedisTurnCache) Get(ctx context.Context, threadID string) (*model.ThreadTurns, bool, error) {
	data, err := c.client.Get(ctx, c.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var view model.ThreadTurns
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, false, fmt.Errorf("decode cached turns: %w", err)
	}
	return &view, true, nil
}

func (c *RedisTurnCache) Put(ctx context.Context, view *model.ThreadTurns) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}
	if err := c.client.Set(ctx, c.key(view.ThreadID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisTurnCache) Invalidate(ctx context.Context, threadID string) error {
	if err := c.client.Del(ctx, c.key(threadID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity; used at startup.
func (c *RedisTurnCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTurnCache) Close() error {
	return c.client.Close()
}
