package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Versioned caches JSON values under keys suffixed with a namespace version.
// Bumping the version orphans every key at once; orphans expire by TTL.
type Versioned struct {
	client     *redis.Client
	ttl        time.Duration
	versionKey string
	channel    string
}

// NewVersioned builds a cache for namespace. A nil client disables caching.
func NewVersioned(client *redis.Client, namespace string, ttl time.Duration) *Versioned {
	return &Versioned{
		client:     client,
		ttl:        ttl,
		versionKey: namespace + ":version",
		channel:    namespace + ".bump",
	}
}

// Version returns the current version, initialising it when missing.
func (c *Versioned) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so two cold readers agree on the first version.
		if err := c.client.SetNX(ctx, c.versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes parts with the current version.
func (c *Versioned) Key(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// Bump invalidates every cached value and announces the new version.
func (c *Versioned) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.channel, strconv.FormatInt(ver, 10)).Err()
}

// Invalidate is Bump under the name mutation services expect.
func (c *Versioned) Invalidate(ctx context.Context) error {
	return c.Bump(ctx)
}

// Channel is where bumps are announced.
func (c *Versioned) Channel() string {
	return c.channel
}

// Fetch returns the cached value at key or fills it from loader. Cache read
// and write failures fall through to the loader result.
func Fetch[T any](ctx context.Context, c *Versioned, key string, loader func(context.Context) (T, error)) (T, error) {
	var zero T
	if loader == nil {
		return zero, errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached T
		if jerr := json.Unmarshal(payload, &cached); jerr == nil {
			return cached, nil
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	if raw, jerr := json.Marshal(value); jerr == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return value, nil
}
