// Package redis is the byte store behind the embedding vector cache and the
// search result cache. Values are opaque bytes with a TTL; the caches own
// their key prefixes and clear them with FlushByPrefix.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
)

// scanBatch is both the SCAN page hint and the UNLINK batch size.
const scanBatch = 256

type Client struct {
	rdb *redis.Client
}

// NewClient connects and PINGs, so a wrong address fails at startup
// instead of on the first cache lookup.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis at %s unreachable: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// GetBytes returns the value at key; a missing key is an error for which
// IsNilError holds.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	return c.rdb.Get(ctx, key).Bytes()
}

// MGetBytes fetches keys in one round trip. Missing keys leave a nil entry
// at their position.
func (c *Client) MGetBytes(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// SetBytes stores value with ttl; zero ttl keeps it until evicted.
func (c *Client) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetManyBytes pipelines one SET per entry.
func (c *Client) SetManyBytes(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range values {
			p.Set(ctx, k, v, ttl)
		}
		return nil
	})
	return err
}

// FlushByPrefix removes every key under prefix and reports how many went.
// Keys are unlinked in batches while scanning, so a large cache never sits
// in memory all at once.
func (c *Client) FlushByPrefix(ctx context.Context, prefix string) (int64, error) {
	var (
		removed int64
		batch   = make([]string, 0, scanBatch)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("unlinking %d keys under %q: %w", len(batch), prefix, err)
		}
		removed += n
		batch = batch[:0]
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scanning %q: %w", prefix, err)
	}
	return removed, flush()
}

// IsNilError reports a key-not-found result.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
