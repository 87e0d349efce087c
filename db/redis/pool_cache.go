package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/Altmerian/jackpot/pkg/jackpot"
)

// PoolCache keeps the latest known pool value of each jackpot so readers
// can serve pool amounts without touching the jackpot store. It is a
// jackpot.Sink.
type PoolCache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewPoolCache creates a cache whose keys start with prefix.
func NewPoolCache(client *Client, prefix string, ttl time.Duration) *PoolCache {
	return &PoolCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *PoolCache) snapshotKey(jackpotID string) string {
	return fmt.Sprintf("%s:pool:%s", c.prefix, jackpotID)
}

func (c *PoolCache) indexKey() string {
	return c.prefix + ":pools"
}

// Forward stores u as the latest snapshot of its jackpot. The snapshot and
// the index entry are written in one transaction.
func (c *PoolCache) Forward(ctx context.Context, u jackpot.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode pool snapshot: %w", err)
	}
	return c.client.Atomic(ctx, "cache pool "+u.JackpotID, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.snapshotKey(u.JackpotID), data, c.ttl)
		pipe.HSet(ctx, c.indexKey(), u.JackpotID, u.Amount.StringFixed(jackpot.MoneyScale))
		return nil
	})
}

// Get returns the cached snapshot of a jackpot, or nil when none is cached.
func (c *PoolCache) Get(ctx context.Context, jackpotID string) (*jackpot.Update, error) {
	data, found, err := c.client.Bytes(ctx, c.snapshotKey(jackpotID))
	if err != nil || !found {
		return nil, err
	}
	var u jackpot.Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode pool snapshot %s: %w", jackpotID, err)
	}
	return &u, nil
}

// Pools returns the last cached amount of every jackpot seen.
func (c *PoolCache) Pools(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := c.client.Hash(ctx, c.indexKey())
	if err != nil {
		return nil, err
	}
	return parsePools(raw)
}

func parsePools(raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for id, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid cached pool %s=%q: %w", id, v, err)
		}
		out[id] = d
	}
	return out, nil
}
