package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Altmerian/jackpot/config"
	"github.com/Altmerian/jackpot/errors"
)

const connectTimeout = 5 * time.Second

// Client is the Redis connection shared by the pool cache. Failures are
// reported as ErrRedisError.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetAddr(),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	c := &Client{rdb: rdb}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return c, nil
}

// Atomic runs fn inside MULTI/EXEC so its commands apply together.
func (c *Client) Atomic(ctx context.Context, op string, fn func(redis.Pipeliner) error) error {
	if _, err := c.rdb.TxPipelined(ctx, fn); err != nil {
		return errors.Wrap(err, errors.ErrRedisError, op)
	}
	return nil
}

// Bytes returns the value stored at key. found is false when the key does
// not exist.
func (c *Client) Bytes(ctx context.Context, key string) (val []byte, found bool, err error) {
	val, err = c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrRedisError, "get "+key)
	}
	return val, true, nil
}

// Hash returns every field of the hash at key.
func (c *Client) Hash(ctx context.Context, key string) (map[string]string, error) {
	val, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrRedisError, "hgetall "+key)
	}
	return val, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrRedisError, "failed to connect to Redis")
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
