// Package cache wraps Redis for the service-record lookup cache and for
// best-effort cross-instance locks. A nil *Client is valid and disables both.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mobileshop-backend/config"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultTTL = 5 * time.Minute

type Client struct {
	rdb    *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// New connects to Redis when an address is configured. It returns (nil, nil)
// when Redis is disabled so callers fall through to the database.
func New(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, cfg.TTL, logger), nil
}

func NewWithClient(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *Client {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Client{
		rdb:    rdb,
		locker: redislock.New(rdb),
		ttl:    ttl,
		logger: logger,
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// getObject reads key into dest. A miss is (false, nil).
func (c *Client) getObject(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) setObject(ctx context.Context, key string, v any) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}
