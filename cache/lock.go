package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

var ErrLocked = errors.New("resource is locked by another request")

// Lock takes a short-lived cross-instance lock on key. The returned release func
// is always safe to call. Without Redis, or when Redis misbehaves, the lock is
// skipped: the database unique indexes still guard correctness.
func (c *Client) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	noop := func() {}
	if c == nil {
		return noop, nil
	}
	retry := redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20)
	lock, err := c.locker.Obtain(ctx, "lock:"+key, ttl, &redislock.Options{RetryStrategy: retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return noop, ErrLocked
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("could not obtain redis lock; proceeding without it")
		return noop, nil
	}
	return func() {
		// release on a fresh context: the request context may already be done
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			c.logger.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("failed to release redis lock")
		}
	}, nil
}
