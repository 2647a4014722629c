package cache

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	lookupPrefix   = "service_lookup:"
	lookupIndexKey = "service_lookup_keys:"
)

// LookupKey is the cache key for a (service id, phone) pair. Either part may be empty.
func LookupKey(serviceID, phone string) string {
	return lookupPrefix + strings.ToUpper(strings.TrimSpace(serviceID)) + ":" + strings.TrimSpace(phone)
}

func lookupIndex(serviceID string) string {
	return lookupIndexKey + strings.ToUpper(strings.TrimSpace(serviceID))
}

// GetLookup reads a cached lookup result into dest. Redis errors are logged and
// reported as a miss.
func (c *Client) GetLookup(ctx context.Context, serviceID, phone string, dest any) bool {
	if c == nil {
		return false
	}
	key := LookupKey(serviceID, phone)
	hit, err := c.getObject(ctx, key, dest)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("lookup cache get failed")
		return false
	}
	return hit
}

// SetLookup caches v and indexes the key under every service id it answers for,
// so InvalidateService can find it again.
func (c *Client) SetLookup(ctx context.Context, serviceID, phone string, v any, resolvedServiceID string) {
	if c == nil {
		return
	}
	key := LookupKey(serviceID, phone)
	if err := c.setObject(ctx, key, v); err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("lookup cache set failed")
		return
	}
	idx := lookupIndex(resolvedServiceID)
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithFields(logrus.Fields{"key": idx, "error": err.Error()}).Warn("lookup cache index failed")
	}
}

// InvalidateService drops every cached lookup that resolved to serviceID.
func (c *Client) InvalidateService(ctx context.Context, serviceID string) {
	if c == nil {
		return
	}
	idx := lookupIndex(serviceID)
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		c.logger.WithFields(logrus.Fields{"key": idx, "error": err.Error()}).Warn("lookup cache invalidate failed")
		return
	}
	keys = append(keys, idx)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{"key": idx, "error": err.Error()}).Warn("lookup cache invalidate failed")
	}
}

// InvalidatePhone drops the phone-only lookup for phone. Lookups that also carry
// a service id are left to InvalidateService.
func (c *Client) InvalidatePhone(ctx context.Context, phone string) {
	if c == nil || strings.TrimSpace(phone) == "" {
		return
	}
	key := LookupKey("", phone)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("lookup cache invalidate failed")
	}
}
