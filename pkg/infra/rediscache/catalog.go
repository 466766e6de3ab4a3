// Package rediscache wraps a catalog in a Redis read-through cache.
// Misses are collapsed with singleflight so a hot product hits the
// backing catalog once, not once per concurrent request.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sokoide/orderflow/pkg/domain"
)

// DefaultTTL bounds how stale a cached product can get. Checkout
// freezes price onto the order anyway; the cache only serves reads.
const DefaultTTL = 5 * time.Minute

// Catalog implements domain.Catalog over Redis with a backing catalog
// for misses. Cache failures degrade to the backing catalog, never to
// an error.
type Catalog struct {
	rdb  redis.Cmdable
	next domain.Catalog
	ttl  time.Duration
	log  *zap.Logger

	group singleflight.Group
}

// NewCatalog creates a new cached catalog.
func NewCatalog(rdb redis.Cmdable, next domain.Catalog, ttl time.Duration, log *zap.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{rdb: rdb, next: next, ttl: ttl, log: log}
}

func productKey(id string) string {
	return "catalog:product:" + id
}

func (c *Catalog) Product(ctx context.Context, id string) (domain.ProductInfo, error) {
	blob, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	switch {
	case err == nil:
		var info domain.ProductInfo
		if jerr := json.Unmarshal(blob, &info); jerr == nil {
			return info, nil
		}
		// Corrupt entry: fall through and reload.
	case !errors.Is(err, redis.Nil):
		c.log.Warn("catalog cache read failed",
			zap.String("product_id", id), zap.Error(err))
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		info, err := c.next.Product(ctx, id)
		if err != nil {
			return domain.ProductInfo{}, err
		}
		if blob, merr := json.Marshal(info); merr == nil {
			if serr := c.rdb.Set(ctx, productKey(id), blob, c.ttl).Err(); serr != nil {
				c.log.Warn("catalog cache write failed",
					zap.String("product_id", id), zap.Error(serr))
			}
		}
		return info, nil
	})
	if err != nil {
		return domain.ProductInfo{}, err
	}
	return v.(domain.ProductInfo), nil
}

// Invalidate drops the cached entry after a catalog write.
func (c *Catalog) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}
