package broker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuoteCache wraps a Broker with a short-TTL Redis cache on GetPrice. The
// daily phases run minutes apart, so the TTL only coalesces quote lookups
// made within a single phase. All other calls pass through untouched.
type QuoteCache struct {
	Broker
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a caching wrapper around a broker
func NewQuoteCache(inner Broker, rdb *redis.Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{Broker: inner, rdb: rdb, ttl: ttl}
}

// GetPrice returns the cached quote when fresh, otherwise fetches and caches.
// Cache failures fall back to the broker; they never fail the call.
func (c *QuoteCache) GetPrice(ctx context.Context, symbol string) (*PriceInfo, error) {
	key := "quote:" + symbol

	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var info PriceInfo
		if err := json.Unmarshal([]byte(cached), &info); err == nil {
			return &info, nil
		}
	} else if err != redis.Nil {
		log.Printf("quote cache read failed for %s: %v", symbol, err)
	}

	info, err := c.Broker.GetPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(info); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Printf("quote cache write failed for %s: %v", symbol, err)
		}
	}
	return info, nil
}
