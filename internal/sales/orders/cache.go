package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DebtCache keeps outstanding-debt listings per client in Redis. Listings
// are small and read often while an operator matches returns, so a short
// TTL read-through is enough; the reconciliation engine invalidates the
// client's key after every decrement.
type DebtCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDebtCache constructs the cache. A zero ttl defaults to one minute.
func NewDebtCache(client *redis.Client, ttl time.Duration) *DebtCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &DebtCache{client: client, ttl: ttl}
}

func debtKey(clientID int64) string {
	return fmt.Sprintf("debts:client:%d", clientID)
}

// Get returns the cached listing, or (nil, false) on miss or decode failure.
func (c *DebtCache) Get(ctx context.Context, clientID int64) ([]OrderItem, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, debtKey(clientID)).Bytes()
	if err != nil {
		return nil, false
	}
	var items []OrderItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// Set stores the listing for the client.
func (c *DebtCache) Set(ctx context.Context, clientID int64, items []OrderItem) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, debtKey(clientID), raw, c.ttl).Err()
}

// Invalidate drops the client's listing.
func (c *DebtCache) Invalidate(ctx context.Context, clientID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	err := c.client.Del(ctx, debtKey(clientID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
