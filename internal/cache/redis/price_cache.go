package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// priceTTL bounds staleness if an invalidation is ever missed.
const priceTTL = 5 * time.Minute

// PriceCache implements domain.PriceCache. Each market's price vector is
// stored as a JSON value at "prices:{marketID}" with a safety TTL; the
// engine overwrites it after every committed trade.
type PriceCache struct {
	rdb *redis.Client
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func pricesKey(marketID string) string {
	return "prices:" + marketID
}

// Set stores the latest price vector for a market.
func (pc *PriceCache) Set(ctx context.Context, pv domain.PriceVector) error {
	data, err := json.Marshal(pv)
	if err != nil {
		return fmt.Errorf("redis: marshal prices %s: %w", pv.MarketID, err)
	}
	if err := pc.rdb.Set(ctx, pricesKey(pv.MarketID), data, priceTTL).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", pv.MarketID, err)
	}
	return nil
}

// Get retrieves the cached price vector for a market. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) Get(ctx context.Context, marketID string) (domain.PriceVector, error) {
	data, err := pc.rdb.Get(ctx, pricesKey(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PriceVector{}, fmt.Errorf("prices for %s: %w", marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.PriceVector{}, fmt.Errorf("redis: get prices %s: %w", marketID, err)
	}

	var pv domain.PriceVector
	if err := json.Unmarshal(data, &pv); err != nil {
		return domain.PriceVector{}, fmt.Errorf("redis: unmarshal prices %s: %w", marketID, err)
	}
	return pv, nil
}

// Invalidate removes the cached price vector for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, pricesKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices %s: %w", marketID, err)
	}
	return nil
}
