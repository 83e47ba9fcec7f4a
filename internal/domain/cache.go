package domain

import (
	"context"
	"io"
	"time"
)

// PriceVector is the cached softmax price state of a market at a version.
type PriceVector struct {
	MarketID  string    `json:"marketId"`
	Prices    []float64 `json:"prices"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PriceCache provides fast access to the latest per-market price vector.
type PriceCache interface {
	Set(ctx context.Context, pv PriceVector) error
	Get(ctx context.Context, marketID string) (PriceVector, error)
	Invalidate(ctx context.Context, marketID string) error
}

// LockManager provides distributed locking, used to fence settlement so two
// instances never resolve the same market concurrently.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for price updates and lifecycle events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports a resolved market and its bets to blob storage and
// returns the object path.
type Archiver interface {
	ArchiveMarket(ctx context.Context, marketID string) (string, error)
}

// RateLimiter applies a request budget per key per window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
