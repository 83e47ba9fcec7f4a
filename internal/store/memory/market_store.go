// Package memory provides map-backed store implementations for tests and
// the demo mode. They honor the same optimistic concurrency contract as the
// PostgreSQL stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

// Create inserts a new market.
func (s *MarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("%w: market %s already exists", domain.ErrValidation, m.ID)
	}
	s.markets[m.ID] = m.Clone()
	return nil
}

// Get returns a copy of the market with the given ID.
func (s *MarketStore) Get(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	return m.Clone(), nil
}

// Save writes the market guarded by its previous version.
func (s *MarketStore) Save(_ context.Context, m domain.Market, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.markets[m.ID]
	if !ok {
		return fmt.Errorf("market %s: %w", m.ID, domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("market %s at v%d, expected v%d: %w",
			m.ID, cur.Version, expectedVersion, domain.ErrStaleVersion)
	}
	s.markets[m.ID] = m.Clone()
	return nil
}

// ListByStatus returns markets in the given status, newest first.
func (s *MarketStore) ListByStatus(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == status {
			out = append(out, m.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
