package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// BetStore is an in-memory domain.BetStore.
type BetStore struct {
	mu   sync.RWMutex
	bets map[string]domain.Bet
}

var _ domain.BetStore = (*BetStore)(nil)

// NewBetStore creates an empty BetStore.
func NewBetStore() *BetStore {
	return &BetStore{bets: make(map[string]domain.Bet)}
}

// Create inserts a new bet.
func (s *BetStore) Create(_ context.Context, b domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[b.ID]; ok {
		return fmt.Errorf("%w: bet %s already exists", domain.ErrValidation, b.ID)
	}
	s.bets[b.ID] = b
	return nil
}

// Get returns the bet with the given ID.
func (s *BetStore) Get(_ context.Context, id string) (domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, fmt.Errorf("bet %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

// Update writes back an existing bet.
func (s *BetStore) Update(_ context.Context, b domain.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bets[b.ID]; !ok {
		return fmt.Errorf("bet %s: %w", b.ID, domain.ErrNotFound)
	}
	s.bets[b.ID] = b
	return nil
}

// UpdateIf writes back a bet only when the stored status still matches
// expected, claiming it for the caller's resolution path.
func (s *BetStore) UpdateIf(_ context.Context, b domain.Bet, expected domain.BetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bets[b.ID]
	if !ok {
		return fmt.Errorf("bet %s: %w", b.ID, domain.ErrNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("bet %s is %s, not %s: %w", b.ID, cur.Status, expected, domain.ErrStaleVersion)
	}
	s.bets[b.ID] = b
	return nil
}

// ListByMarket returns all bets on a market in placement order.
func (s *BetStore) ListByMarket(_ context.Context, marketID string) ([]domain.Bet, error) {
	s.mu.RLock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.MarketID == marketID {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListByUser returns a user's bets, newest first.
func (s *BetStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	s.mu.RLock()
	var out []domain.Bet
	for _, b := range s.bets {
		if b.UserID == userID {
			out = append(out, b)
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
