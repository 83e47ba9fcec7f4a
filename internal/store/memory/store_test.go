package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

func market(id string, status domain.MarketStatus, createdAt time.Time) domain.Market {
	return domain.Market{
		ID:        id,
		Status:    status,
		Outcomes:  []domain.Outcome{{ID: id + "-o1"}, {ID: id + "-o2"}},
		Liquidity: 100,
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestMarketStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMarketStore()

	require.NoError(t, s.Create(ctx, market("m1", domain.MarketStatusOpen, time.Now())))
	assert.ErrorIs(t, s.Create(ctx, market("m1", domain.MarketStatusOpen, time.Now())), domain.ErrValidation)

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)

	_, err = s.Get(ctx, "absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMarketStore()
	require.NoError(t, s.Create(ctx, market("m1", domain.MarketStatusOpen, time.Now())))

	got, _ := s.Get(ctx, "m1")
	got.Outcomes[0].Shares = 500

	again, _ := s.Get(ctx, "m1")
	assert.Zero(t, again.Outcomes[0].Shares)
}

func TestMarketStoreSaveVersionGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMarketStore()
	m := market("m1", domain.MarketStatusOpen, time.Now())
	require.NoError(t, s.Create(ctx, m))

	next := m.Clone()
	next.Version = 2
	require.NoError(t, s.Save(ctx, next, 1))

	// A second writer still holding version 1 loses.
	stale := m.Clone()
	stale.Version = 2
	err := s.Save(ctx, stale, 1)
	assert.ErrorIs(t, err, domain.ErrStaleVersion)

	err = s.Save(ctx, market("ghost", domain.MarketStatusOpen, time.Now()), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketStoreSavePersistsLimits(t *testing.T) {
	ctx := context.Background()
	s := NewMarketStore()
	m := market("m1", domain.MarketStatusOpen, time.Now())
	m.Limits = domain.BetLimits{MinBet: 1, MaxBet: 100}
	require.NoError(t, s.Create(ctx, m))

	next := m.Clone()
	next.Version = 2
	next.Limits.MaxBet = 250
	require.NoError(t, s.Save(ctx, next, 1))

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 250.0, got.Limits.MaxBet)
}

func TestMarketStoreListByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMarketStore()
	base := time.Now().UTC()
	require.NoError(t, s.Create(ctx, market("old", domain.MarketStatusOpen, base.Add(-time.Hour))))
	require.NoError(t, s.Create(ctx, market("new", domain.MarketStatusOpen, base)))
	require.NoError(t, s.Create(ctx, market("locked", domain.MarketStatusLocked, base)))

	open, err := s.ListByStatus(ctx, domain.MarketStatusOpen, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "new", open[0].ID, "newest first")

	page, err := s.ListByStatus(ctx, domain.MarketStatusOpen, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "old", page[0].ID)

	none, err := s.ListByStatus(ctx, domain.MarketStatusOpen, domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func bet(id, marketID, userID string, createdAt time.Time) domain.Bet {
	return domain.Bet{
		ID:        id,
		MarketID:  marketID,
		UserID:    userID,
		Status:    domain.BetStatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestBetStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewBetStore()
	b := bet("b1", "m1", "alice", time.Now())

	require.NoError(t, s.Create(ctx, b))
	assert.ErrorIs(t, s.Create(ctx, b), domain.ErrValidation)

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusActive, got.Status)

	got.Status = domain.BetStatusWon
	require.NoError(t, s.Update(ctx, got))
	again, _ := s.Get(ctx, "b1")
	assert.Equal(t, domain.BetStatusWon, again.Status)

	assert.ErrorIs(t, s.Update(ctx, bet("ghost", "m1", "alice", time.Now())), domain.ErrNotFound)
	_, err = s.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBetStoreUpdateIfClaims(t *testing.T) {
	ctx := context.Background()
	s := NewBetStore()
	b := bet("b1", "m1", "alice", time.Now())
	require.NoError(t, s.Create(ctx, b))

	won := b
	won.Status = domain.BetStatusWon
	require.NoError(t, s.UpdateIf(ctx, won, domain.BetStatusActive))

	// The bet is claimed; a second conditional write loses and must not
	// overwrite the stored row.
	cashed := b
	cashed.Status = domain.BetStatusCashedOut
	err := s.UpdateIf(ctx, cashed, domain.BetStatusActive)
	assert.ErrorIs(t, err, domain.ErrConcurrency)

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetStatusWon, got.Status)

	// Releasing the claim requires naming the status it holds.
	require.NoError(t, s.UpdateIf(ctx, b, domain.BetStatusWon))
	got, _ = s.Get(ctx, "b1")
	assert.Equal(t, domain.BetStatusActive, got.Status)

	err = s.UpdateIf(ctx, bet("ghost", "m1", "alice", time.Now()), domain.BetStatusActive)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBetStoreListOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewBetStore()
	base := time.Now().UTC()
	require.NoError(t, s.Create(ctx, bet("b1", "m1", "alice", base.Add(-2*time.Minute))))
	require.NoError(t, s.Create(ctx, bet("b2", "m1", "bob", base.Add(-time.Minute))))
	require.NoError(t, s.Create(ctx, bet("b3", "m2", "alice", base)))

	byMarket, err := s.ListByMarket(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, byMarket, 2)
	assert.Equal(t, "b1", byMarket[0].ID, "placement order")

	byUser, err := s.ListByUser(ctx, "alice", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "b3", byUser[0].ID, "newest first")

	limited, err := s.ListByUser(ctx, "alice", domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
