package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists markets with optimistic concurrency: Save succeeds
// only when the stored version still equals expectedVersion, and returns
// ErrStaleVersion otherwise. Stores are injected at construction so tests
// can instantiate fully isolated engines.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	Save(ctx context.Context, m Market, expectedVersion int64) error
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
}

// BetStore persists bets. Bets are never deleted. UpdateIf is the claim
// primitive for bet resolution: it writes b only when the stored bet still
// has the expected status, and returns ErrStaleVersion otherwise. Exactly
// one of the concurrent resolution paths (settlement, cash-out, refund)
// can claim a bet; the loser must not move money for it.
type BetStore interface {
	Create(ctx context.Context, b Bet) error
	Get(ctx context.Context, id string) (Bet, error)
	Update(ctx context.Context, b Bet) error
	UpdateIf(ctx context.Context, b Bet, expected BetStatus) error
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
}

// BalanceService is the external funds ledger. The engine debits a user
// before confirming a bet and credits on settlement, cash-out, or refund.
// ref identifies the trade so the remote side can deduplicate; any failure
// must abort the in-flight trade atomically.
type BalanceService interface {
	Debit(ctx context.Context, userID string, amount float64, ref string) error
	Credit(ctx context.Context, userID string, amount float64, ref string) error
}
