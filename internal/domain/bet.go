package domain

import "time"

// BetStatus tracks the bet lifecycle. A bet is created active during an open
// market's trade and is only ever mutated by cash-out or settlement.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusActive    BetStatus = "active"
	BetStatusWon       BetStatus = "won"
	BetStatusLost      BetStatus = "lost"
	BetStatusCashedOut BetStatus = "cashed_out"
	BetStatusVoided    BetStatus = "voided"
	BetStatusRefunded  BetStatus = "refunded"
)

// Settled reports whether the bet has reached a terminal state.
func (s BetStatus) Settled() bool {
	switch s {
	case BetStatusWon, BetStatusLost, BetStatusCashedOut, BetStatusVoided, BetStatusRefunded:
		return true
	default:
		return false
	}
}

// Bet is a user's position in a single market outcome. Each share redeems for
// exactly one currency unit if the outcome is realized, so PotentialPayout is
// simply Shares.
type Bet struct {
	ID               string     `json:"id"`
	MarketID         string     `json:"marketId"`
	OutcomeID        string     `json:"outcomeId"`
	UserID           string     `json:"userId"`
	Amount           float64    `json:"amount"`
	Shares           float64    `json:"shares"`
	PriceAtPlacement float64    `json:"priceAtPlacement"` // probability before the trade
	OddsAtPlacement  float64    `json:"oddsAtPlacement"`  // American odds, display only
	Status           BetStatus  `json:"status"`
	SettledAmount    float64    `json:"settledAmount"`
	ProfitLoss       float64    `json:"profitLoss"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	SettledAt        *time.Time `json:"settledAt,omitempty"`
}

// PotentialPayout is the amount paid out if the bet's outcome wins.
func (b Bet) PotentialPayout() float64 {
	return b.Shares
}

// Quote is a read-only price estimate for a prospective bet. It carries no
// commitment: the committed cost is always recomputed at trade time.
type Quote struct {
	MarketID    string  `json:"marketId"`
	OutcomeID   string  `json:"outcomeId"`
	Amount      float64 `json:"amount"`
	Shares      float64 `json:"shares"`
	PriceBefore float64 `json:"priceBefore"`
	PriceAfter  float64 `json:"priceAfter"`
	Version     int64   `json:"version"`
}

// CashOutResult reports the value credited when a position is unwound.
type CashOutResult struct {
	BetID string  `json:"betId"`
	Value float64 `json:"value"`
}

// SettlementResult is the outcome of settling a market. Repeated settlement
// calls with the same winning outcome return an identical result.
type SettlementResult struct {
	MarketID         string  `json:"marketId"`
	WinningOutcomeID string  `json:"winningOutcomeId"`
	SettledBets      []Bet   `json:"settledBets"`
	TotalPaidOut     float64 `json:"totalPaidOut"`
}

// Refund records one returned stake from a cancelled or voided market.
type Refund struct {
	BetID  string  `json:"betId"`
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
}

// CancelResult reports the refunds issued when a market is cancelled or
// voided. Refunds return the original stake, never a share-derived value.
type CancelResult struct {
	MarketID string       `json:"marketId"`
	Status   MarketStatus `json:"status"`
	Refunds  []Refund     `json:"refunds"`
	Total    float64      `json:"total"`
}
