// Package domain defines the core types, interfaces, and error taxonomy for
// the poolhouse wager engine. It has no dependencies on any other internal
// package; stores, caches, and services all speak in these types.
package domain

import "time"

// MarketType selects the outcome-set template used when a market is created.
type MarketType string

const (
	MarketTypePoolWinner  MarketType = "pool_winner"  // N participants, one winner
	MarketTypeMatchup     MarketType = "matchup"      // binary A vs B
	MarketTypeFutures     MarketType = "futures"      // multi-way champion market
	MarketTypeProposition MarketType = "proposition"  // over/under a line
	MarketTypeHeadToHead  MarketType = "head_to_head" // A vs B with a tie outcome
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusPending   MarketStatus = "pending"
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusLocked    MarketStatus = "locked"
	MarketStatusSettled   MarketStatus = "settled"
	MarketStatusCancelled MarketStatus = "cancelled"
	MarketStatusVoided    MarketStatus = "voided"
)

// Terminal reports whether the status admits no further transitions.
func (s MarketStatus) Terminal() bool {
	switch s {
	case MarketStatusSettled, MarketStatusCancelled, MarketStatusVoided:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the one-directional lifecycle permits
// moving from s to next. Cancellation and voiding are allowed from any
// pre-settled state; settlement requires the market to already be locked.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case MarketStatusOpen:
		return s == MarketStatusPending
	case MarketStatusLocked:
		return s == MarketStatusOpen
	case MarketStatusSettled:
		return s == MarketStatusLocked
	case MarketStatusCancelled, MarketStatusVoided:
		return true
	default:
		return false
	}
}

// Outcome is one of the mutually exclusive results a market resolves to.
// Shares is the cumulative net quantity issued by the market maker; it only
// changes through a committed trade.
type Outcome struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Shares float64 `json:"shares"`
	Volume float64 `json:"volume"`
}

// BetLimits bounds individual stakes and the market's worst-case payout
// liability. MaxExposure <= 0 disables the exposure check.
type BetLimits struct {
	MinBet      float64 `json:"minBet"`
	MaxBet      float64 `json:"maxBet"`
	MaxExposure float64 `json:"maxExposure"`
}

// Market is an LMSR-priced market over a fixed set of outcomes. The outcome
// set and the liquidity parameter are immutable after creation; everything
// else mutates only through the ledger, which bumps Version on every change.
type Market struct {
	ID               string       `json:"id"`
	Type             MarketType   `json:"type"`
	Label            string       `json:"label"`
	Outcomes         []Outcome    `json:"outcomes"`
	Liquidity        float64      `json:"liquidity"` // LMSR b parameter
	Status           MarketStatus `json:"status"`
	Volume           float64      `json:"volume"`
	Version          int64        `json:"version"`
	Limits           BetLimits    `json:"limits"`
	CashOutEnabled   bool         `json:"cashOutEnabled"`
	WinningOutcomeID string       `json:"winningOutcomeId,omitempty"`
	OpensAt          *time.Time   `json:"opensAt,omitempty"`
	ClosesAt         *time.Time   `json:"closesAt,omitempty"`
	SettledAt        *time.Time   `json:"settledAt,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// OutcomeIndex returns the position of the outcome with the given ID, or -1.
func (m Market) OutcomeIndex(outcomeID string) int {
	for i := range m.Outcomes {
		if m.Outcomes[i].ID == outcomeID {
			return i
		}
	}
	return -1
}

// ShareVector returns a fresh slice of cumulative shares per outcome, in
// outcome order, suitable for handing to the pricing functions.
func (m Market) ShareVector() []float64 {
	q := make([]float64, len(m.Outcomes))
	for i := range m.Outcomes {
		q[i] = m.Outcomes[i].Shares
	}
	return q
}

// Clone returns a deep copy of the market. The ledger never mutates a market
// in place: every trade clones the current snapshot, mutates the clone, and
// swaps it in with a version bump.
func (m Market) Clone() Market {
	out := m
	out.Outcomes = make([]Outcome, len(m.Outcomes))
	copy(out.Outcomes, m.Outcomes)
	if m.OpensAt != nil {
		t := *m.OpensAt
		out.OpensAt = &t
	}
	if m.ClosesAt != nil {
		t := *m.ClosesAt
		out.ClosesAt = &t
	}
	if m.SettledAt != nil {
		t := *m.SettledAt
		out.SettledAt = &t
	}
	return out
}
