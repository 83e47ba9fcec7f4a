package domain

import "time"

// Pub/sub channels used by the signal bus and the WebSocket hub.
const (
	ChannelPrices      = "prices"
	ChannelSettlements = "settlements"
	ChannelMarkets     = "markets"
)

// PriceUpdate is published after every committed trade.
type PriceUpdate struct {
	MarketID string    `json:"marketId"`
	Prices   []float64 `json:"prices"`
	Volume   float64   `json:"volume"`
	Version  int64     `json:"version"`
	At       time.Time `json:"at"`
}

// MarketEvent is published on lifecycle transitions (open, lock, settle,
// cancel, void).
type MarketEvent struct {
	MarketID         string       `json:"marketId"`
	Status           MarketStatus `json:"status"`
	WinningOutcomeID string       `json:"winningOutcomeId,omitempty"`
	At               time.Time    `json:"at"`
}
