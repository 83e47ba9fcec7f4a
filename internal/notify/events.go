package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// Event types the operator can subscribe to via the notify config.
const (
	EventMarketCreated = "market_created"
	EventMarketSettled = "market_settled"
	EventMarketAborted = "market_aborted"
)

// MarketCreated announces a newly created market. Delivery failures are
// logged by the dispatcher and never surfaced to the trading path.
func (n *Notifier) MarketCreated(ctx context.Context, m domain.Market) {
	title := fmt.Sprintf("Market created: %s", m.Label)
	body := fmt.Sprintf("ID: %s\nType: %s\nOutcomes: %d\nLiquidity: %.0f",
		m.ID, m.Type, len(m.Outcomes), m.Liquidity)
	_ = n.Notify(ctx, EventMarketCreated, title, body)
}

// MarketSettled announces a resolved market with its payout totals.
func (n *Notifier) MarketSettled(ctx context.Context, m domain.Market, totalPaidOut float64, betCount int) {
	title := fmt.Sprintf("Market settled: %s", m.Label)
	body := fmt.Sprintf("ID: %s\nWinner: %s\nBets settled: %d\nPaid out: %.2f",
		m.ID, m.WinningOutcomeID, betCount, totalPaidOut)
	_ = n.Notify(ctx, EventMarketSettled, title, body)
}

// MarketAborted announces a cancelled or voided market with its refund
// totals.
func (n *Notifier) MarketAborted(ctx context.Context, m domain.Market, totalRefunded float64, refundCount int) {
	title := fmt.Sprintf("Market %s: %s", m.Status, m.Label)
	body := fmt.Sprintf("ID: %s\nRefunds: %d\nReturned: %.2f",
		m.ID, refundCount, totalRefunded)
	_ = n.Notify(ctx, EventMarketAborted, title, body)
}
