package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubMarkets implements MarketService with overridable behavior per test.
type stubMarkets struct {
	createFn func(context.Context, engine.CreateMarketParams) (domain.Market, error)
	getFn    func(context.Context, string) (domain.Market, error)
	listFn   func(context.Context, domain.MarketStatus, domain.ListOpts) ([]domain.Market, error)
	quoteFn  func(context.Context, string, string, float64) (domain.Quote, error)
	settleFn func(context.Context, string, string) (domain.SettlementResult, error)
}

func (s *stubMarkets) CreateMarket(ctx context.Context, p engine.CreateMarketParams) (domain.Market, error) {
	return s.createFn(ctx, p)
}
func (s *stubMarkets) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return s.getFn(ctx, id)
}
func (s *stubMarkets) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return s.listFn(ctx, status, opts)
}
func (s *stubMarkets) GetQuote(ctx context.Context, marketID, outcomeID string, amount float64) (domain.Quote, error) {
	return s.quoteFn(ctx, marketID, outcomeID, amount)
}
func (s *stubMarkets) OpenMarket(ctx context.Context, id string) (domain.Market, error) {
	return s.getFn(ctx, id)
}
func (s *stubMarkets) LockMarket(ctx context.Context, id string) (domain.Market, error) {
	return s.getFn(ctx, id)
}
func (s *stubMarkets) SettleMarket(ctx context.Context, id, winner string) (domain.SettlementResult, error) {
	return s.settleFn(ctx, id, winner)
}
func (s *stubMarkets) CancelMarket(ctx context.Context, id string) (domain.CancelResult, error) {
	return domain.CancelResult{MarketID: id}, nil
}
func (s *stubMarkets) VoidMarket(ctx context.Context, id string) (domain.CancelResult, error) {
	return domain.CancelResult{MarketID: id}, nil
}

var _ MarketService = (*stubMarkets)(nil)

// stubBets implements BetService.
type stubBets struct {
	placeFn func(context.Context, engine.PlaceBetRequest) (domain.Bet, error)
	getFn   func(context.Context, string) (domain.Bet, error)
}

func (s *stubBets) PlaceBet(ctx context.Context, req engine.PlaceBetRequest) (domain.Bet, error) {
	return s.placeFn(ctx, req)
}
func (s *stubBets) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	return s.getFn(ctx, id)
}
func (s *stubBets) CashOut(ctx context.Context, betID string) (domain.CashOutResult, error) {
	return domain.CashOutResult{BetID: betID, Value: 42}, nil
}
func (s *stubBets) ListUserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return []domain.Bet{{ID: "b1", UserID: userID}}, nil
}

var _ BetService = (*stubBets)(nil)

func TestPlaceBetHandler(t *testing.T) {
	bets := &stubBets{
		placeFn: func(_ context.Context, req engine.PlaceBetRequest) (domain.Bet, error) {
			return domain.Bet{ID: "b1", MarketID: req.MarketID, Amount: req.Amount}, nil
		},
	}
	h := NewBetHandler(bets, testLogger())

	body := `{"marketId":"m1","outcomeId":"o1","userId":"alice","amount":50}`
	req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got domain.Bet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, "m1", got.MarketID)
}

func TestPlaceBetHandlerBadJSON(t *testing.T) {
	h := NewBetHandler(&stubBets{}, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	h.PlaceBet(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"validation", domain.ErrBetOutOfRange, http.StatusBadRequest},
		{"state", domain.ErrMarketNotOpen, http.StatusConflict},
		{"concurrency", domain.ErrStaleVersion, http.StatusConflict},
		{"numerical", domain.ErrNoConvergence, http.StatusUnprocessableEntity},
		{"external", domain.ErrExternal, http.StatusBadGateway},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bets := &stubBets{
				placeFn: func(context.Context, engine.PlaceBetRequest) (domain.Bet, error) {
					return domain.Bet{}, tc.err
				},
			}
			h := NewBetHandler(bets, testLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			h.PlaceBet(rec, req)
			assert.Equal(t, tc.want, rec.Code)

			if tc.want == http.StatusInternalServerError {
				// Internal detail must not leak to the client.
				assert.NotContains(t, rec.Body.String(), "boom")
			}
		})
	}
}

func TestGetQuoteHandlerParamValidation(t *testing.T) {
	called := false
	markets := &stubMarkets{
		quoteFn: func(context.Context, string, string, float64) (domain.Quote, error) {
			called = true
			return domain.Quote{}, nil
		},
	}
	h := NewMarketHandler(markets, testLogger())

	for _, target := range []string{
		"/api/markets/m1/quote?amount=50",
		"/api/markets/m1/quote?outcomeId=o1",
		"/api/markets/m1/quote?outcomeId=o1&amount=-3",
		"/api/markets/m1/quote?outcomeId=o1&amount=abc",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.SetPathValue("id", "m1")
		rec := httptest.NewRecorder()
		h.GetQuote(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	assert.False(t, called)
}

func TestGetQuoteHandler(t *testing.T) {
	markets := &stubMarkets{
		quoteFn: func(_ context.Context, marketID, outcomeID string, amount float64) (domain.Quote, error) {
			return domain.Quote{MarketID: marketID, OutcomeID: outcomeID, Amount: amount, Shares: 98.7}, nil
		},
	}
	h := NewMarketHandler(markets, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/m1/quote?outcomeId=o1&amount=50", nil)
	req.SetPathValue("id", "m1")
	rec := httptest.NewRecorder()
	h.GetQuote(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var quote domain.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, "m1", quote.MarketID)
	assert.InDelta(t, 98.7, quote.Shares, 1e-9)
}

func TestListMarketsDefaultsToOpen(t *testing.T) {
	var gotStatus domain.MarketStatus
	markets := &stubMarkets{
		listFn: func(_ context.Context, status domain.MarketStatus, _ domain.ListOpts) ([]domain.Market, error) {
			gotStatus = status
			return nil, nil
		},
	}
	h := NewMarketHandler(markets, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MarketStatusOpen, gotStatus)
}

func TestSettleMarketHandlerRequiresWinner(t *testing.T) {
	h := NewMarketHandler(&stubMarkets{}, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/settle", strings.NewReader(`{}`))
	req.SetPathValue("id", "m1")
	rec := httptest.NewRecorder()
	h.SettleMarket(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&offset=10", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 25, opts.Limit)
	assert.Equal(t, 10, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Zero(t, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/?limit=9999&offset=-4", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 500, opts.Limit, "limit is capped")
	assert.Zero(t, opts.Offset, "negative offsets fall back to 0")
}

func TestCashOutHandler(t *testing.T) {
	h := NewBetHandler(&stubBets{}, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/bets/b1/cashout", nil)
	req.SetPathValue("id", "b1")
	rec := httptest.NewRecorder()
	h.CashOut(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.CashOutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "b1", res.BetID)
	assert.InDelta(t, 42, res.Value, 1e-9)
}
