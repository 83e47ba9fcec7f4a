package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

func TestCostEmptyOrInvalid(t *testing.T) {
	assert.Zero(t, Cost(nil, 100))
	assert.Zero(t, Cost([]float64{10, 20}, 0))
	assert.Zero(t, Cost([]float64{10, 20}, -5))
}

func TestCostFreshMarket(t *testing.T) {
	// C(0) = b·ln(n) is the maximum subsidy of the market.
	b := 100.0
	for n := 2; n <= 10; n++ {
		q := make([]float64, n)
		assert.InDelta(t, b*math.Log(float64(n)), Cost(q, b), 1e-9)
		assert.InDelta(t, MaxSubsidy(b, n), Cost(q, b), 1e-9)
	}
}

func TestCostIsMonotonic(t *testing.T) {
	q := []float64{40, 10, 25}
	b := 100.0
	prev := CostToBuy(q, b, 0, 0.0001)
	for delta := 1.0; delta <= 10_000; delta *= 2 {
		cost := CostToBuy(q, b, 0, delta)
		assert.Greater(t, cost, prev, "cost must increase with delta %g", delta)
		prev = cost
	}
}

func TestCostToBuyBelowDelta(t *testing.T) {
	// Each share pays at most 1, so delta shares always cost less than delta.
	q := []float64{0, 0}
	for _, delta := range []float64{0.01, 1, 50, 500, 10_000} {
		cost := CostToBuy(q, 100, 0, delta)
		assert.Less(t, cost, delta)
		assert.Greater(t, cost, 0.0)
	}
}

func TestPricesSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 500; trial++ {
		n := 2 + rng.Intn(12)
		b := 10 + rng.Float64()*990
		q := make([]float64, n)
		for i := range q {
			q[i] = rng.Float64() * 5_000
		}

		var sum float64
		for _, p := range Prices(q, b) {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, PriceSumTolerance)
		require.NoError(t, ValidatePriceSum(q, b))
	}
}

func TestPriceMatchesPrices(t *testing.T) {
	q := []float64{120, 30, 75, 980}
	b := 150.0
	all := Prices(q, b)
	for i := range q {
		assert.InDelta(t, all[i], Price(q, b, i), 1e-12)
		assert.Greater(t, all[i], 0.0)
		assert.Less(t, all[i], 1.0)
	}
}

func TestPriceStableUnderLargeShares(t *testing.T) {
	// Naive exp(q/b) overflows here; log-sum-exp must not.
	q := []float64{1e6, 999_950}
	b := 10.0
	for i := range q {
		p := Price(q, b, i)
		assert.False(t, math.IsNaN(p))
		assert.False(t, math.IsInf(p, 0))
	}
	require.NoError(t, ValidatePriceSum(q, b))

	cost := Cost(q, b)
	assert.False(t, math.IsInf(cost, 0))
	assert.Greater(t, cost, 1e6-1)
}

func TestSharesForCostInvertsCost(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 200; trial++ {
		n := 2 + rng.Intn(6)
		b := 50 + rng.Float64()*450
		q := make([]float64, n)
		for i := range q {
			q[i] = rng.Float64() * 2_000
		}
		i := rng.Intn(n)
		amount := 0.01 + rng.Float64()*9_999.99

		delta, err := SharesForCost(q, b, i, amount)
		require.NoError(t, err, "b=%g amount=%g", b, amount)
		assert.Greater(t, delta, amount, "shares always exceed the amount paid")
		assert.InDelta(t, amount, CostToBuy(q, b, i, delta), SolverTolerance)
	}
}

func TestSharesForCostRejectsInvalidInput(t *testing.T) {
	q := []float64{0, 0}

	_, err := SharesForCost(q, 100, -1, 50)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	_, err = SharesForCost(q, 100, 2, 50)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	for _, target := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		_, err = SharesForCost(q, 100, 0, target)
		assert.ErrorIs(t, err, domain.ErrValidation, "target %g", target)
	}

	_, err = SharesForCost(q, 0, 0, 50)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSharesForCostDeepTailAccuracy(t *testing.T) {
	// The price of outcome 0 here is about 2e-9, so the cost curve is
	// nearly flat in shares and a cost-based convergence check would stop
	// far from the root. The solve must land within the share tolerance
	// of the closed-form two-outcome inverse.
	q := []float64{0, 2_000}
	b := 100.0
	amount := 1.0

	delta, err := SharesForCost(q, b, 0, amount)
	require.NoError(t, err)

	sum := math.Exp(q[0]/b) + math.Exp(q[1]/b)
	exact := b*math.Log(sum*math.Exp(amount/b)-math.Exp(q[1]/b)) - q[0]
	assert.InDelta(t, exact, delta, SolverTolerance)
}

func TestSharesForCostWidenedAgrees(t *testing.T) {
	q := []float64{500, 120, 80}
	b := 100.0
	narrow, err := SharesForCost(q, b, 1, 250)
	require.NoError(t, err)
	wide, err := SharesForCostWidened(q, b, 1, 250)
	require.NoError(t, err)
	assert.InDelta(t, narrow, wide, 10*SolverTolerance)
}

func TestCashOutRoundTrip(t *testing.T) {
	// Buying and immediately unwinding against the same state returns
	// exactly what was paid; the maker cannot be arbitraged.
	q := []float64{200, 350}
	b := 100.0

	delta, err := SharesForCost(q, b, 0, 75)
	require.NoError(t, err)
	cost := CostToBuy(q, b, 0, delta)

	after := []float64{q[0] + delta, q[1]}
	value := CashOutValue(after, b, 0, delta)
	assert.InDelta(t, cost, value, 1e-9)
}

func TestCashOutValueDropsWithPrice(t *testing.T) {
	b := 100.0
	q := []float64{100, 100}
	delta, err := SharesForCost(q, b, 0, 50)
	require.NoError(t, err)

	held := []float64{q[0] + delta, q[1]}
	atEntry := CashOutValue(held, b, 0, delta)

	// Heavy buying on the other outcome moves the price against the holder.
	moved := []float64{held[0], held[1] + 300}
	afterMove := CashOutValue(moved, b, 0, delta)
	assert.Less(t, afterMove, atEntry)
}

func TestMaxSubsidy(t *testing.T) {
	assert.Zero(t, MaxSubsidy(100, 0))
	assert.Zero(t, MaxSubsidy(100, 1))
	assert.InDelta(t, 100*math.Log(2), MaxSubsidy(100, 2), 1e-12)
	assert.InDelta(t, 250*math.Log(64), MaxSubsidy(250, 64), 1e-12)
}

func TestWorstCaseLossBoundedBySubsidy(t *testing.T) {
	// However trading goes, liability minus collected cost never exceeds
	// b·ln(n).
	rng := rand.New(rand.NewSource(23))
	b := 100.0
	n := 4
	q := make([]float64, n)
	var collected float64
	for trades := 0; trades < 200; trades++ {
		i := rng.Intn(n)
		delta, err := SharesForCost(q, b, i, 1+rng.Float64()*99)
		require.NoError(t, err)
		collected += CostToBuy(q, b, i, delta)
		q[i] += delta
	}
	for i := range q {
		loss := q[i] - collected
		assert.LessOrEqual(t, loss, MaxSubsidy(b, n)+SolverTolerance*200,
			"outcome %d liability exceeds the subsidy bound", i)
	}
}
