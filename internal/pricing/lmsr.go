// Package pricing implements the Logarithmic Market Scoring Rule: pure
// cost/price/inverse-cost math over a share vector q and a liquidity
// parameter b. It holds no state and performs no I/O.
//
// The cost function is C(q) = b·ln(Σ exp(q_i/b)). Prices are its partial
// derivatives (the softmax of q/b), so they always sum to 1, and the market
// maker's worst-case subsidy is bounded by b·ln(n).
package pricing

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

const (
	// SolverTolerance is the share tolerance of the bisection inversion.
	SolverTolerance = 1e-4

	// PriceSumTolerance bounds the drift allowed in Σ price_i = 1.
	PriceSumTolerance = 1e-9

	// maxIterations caps the bisection loop. The solver never returns an
	// approximate value after hitting the cap; it fails typed instead.
	maxIterations = 100

	// defaultBracketGrowth and widenedBracketGrowth control how fast the
	// upper bisection bracket expands while hunting for a sign change.
	defaultBracketGrowth = 2.0
	widenedBracketGrowth = 8.0

	// maxBracketSteps caps bracket expansion before declaring failure.
	maxBracketSteps = 64
)

// Cost evaluates C(q) = b·ln(Σ exp(q_i/b)) using the log-sum-exp trick:
// the maximum of q/b is factored out before exponentiating so heavily
// traded markets cannot overflow float64.
func Cost(q []float64, b float64) float64 {
	if len(q) == 0 || b <= 0 {
		return 0
	}
	maxQ := q[0]
	for _, v := range q[1:] {
		if v > maxQ {
			maxQ = v
		}
	}
	var sum float64
	for _, v := range q {
		sum += math.Exp((v - maxQ) / b)
	}
	return maxQ + b*math.Log(sum)
}

// Price returns the instantaneous price (probability) of outcome i: the
// softmax exp(q_i/b)/Σ exp(q_j/b). It equals the marginal cost ∂C/∂q_i and
// always lies in (0, 1).
func Price(q []float64, b float64, i int) float64 {
	maxQ := q[0]
	for _, v := range q[1:] {
		if v > maxQ {
			maxQ = v
		}
	}
	var sum float64
	for _, v := range q {
		sum += math.Exp((v - maxQ) / b)
	}
	return math.Exp((q[i]-maxQ)/b) / sum
}

// Prices returns the full price vector in one pass.
func Prices(q []float64, b float64) []float64 {
	out := make([]float64, len(q))
	if len(q) == 0 {
		return out
	}
	maxQ := q[0]
	for _, v := range q[1:] {
		if v > maxQ {
			maxQ = v
		}
	}
	var sum float64
	for i, v := range q {
		out[i] = math.Exp((v - maxQ) / b)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// CostToBuy returns C(q with q_i += delta) − C(q): the cost of acquiring
// delta shares of outcome i (negative delta prices a sale). It is strictly
// increasing in delta.
func CostToBuy(q []float64, b float64, i int, delta float64) float64 {
	before := Cost(q, b)
	bumped := make([]float64, len(q))
	copy(bumped, q)
	bumped[i] += delta
	return Cost(bumped, b) - before
}

// CashOutValue prices the unwind of userShares of outcome i: the amount the
// market maker pays to buy the shares back. It may legitimately be less
// than the amount originally paid.
func CashOutValue(q []float64, b float64, i int, userShares float64) float64 {
	return -CostToBuy(q, b, i, -userShares)
}

// SharesForCost inverts CostToBuy: it finds delta > 0 such that buying
// delta shares of outcome i costs targetCost, via bounded bisection over an
// adaptively widened bracket. It returns domain.ErrNoConvergence when the
// iteration cap is hit; it never silently returns an approximation.
func SharesForCost(q []float64, b float64, i int, targetCost float64) (float64, error) {
	return sharesForCost(q, b, i, targetCost, defaultBracketGrowth)
}

// SharesForCostWidened is the retry path for a non-converged solve: same
// inversion with a more aggressive bracket expansion.
func SharesForCostWidened(q []float64, b float64, i int, targetCost float64) (float64, error) {
	return sharesForCost(q, b, i, targetCost, widenedBracketGrowth)
}

func sharesForCost(q []float64, b float64, i int, targetCost, growth float64) (float64, error) {
	if i < 0 || i >= len(q) {
		return 0, domain.ErrInvalidOutcome
	}
	if b <= 0 || targetCost <= 0 || math.IsNaN(targetCost) || math.IsInf(targetCost, 0) {
		return 0, fmt.Errorf("%w: cost target must be positive and finite", domain.ErrValidation)
	}

	// Each share costs strictly less than one unit, so buying targetCost
	// shares costs less than targetCost and the solution lies above it.
	// Expand hi geometrically until the cost curve crosses the target.
	lo := targetCost
	hi := targetCost * growth
	steps := 0
	for CostToBuy(q, b, i, hi) < targetCost {
		lo = hi
		hi *= growth
		steps++
		if steps > maxBracketSteps {
			return 0, fmt.Errorf("bracket %g..%g: %w", lo, hi, domain.ErrNoConvergence)
		}
	}

	// Convergence is judged on the bracket width, in shares. A cost-based
	// stop would exit early where the cost curve is nearly flat, which is
	// exactly the deep out-of-the-money case where share accuracy matters.
	for iter := 0; iter < maxIterations; iter++ {
		mid := (lo + hi) / 2
		if CostToBuy(q, b, i, mid) < targetCost {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < SolverTolerance {
			return (lo + hi) / 2, nil
		}
	}
	return 0, fmt.Errorf("target %g after %d iterations: %w", targetCost, maxIterations, domain.ErrNoConvergence)
}

// MaxSubsidy is the platform's worst-case loss for an n-outcome market:
// b·ln(n).
func MaxSubsidy(b float64, n int) float64 {
	if n < 1 {
		return 0
	}
	return b * math.Log(float64(n))
}

// ValidatePriceSum checks the normalization invariant Σ price_i = 1 within
// PriceSumTolerance.
func ValidatePriceSum(q []float64, b float64) error {
	var sum float64
	for _, p := range Prices(q, b) {
		sum += p
	}
	if math.Abs(sum-1) > PriceSumTolerance {
		return fmt.Errorf("%w: price sum %.12f deviates from 1", domain.ErrNumerical, sum)
	}
	return nil
}
