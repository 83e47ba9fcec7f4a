package pricing

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// ProbabilityToAmericanOdds converts a probability in (0,1) to American
// odds. Favorites (p > 0.5) get negative odds, underdogs positive. This is
// display-only; odds never feed back into the pricing math.
func ProbabilityToAmericanOdds(p float64) (float64, error) {
	if p <= 0 || p >= 1 || math.IsNaN(p) {
		return 0, fmt.Errorf("%w: probability %g outside (0,1)", domain.ErrValidation, p)
	}
	if p > 0.5 {
		return -100 * p / (1 - p), nil
	}
	return 100 * (1 - p) / p, nil
}

// AmericanOddsToProbability is the inverse of ProbabilityToAmericanOdds.
// Odds in (-100, 100) do not exist in American notation and are rejected.
func AmericanOddsToProbability(odds float64) (float64, error) {
	if math.Abs(odds) < 100 || math.IsNaN(odds) || math.IsInf(odds, 0) {
		return 0, fmt.Errorf("%w: american odds %g must have magnitude >= 100", domain.ErrValidation, odds)
	}
	if odds < 0 {
		return -odds / (-odds + 100), nil
	}
	return 100 / (odds + 100), nil
}
