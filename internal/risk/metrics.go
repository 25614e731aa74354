// Package risk holds the stateless loss-distribution primitives used to
// summarise simulated paths: mean, VaR, expected shortfall, default counts,
// diversification benefit and marginal contributions.
//
// Empty inputs produce 0 rather than an error. Quantiles must lie in (0, 1].
package risk

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// PercentPrecision is the number of decimals kept in percentage outputs
const PercentPrecision = 1

// Mean returns the arithmetic mean, or 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}

// VaR returns the q-quantile of losses by order statistic.
// losses is not modified.
func VaR(losses []float64, q float64) (float64, error) {
	if err := validateQuantile("var", q); err != nil {
		return 0, err
	}
	return NewLossDistribution(losses).valueAt(q), nil
}

// ES returns the mean of the order statistics at and beyond the VaR(q) index.
// losses is not modified.
func ES(losses []float64, q float64) (float64, error) {
	if err := validateQuantile("expected_shortfall", q); err != nil {
		return 0, err
	}
	return NewLossDistribution(losses).tailMean(q), nil
}

// LossDistribution is a sorted copy of a loss sample, for querying several
// quantiles without re-sorting.
type LossDistribution struct {
	sorted []float64
}

// NewLossDistribution copies and sorts losses ascending
func NewLossDistribution(losses []float64) *LossDistribution {
	sorted := slices.Clone(losses)
	slices.Sort(sorted)
	return &LossDistribution{sorted: sorted}
}

// Len returns the sample size
func (d *LossDistribution) Len() int {
	return len(d.sorted)
}

// Max returns the largest loss, or 0 for an empty sample
func (d *LossDistribution) Max() float64 {
	if len(d.sorted) == 0 {
		return 0
	}
	return d.sorted[len(d.sorted)-1]
}

// VaR returns the q-quantile
func (d *LossDistribution) VaR(q float64) (float64, error) {
	if err := validateQuantile("var", q); err != nil {
		return 0, err
	}
	return d.valueAt(q), nil
}

// ES returns the tail mean from the VaR(q) order statistic onwards
func (d *LossDistribution) ES(q float64) (float64, error) {
	if err := validateQuantile("expected_shortfall", q); err != nil {
		return 0, err
	}
	return d.tailMean(q), nil
}

func (d *LossDistribution) valueAt(q float64) float64 {
	if len(d.sorted) == 0 {
		return 0
	}
	return d.sorted[QuantileIndex(len(d.sorted), q)]
}

func (d *LossDistribution) tailMean(q float64) float64 {
	if len(d.sorted) == 0 {
		return 0
	}
	return Mean(d.sorted[QuantileIndex(len(d.sorted), q):])
}

// QuantileIndex returns ceil(q*n)-1 clamped into [0, n-1]
func QuantileIndex(n int, q float64) int {
	if n <= 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(n))) - 1
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// CountTrue returns the number of set flags
func CountTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// AnyTrue reports whether at least one flag is set
func AnyTrue(flags []bool) bool {
	return slices.Contains(flags, true)
}

// DiversificationBenefit returns (sum - portfolio) / sum * 100 rounded to one
// decimal, or 0 when the standalone sum is 0.
func DiversificationBenefit(sumStandaloneEL, portfolioEL float64) float64 {
	if sumStandaloneEL == 0 {
		return 0
	}
	return RoundPercent((sumStandaloneEL - portfolioEL) / sumStandaloneEL * 100)
}

// MarginalPct returns an entity's share of the standalone sum in percent,
// rounded to one decimal, or 0 when the sum is 0.
func MarginalPct(standaloneEL, sumStandaloneEL float64) float64 {
	if sumStandaloneEL == 0 {
		return 0
	}
	return RoundPercent(standaloneEL / sumStandaloneEL * 100)
}

// RoundPercent rounds half away from zero to PercentPrecision decimals
func RoundPercent(pct float64) float64 {
	return scalar.Round(pct, PercentPrecision)
}

func validateQuantile(op string, q float64) error {
	if !(q > 0 && q <= 1) {
		return credit.NewInvalidQuantileError(op, q)
	}
	return nil
}
