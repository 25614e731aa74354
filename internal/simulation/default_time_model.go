// Package simulation runs the one-factor Gaussian copula Monte Carlo: it draws
// correlated default times per path, records losses per horizon and reduces
// them to horizon metrics.
package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
	"github.com/victoralfred/credit_sim/pkg/normal"
)

// SamplerFactory returns the standard normal source for one path. The stream
// must depend only on (seed, path).
type SamplerFactory func(seed int64, path int) distuv.Rander

// PCGSampler draws N(0,1) from a PCG stream keyed by (seed, path)
func PCGSampler(seed int64, path int) distuv.Rander {
	return distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewPCG(uint64(seed), uint64(path)),
	}
}

// ModelOption configures a DefaultTimeModel
type ModelOption func(*DefaultTimeModel)

// WithSamplerFactory replaces the PCG normal source
func WithSamplerFactory(f SamplerFactory) ModelOption {
	return func(m *DefaultTimeModel) {
		if f != nil {
			m.sampler = f
		}
	}
}

// DefaultTimeModel maps a path index to one default time per entity
type DefaultTimeModel struct {
	seed    int64
	betas   []float64
	idio    []float64 // sqrt(1 - beta^2)
	curves  []credit.SurvivalCurve
	sampler SamplerFactory
}

// NewDefaultTimeModel binds a model to a portfolio and a run seed
func NewDefaultTimeModel(portfolio *credit.Portfolio, seed int64, opts ...ModelOption) (*DefaultTimeModel, error) {
	if portfolio == nil || portfolio.Len() == 0 {
		return nil, credit.NewRiskError(credit.ErrEmptyPortfolio, "portfolio has no entities", "new_default_time_model")
	}

	n := portfolio.Len()
	m := &DefaultTimeModel{
		seed:    seed,
		betas:   make([]float64, n),
		idio:    make([]float64, n),
		curves:  make([]credit.SurvivalCurve, n),
		sampler: PCGSampler,
	}
	for i, e := range portfolio.Entities() {
		m.betas[i] = e.Beta
		m.idio[i] = math.Sqrt(1 - e.Beta*e.Beta)
		m.curves[i] = e.Curve
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Len returns the number of entities
func (m *DefaultTimeModel) Len() int {
	return len(m.betas)
}

// Seed returns the run seed
func (m *DefaultTimeModel) Seed() int64 {
	return m.seed
}

// DefaultTimes fills dst with the default time of each entity on path.
// Entities surviving past their last curve point get credit.NoDefault.
func (m *DefaultTimeModel) DefaultTimes(path int, dst []float64) error {
	if len(dst) != len(m.betas) {
		return credit.NewLengthMismatchError("default_times", "dst", len(m.betas), len(dst))
	}

	src := m.sampler(m.seed, path)

	z := src.Rand()
	if !finite(z) {
		return credit.NewNumericError(path, -1, "systemic_factor", z)
	}

	for i, beta := range m.betas {
		eps := src.Rand()
		if !finite(eps) {
			return credit.NewNumericError(path, i, "idiosyncratic_factor", eps)
		}

		x := beta*z + m.idio[i]*eps
		if !finite(x) {
			return credit.NewNumericError(path, i, "latent", x)
		}

		u := normal.CDF(x)
		if !finite(u) {
			return credit.NewNumericError(path, i, "uniform", u)
		}

		t := m.curves[i].Invert(u)
		if math.IsNaN(t) || math.IsInf(t, -1) || t < 0 {
			return credit.NewNumericError(path, i, "default_time", t)
		}
		dst[i] = t
	}
	return nil
}

// SimulatePath is DefaultTimes with a freshly allocated result
func (m *DefaultTimeModel) SimulatePath(path int) ([]float64, error) {
	times := make([]float64, len(m.betas))
	if err := m.DefaultTimes(path, times); err != nil {
		return nil, fmt.Errorf("path %d: %w", path, err)
	}
	return times, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
