package simulation

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
	"github.com/victoralfred/credit_sim/internal/risk"
)

// Quantiles reported in every HorizonMetrics
const (
	VaR95Quantile = 0.95
	VaR99Quantile = 0.99
	ES975Quantile = 0.975
)

// PathAggregator owns the dense per-path results of one run.
//
// Layout: loss, default count and any-default are indexed h*P+p; entity
// default flags are indexed (h*E+i)*P+p. Each path writes only its own
// column, so RecordPath may be called concurrently for distinct paths.
// Metrics are read only once every path has been recorded.
type PathAggregator struct {
	horizons []float64
	names    []string
	betas    []float64
	lgd      []float64
	paths    int
	entities int

	loss          []float64
	defaultCount  []int32
	anyDefault    []bool
	entityDefault []bool

	recorded []atomic.Bool
	count    atomic.Int64
}

// NewPathAggregator allocates storage for paths x horizons x entities
func NewPathAggregator(portfolio *credit.Portfolio, horizons []float64, paths int) (*PathAggregator, error) {
	const op = "new_path_aggregator"

	if portfolio == nil || portfolio.Len() == 0 {
		return nil, credit.NewRiskError(credit.ErrEmptyPortfolio, "portfolio has no entities", op)
	}
	if paths < 1 {
		return nil, credit.NewRiskError(credit.ErrInvalidPaths,
			fmt.Sprintf("number of paths must be at least 1, got %d", paths), op)
	}
	if err := credit.ValidateHorizons(horizons); err != nil {
		return nil, err
	}

	e, h := portfolio.Len(), len(horizons)
	a := &PathAggregator{
		horizons:      append([]float64(nil), horizons...),
		names:         portfolio.Names(),
		betas:         make([]float64, e),
		lgd:           make([]float64, e),
		paths:         paths,
		entities:      e,
		loss:          make([]float64, h*paths),
		defaultCount:  make([]int32, h*paths),
		anyDefault:    make([]bool, h*paths),
		entityDefault: make([]bool, h*e*paths),
		recorded:      make([]atomic.Bool, paths),
	}
	for i, ent := range portfolio.Entities() {
		a.betas[i] = ent.Beta
		a.lgd[i] = ent.LossGivenDefault()
	}
	return a, nil
}

// Paths returns the configured number of paths
func (a *PathAggregator) Paths() int {
	return a.paths
}

// Horizons returns a copy of the horizon list
func (a *PathAggregator) Horizons() []float64 {
	return append([]float64(nil), a.horizons...)
}

// Recorded returns how many paths have been recorded
func (a *PathAggregator) Recorded() int {
	return int(a.count.Load())
}

// RecordPath stores the outcome of one path for every horizon
func (a *PathAggregator) RecordPath(path int, defaultTimes []float64) error {
	const op = "record_path"

	if path < 0 || path >= a.paths {
		return credit.NewRiskError(credit.ErrPathOutOfRange,
			fmt.Sprintf("path %d is outside [0, %d)", path, a.paths), op).
			WithDetails("path_index", path)
	}
	if len(defaultTimes) != a.entities {
		return credit.NewLengthMismatchError(op, "default_times", a.entities, len(defaultTimes))
	}
	if !a.recorded[path].CompareAndSwap(false, true) {
		return credit.NewRiskError(credit.ErrPathRecorded,
			fmt.Sprintf("path %d was already recorded", path), op).
			WithDetails("path_index", path)
	}

	P, E := a.paths, a.entities
	for h, horizon := range a.horizons {
		var total float64
		var n int32
		for i, t := range defaultTimes {
			if t <= horizon {
				a.entityDefault[(h*E+i)*P+path] = true
				total += a.lgd[i]
				n++
			}
		}
		a.loss[h*P+path] = total
		a.defaultCount[h*P+path] = n
		a.anyDefault[h*P+path] = n > 0
	}

	a.count.Add(1)
	return nil
}

// PathLoss returns the recorded portfolio loss of path at horizon h
func (a *PathAggregator) PathLoss(h, path int) float64 {
	return a.loss[h*a.paths+path]
}

// CalculateHorizonMetrics reduces the stored arrays for horizon h.
// With no recorded paths every figure is zero.
func (a *PathAggregator) CalculateHorizonMetrics(h int) (credit.HorizonMetrics, error) {
	const op = "calculate_horizon_metrics"

	if h < 0 || h >= len(a.horizons) {
		return credit.HorizonMetrics{}, credit.NewRiskError(credit.ErrHorizonIndex,
			fmt.Sprintf("horizon index %d is outside [0, %d)", h, len(a.horizons)), op).
			WithDetails("horizon_index", h)
	}

	m := credit.HorizonMetrics{
		Horizon:       a.horizons[h],
		Contributions: make([]credit.EntityContribution, a.entities),
	}
	for i := range m.Contributions {
		m.Contributions[i] = credit.EntityContribution{Name: a.names[i], Beta: a.betas[i]}
	}

	recorded := a.Recorded()
	if recorded == 0 {
		return m, nil
	}
	if recorded != a.paths {
		return credit.HorizonMetrics{}, credit.NewRiskError(credit.ErrIncompleteRun,
			fmt.Sprintf("%d of %d paths recorded", recorded, a.paths), op).
			WithExpected("paths", a.paths).
			WithDetails("recorded", recorded)
	}

	P, E := a.paths, a.entities
	n := float64(P)
	losses := a.loss[h*P : (h+1)*P]

	dist := risk.NewLossDistribution(losses)
	var err error
	if m.LossVaR95, err = dist.VaR(VaR95Quantile); err != nil {
		return credit.HorizonMetrics{}, err
	}
	if m.LossVaR99, err = dist.VaR(VaR99Quantile); err != nil {
		return credit.HorizonMetrics{}, err
	}
	if m.LossES975, err = dist.ES(ES975Quantile); err != nil {
		return credit.HorizonMetrics{}, err
	}

	m.LossMean = risk.Mean(losses)
	m.PortfolioEL = m.LossMean
	m.PAnyDefault = float64(risk.CountTrue(a.anyDefault[h*P:(h+1)*P])) / n

	var defaults int64
	for _, c := range a.defaultCount[h*P : (h+1)*P] {
		defaults += int64(c)
	}
	m.ExpectedDefaults = float64(defaults) / n

	standalone := make([]float64, E)
	column := make([]float64, P)
	for i := range standalone {
		flags := a.entityDefault[(h*E+i)*P : (h*E+i+1)*P]
		for p, hit := range flags {
			column[p] = 0
			if hit {
				column[p] = a.lgd[i]
			}
		}
		standalone[i] = risk.Mean(column)
	}
	m.SumStandaloneEL = floats.Sum(standalone)
	m.DiversificationBenefitPct = risk.DiversificationBenefit(m.SumStandaloneEL, m.PortfolioEL)

	for i := range m.Contributions {
		m.Contributions[i].StandaloneEL = standalone[i]
		m.Contributions[i].MarginalELPct = risk.MarginalPct(standalone[i], m.SumStandaloneEL)
	}
	return m, nil
}

// CalculateAllMetrics reduces every horizon, in parallel, in horizon order
func (a *PathAggregator) CalculateAllMetrics() ([]credit.HorizonMetrics, error) {
	out := make([]credit.HorizonMetrics, len(a.horizons))

	var g errgroup.Group
	for h := range a.horizons {
		g.Go(func() error {
			m, err := a.CalculateHorizonMetrics(h)
			if err != nil {
				return fmt.Errorf("horizon %v: %w", a.horizons[h], err)
			}
			out[h] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
