package simulation

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
	"github.com/victoralfred/credit_sim/internal/risk"
)

var inf = credit.NoDefault

func twoEntityPortfolio(t *testing.T) *credit.Portfolio {
	t.Helper()
	p, err := credit.NewPortfolio([]credit.Entity{
		{Name: "ALPHA", Beta: 0.2, Notional: 100, Recovery: 0, Curve: standardCurve()},
		{Name: "BETA", Beta: 0.4, Notional: 200, Recovery: 0.5, Curve: standardCurve()},
	})
	require.NoError(t, err)
	return p
}

func TestNewPathAggregator(t *testing.T) {
	p := twoEntityPortfolio(t)

	_, err := NewPathAggregator(p, []float64{1, 5}, 0)
	assert.True(t, credit.HasCode(err, credit.ErrInvalidPaths))

	_, err = NewPathAggregator(p, []float64{5, 1}, 10)
	assert.True(t, credit.HasCode(err, credit.ErrInvalidHorizons))

	_, err = NewPathAggregator(nil, []float64{1}, 10)
	assert.True(t, credit.HasCode(err, credit.ErrEmptyPortfolio))

	agg, err := NewPathAggregator(p, []float64{1, 5}, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, agg.Paths())
	assert.Equal(t, []float64{1, 5}, agg.Horizons())
	assert.Equal(t, 0, agg.Recorded())
}

func TestPathAggregator_EmptyMetricsAreZero(t *testing.T) {
	agg, err := NewPathAggregator(twoEntityPortfolio(t), []float64{1, 5}, 100)
	require.NoError(t, err)

	all, err := agg.CalculateAllMetrics()
	require.NoError(t, err)
	require.Len(t, all, 2)

	for _, m := range all {
		assert.Equal(t, 0.0, m.PAnyDefault)
		assert.Equal(t, 0.0, m.LossMean)
		assert.Equal(t, 0.0, m.LossVaR95)
		assert.Equal(t, 0.0, m.LossVaR99)
		assert.Equal(t, 0.0, m.LossES975)
		assert.Equal(t, 0.0, m.DiversificationBenefitPct)
		require.Len(t, m.Contributions, 2)
		assert.Equal(t, "ALPHA", m.Contributions[0].Name)
		assert.Equal(t, 0.0, m.Contributions[0].MarginalELPct)
	}
	assert.Equal(t, 5.0, all[1].Horizon)
}

func TestPathAggregator_RecordPath(t *testing.T) {
	agg, err := NewPathAggregator(twoEntityPortfolio(t), []float64{1, 5}, 4)
	require.NoError(t, err)

	t.Run("out of range", func(t *testing.T) {
		assert.True(t, credit.HasCode(agg.RecordPath(4, []float64{1, 1}), credit.ErrPathOutOfRange))
		assert.True(t, credit.HasCode(agg.RecordPath(-1, []float64{1, 1}), credit.ErrPathOutOfRange))
	})

	t.Run("wrong length", func(t *testing.T) {
		assert.True(t, credit.HasCode(agg.RecordPath(0, []float64{1}), credit.ErrLengthMismatch))
	})

	t.Run("recorded twice", func(t *testing.T) {
		require.NoError(t, agg.RecordPath(0, []float64{0.5, inf}))
		err := agg.RecordPath(0, []float64{0.5, inf})
		assert.True(t, credit.HasCode(err, credit.ErrPathRecorded))
		assert.Equal(t, 1, agg.Recorded())
	})

	t.Run("partial run has no metrics", func(t *testing.T) {
		_, err := agg.CalculateHorizonMetrics(0)
		assert.True(t, credit.HasCode(err, credit.ErrIncompleteRun))
		assert.True(t, errors.Is(err, credit.ErrValidation))
	})

	t.Run("horizon index", func(t *testing.T) {
		_, err := agg.CalculateHorizonMetrics(2)
		assert.True(t, credit.HasCode(err, credit.ErrHorizonIndex))
	})
}

func TestPathAggregator_HorizonMetrics(t *testing.T) {
	agg, err := NewPathAggregator(twoEntityPortfolio(t), []float64{1, 5}, 4)
	require.NoError(t, err)

	// both entities lose 100 on default
	paths := [][]float64{
		{0.5, inf},
		{3, 2},
		{inf, inf},
		{0.9, 0.8},
	}

	var wg sync.WaitGroup
	for p, times := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, agg.RecordPath(p, times))
		}()
	}
	wg.Wait()
	require.Equal(t, 4, agg.Recorded())

	all, err := agg.CalculateAllMetrics()
	require.NoError(t, err)

	one := all[0]
	assert.Equal(t, 1.0, one.Horizon)
	assert.InDelta(t, 75, one.LossMean, 1e-9)
	assert.Equal(t, one.LossMean, one.PortfolioEL)
	assert.Equal(t, 200.0, one.LossVaR95)
	assert.Equal(t, 200.0, one.LossVaR99)
	assert.Equal(t, 200.0, one.LossES975)
	assert.Equal(t, 0.5, one.PAnyDefault)
	assert.Equal(t, 0.75, one.ExpectedDefaults)
	assert.InDelta(t, 50, one.Contributions[0].StandaloneEL, 1e-9)
	assert.InDelta(t, 25, one.Contributions[1].StandaloneEL, 1e-9)
	assert.InDelta(t, 75, one.SumStandaloneEL, 1e-9)
	assert.InDelta(t, 0, one.DiversificationBenefitPct, 1e-9)
	assert.Equal(t, 66.7, one.Contributions[0].MarginalELPct)
	assert.Equal(t, 33.3, one.Contributions[1].MarginalELPct)
	assert.Equal(t, 0.4, one.Contributions[1].Beta)

	five := all[1]
	assert.InDelta(t, 125, five.LossMean, 1e-9)
	assert.Equal(t, 0.75, five.PAnyDefault)
	assert.Equal(t, 1.25, five.ExpectedDefaults)
	assert.Equal(t, 60.0, five.Contributions[0].MarginalELPct)
	assert.Equal(t, 40.0, five.Contributions[1].MarginalELPct)

	t.Run("metrics are fresh copies", func(t *testing.T) {
		again, err := agg.CalculateHorizonMetrics(0)
		require.NoError(t, err)
		again.Contributions[0].Name = "CHANGED"

		third, err := agg.CalculateHorizonMetrics(0)
		require.NoError(t, err)
		assert.Equal(t, "ALPHA", third.Contributions[0].Name)
	})
}

func TestPathAggregator_StandaloneELMatchesLossColumnMean(t *testing.T) {
	entities := make([]credit.Entity, 3)
	for i := range entities {
		entities[i] = credit.Entity{
			Name:     string(rune('A' + i)),
			Beta:     0.3 + 0.1*float64(i),
			Notional: 1_234_567.89,
			Recovery: 0.7,
			Curve:    testPortfolio(0).Entities()[0].Curve,
		}
	}
	portfolio, err := credit.NewPortfolio(entities)
	require.NoError(t, err)

	horizons := []float64{1, 3, 5}
	const paths = 2000
	model, err := NewDefaultTimeModel(portfolio, 7)
	require.NoError(t, err)
	agg, err := NewPathAggregator(portfolio, horizons, paths)
	require.NoError(t, err)

	times := make([][]float64, paths)
	for p := range times {
		times[p], err = model.SimulatePath(p)
		require.NoError(t, err)
		require.NoError(t, agg.RecordPath(p, times[p]))
	}

	for h, horizon := range horizons {
		m, err := agg.CalculateHorizonMetrics(h)
		require.NoError(t, err)

		for i, ent := range portfolio.Entities() {
			column := make([]float64, paths)
			for p := range column {
				if times[p][i] <= horizon {
					column[p] = ent.LossGivenDefault()
				}
			}
			assert.Equal(t, risk.Mean(column), m.Contributions[i].StandaloneEL, "horizon %v entity %s", horizon, ent.Name)
		}
	}
}
