package credit

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCurve() SurvivalCurve {
	return MustSurvivalCurve(
		SurvivalPoint{Time: 1, Survival: 0.99},
		SurvivalPoint{Time: 5, Survival: 0.95},
	)
}

func TestNewPortfolio(t *testing.T) {
	valid := Entity{Name: "ACME", Beta: 0.35, Notional: 1_000_000, Recovery: 0.4, Curve: testCurve()}

	tests := []struct {
		name     string
		mutate   func(e *Entity)
		wantCode ErrorCode
	}{
		{name: "valid", mutate: func(e *Entity) {}},
		{name: "beta at bound", mutate: func(e *Entity) { e.Beta = -1 }},
		{name: "beta above one", mutate: func(e *Entity) { e.Beta = 1.0001 }, wantCode: ErrInvalidBeta},
		{name: "beta nan", mutate: func(e *Entity) { e.Beta = math.NaN() }, wantCode: ErrInvalidBeta},
		{name: "zero notional", mutate: func(e *Entity) { e.Notional = 0 }, wantCode: ErrInvalidNotional},
		{name: "infinite notional", mutate: func(e *Entity) { e.Notional = math.Inf(1) }, wantCode: ErrInvalidNotional},
		{name: "negative recovery", mutate: func(e *Entity) { e.Recovery = -0.1 }, wantCode: ErrInvalidRecovery},
		{name: "missing name", mutate: func(e *Entity) { e.Name = "" }, wantCode: ErrInvalidEntity},
		{name: "missing curve", mutate: func(e *Entity) { e.Curve = SurvivalCurve{} }, wantCode: ErrInvalidCurve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)

			p, err := NewPortfolio([]Entity{valid, e})
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, 2, p.Len())
				return
			}
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrConfiguration))
			assert.True(t, HasCode(err, tt.wantCode))
		})
	}

	t.Run("empty portfolio", func(t *testing.T) {
		p, err := NewPortfolio(nil)
		assert.Nil(t, p)
		assert.True(t, HasCode(err, ErrEmptyPortfolio))
	})

	t.Run("entities are copied", func(t *testing.T) {
		entities := []Entity{valid}
		p, err := NewPortfolio(entities)
		require.NoError(t, err)

		entities[0].Name = "CHANGED"
		assert.Equal(t, "ACME", p.Entity(0).Name)
	})
}

func TestNewPortfolioFromArrays(t *testing.T) {
	curves := []SurvivalCurve{testCurve(), testCurve()}

	t.Run("matching lengths", func(t *testing.T) {
		p, err := NewPortfolioFromArrays(
			[]string{"A", "B"},
			[]float64{0.3, 0.5},
			[]float64{1e6, 2e6},
			[]float64{0.4, 0.25},
			curves,
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, p.Names())
		assert.InDelta(t, 1.5e6, p.Entity(1).LossGivenDefault(), 1e-6)
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		p, err := NewPortfolioFromArrays(
			[]string{"A", "B"},
			[]float64{0.3},
			[]float64{1e6, 2e6},
			[]float64{0.4, 0.25},
			curves,
		)
		assert.Nil(t, p)
		require.Error(t, err)
		assert.True(t, HasCode(err, ErrLengthMismatch))

		var re *RiskError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, 2, re.Details.ExpectedData["betas"])
		assert.Equal(t, 1, re.Details.ActualData["betas"])
	})
}

func TestCheckDefaults(t *testing.T) {
	times := []float64{0.5, 1.0, 2.7, NoDefault}

	assert.Equal(t, []bool{true, true, false, false}, CheckDefaults(times, 1.0))
	assert.Equal(t, []bool{true, true, true, false}, CheckDefaults(times, 5.0))

	t.Run("monotone in horizon", func(t *testing.T) {
		horizons := []float64{0.25, 0.5, 1, 2, 3, 5, 10, 30}
		for i := 1; i < len(horizons); i++ {
			earlier := CheckDefaults(times, horizons[i-1])
			later := CheckDefaults(times, horizons[i])
			for e := range times {
				if earlier[e] {
					assert.True(t, later[e])
				}
			}
		}
	})
}
