package credit

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSurvivalCurve(t *testing.T) {
	tests := []struct {
		name    string
		points  []SurvivalPoint
		wantErr bool
	}{
		{
			name:   "valid curve",
			points: []SurvivalPoint{{1, 0.99}, {3, 0.97}, {5, 0.95}},
		},
		{
			name:   "flat segments allowed",
			points: []SurvivalPoint{{1, 0.99}, {2, 0.99}},
		},
		{
			name:    "empty",
			points:  nil,
			wantErr: true,
		},
		{
			name:    "unsorted times",
			points:  []SurvivalPoint{{3, 0.97}, {1, 0.99}},
			wantErr: true,
		},
		{
			name:    "duplicate times",
			points:  []SurvivalPoint{{1, 0.99}, {1, 0.98}},
			wantErr: true,
		},
		{
			name:    "zero first time",
			points:  []SurvivalPoint{{0, 1.0}},
			wantErr: true,
		},
		{
			name:    "increasing survival",
			points:  []SurvivalPoint{{1, 0.95}, {2, 0.97}},
			wantErr: true,
		},
		{
			name:    "survival above one",
			points:  []SurvivalPoint{{1, 1.01}},
			wantErr: true,
		},
		{
			name:    "nan survival",
			points:  []SurvivalPoint{{1, math.NaN()}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curve, err := NewSurvivalCurve(tt.points)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration))
				assert.True(t, HasCode(err, ErrInvalidCurve))
				assert.Equal(t, 0, curve.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.points, curve.Points())
		})
	}
}

func TestSurvivalCurve_Invert(t *testing.T) {
	curve := MustSurvivalCurve(
		SurvivalPoint{Time: 1, Survival: 0.99},
		SurvivalPoint{Time: 5, Survival: 0.95},
	)

	t.Run("draw below first point walks to the bracketing segment", func(t *testing.T) {
		// 0.985 lies between S(1)=0.99 and S(5)=0.95
		tau := curve.Invert(0.985)
		assert.Greater(t, tau, 1.0)
		assert.Less(t, tau, 5.0)
		assert.InDelta(t, 1.5, tau, 1e-12)
	})

	t.Run("draw above first point interpolates from the origin", func(t *testing.T) {
		tau := curve.Invert(0.995)
		assert.InDelta(t, 0.5, tau, 1e-12)
	})

	t.Run("draw below last point never defaults", func(t *testing.T) {
		assert.True(t, IsNoDefault(curve.Invert(0.5)))
		assert.True(t, IsNoDefault(curve.Invert(0)))
	})

	t.Run("draw of one defaults immediately", func(t *testing.T) {
		assert.Equal(t, 0.0, curve.Invert(1.0))
	})

	t.Run("round trip on tabulated points", func(t *testing.T) {
		c := MustSurvivalCurve(
			SurvivalPoint{Time: 0.5, Survival: 0.998},
			SurvivalPoint{Time: 1, Survival: 0.99},
			SurvivalPoint{Time: 3, Survival: 0.96},
			SurvivalPoint{Time: 5, Survival: 0.92},
			SurvivalPoint{Time: 10, Survival: 0.80},
		)
		for _, pt := range c.Points() {
			assert.InDelta(t, pt.Time, c.Invert(pt.Survival), 1e-9, "t=%v", pt.Time)
		}
	})

	t.Run("flat leading segment with certain survival", func(t *testing.T) {
		c := MustSurvivalCurve(
			SurvivalPoint{Time: 1, Survival: 1.0},
			SurvivalPoint{Time: 2, Survival: 0.9},
		)
		assert.Equal(t, 0.0, c.Invert(1.0))
		assert.InDelta(t, 1.5, c.Invert(0.95), 1e-12)
	})

	t.Run("inverse of survival", func(t *testing.T) {
		for _, tau := range []float64{0.25, 1, 2.5, 4.9} {
			assert.InDelta(t, tau, curve.Invert(curve.Survival(tau)), 1e-9)
		}
	})
}

func TestSurvivalCurve_Survival(t *testing.T) {
	curve := MustSurvivalCurve(
		SurvivalPoint{Time: 1, Survival: 0.99},
		SurvivalPoint{Time: 5, Survival: 0.95},
	)

	assert.Equal(t, 1.0, curve.Survival(0))
	assert.InDelta(t, 0.995, curve.Survival(0.5), 1e-12)
	assert.InDelta(t, 0.97, curve.Survival(3), 1e-12)
	assert.Equal(t, 0.95, curve.Survival(10))
}

func TestFlatHazardCurve(t *testing.T) {
	t.Run("exponential survival", func(t *testing.T) {
		curve, err := FlatHazardCurve(120, 0.4, []float64{1, 3, 5})
		require.NoError(t, err)

		hazard := 0.012 / 0.6
		for _, pt := range curve.Points() {
			assert.InDelta(t, math.Exp(-hazard*pt.Time), pt.Survival, 1e-12)
		}
	})

	t.Run("zero spread never defaults", func(t *testing.T) {
		curve, err := FlatHazardCurve(0, 0.4, []float64{1, 5})
		require.NoError(t, err)
		assert.True(t, IsNoDefault(curve.Invert(0.5)))
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, err := FlatHazardCurve(-1, 0.4, []float64{1})
		assert.True(t, HasCode(err, ErrInvalidSpread))

		_, err = FlatHazardCurve(100, 1.0, []float64{1})
		assert.True(t, HasCode(err, ErrInvalidRecovery))

		_, err = FlatHazardCurve(100, 0.4, []float64{5, 1})
		assert.True(t, HasCode(err, ErrInvalidCurve))
	})
}
