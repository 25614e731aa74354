package credit

import (
	"fmt"
	"math"
)

// NoDefault is the default time of an entity that survives past the last
// tabulated point of its curve. It compares greater than every horizon.
var NoDefault = math.Inf(1)

// IsNoDefault reports whether t is the no-default sentinel
func IsNoDefault(t float64) bool {
	return math.IsInf(t, 1)
}

// SurvivalPoint is one tabulated point of a survival curve
type SurvivalPoint struct {
	Time     float64 `json:"time"`
	Survival float64 `json:"survival"`
}

// SurvivalCurve is a tabulated survival function S(t) with an implicit S(0) = 1.
// Times are strictly increasing and positive; survival is non-increasing in [0, 1].
type SurvivalCurve struct {
	times    []float64
	survival []float64
}

// NewSurvivalCurve validates points and builds a curve
func NewSurvivalCurve(points []SurvivalPoint) (SurvivalCurve, error) {
	const op = "new_survival_curve"

	if len(points) == 0 {
		return SurvivalCurve{}, NewRiskError(ErrInvalidCurve, "survival curve has no points", op)
	}

	times := make([]float64, len(points))
	survival := make([]float64, len(points))
	prevTime, prevSurvival := 0.0, 1.0

	for i, pt := range points {
		if math.IsNaN(pt.Time) || math.IsInf(pt.Time, 0) || pt.Time <= prevTime {
			return SurvivalCurve{}, NewRiskError(ErrInvalidCurve,
				fmt.Sprintf("point %d time %v is not strictly after %v", i, pt.Time, prevTime), op).
				WithDetails("index", i).
				WithConstraint("ordering", "0 < t0 < t1 < ...")
		}
		if !(pt.Survival >= 0 && pt.Survival <= prevSurvival) {
			return SurvivalCurve{}, NewRiskError(ErrInvalidCurve,
				fmt.Sprintf("point %d survival %v is not within [0, %v]", i, pt.Survival, prevSurvival), op).
				WithDetails("index", i).
				WithConstraint("monotonicity", "survival is non-increasing and within [0, 1]")
		}
		times[i] = pt.Time
		survival[i] = pt.Survival
		prevTime, prevSurvival = pt.Time, pt.Survival
	}

	return SurvivalCurve{times: times, survival: survival}, nil
}

// MustSurvivalCurve is NewSurvivalCurve that panics on invalid input.
// Intended for literals in tests and fixtures.
func MustSurvivalCurve(points ...SurvivalPoint) SurvivalCurve {
	c, err := NewSurvivalCurve(points)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of tabulated points
func (c SurvivalCurve) Len() int {
	return len(c.times)
}

// Points returns a copy of the tabulated points
func (c SurvivalCurve) Points() []SurvivalPoint {
	points := make([]SurvivalPoint, len(c.times))
	for i := range c.times {
		points[i] = SurvivalPoint{Time: c.times[i], Survival: c.survival[i]}
	}
	return points
}

// Survival evaluates S(t) by linear interpolation, flat beyond the last point
func (c SurvivalCurve) Survival(t float64) float64 {
	if t <= 0 || len(c.times) == 0 {
		return 1.0
	}

	prevTime, prevSurvival := 0.0, 1.0
	for i, ti := range c.times {
		if t <= ti {
			w := (t - prevTime) / (ti - prevTime)
			return prevSurvival + w*(c.survival[i]-prevSurvival)
		}
		prevTime, prevSurvival = ti, c.survival[i]
	}
	return prevSurvival
}

// Invert returns the default time implied by uniform draw u: the point where the
// interpolated survival first drops to u. The scan runs forward from the first
// tabulated point and stops at the first S(t_k) <= u, so the bracket is always the
// earliest one. Returns NoDefault when survival never reaches u.
func (c SurvivalCurve) Invert(u float64) float64 {
	if u > 1 {
		u = 1
	}

	prevTime, prevSurvival := 0.0, 1.0
	for k, s := range c.survival {
		t := c.times[k]
		if s <= u {
			span := prevSurvival - s
			if span <= 0 {
				return prevTime
			}
			return prevTime + (prevSurvival-u)/span*(t-prevTime)
		}
		prevTime, prevSurvival = t, s
	}

	return NoDefault
}

// FlatHazardCurve builds S(t) = exp(-lambda t) on the given tenors, with
// lambda = spread / (1 - recovery) and the spread quoted in basis points.
func FlatHazardCurve(spreadBps, recovery float64, tenors []float64) (SurvivalCurve, error) {
	const op = "flat_hazard_curve"

	if math.IsNaN(spreadBps) || math.IsInf(spreadBps, 0) || spreadBps < 0 {
		return SurvivalCurve{}, NewRiskError(ErrInvalidSpread,
			fmt.Sprintf("spread %v bps is not a non-negative number", spreadBps), op).
			WithDetails("spread_bps", spreadBps)
	}
	if !(recovery >= 0 && recovery < 1) {
		return SurvivalCurve{}, NewRiskError(ErrInvalidRecovery,
			fmt.Sprintf("recovery %v is outside [0, 1)", recovery), op).
			WithDetails("recovery", recovery).
			WithConstraint("valid_range", "0 <= recovery < 1")
	}

	hazard := spreadBps / 10000.0 / (1.0 - recovery)
	points := make([]SurvivalPoint, len(tenors))
	for i, t := range tenors {
		points[i] = SurvivalPoint{Time: t, Survival: math.Exp(-hazard * t)}
	}

	return NewSurvivalCurve(points)
}
