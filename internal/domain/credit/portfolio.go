package credit

import (
	"fmt"
	"math"
)

// Entity is one reference entity of a credit portfolio
type Entity struct {
	Name     string        `json:"name"`
	Beta     float64       `json:"beta"`
	Notional float64       `json:"notional"`
	Recovery float64       `json:"recovery"`
	Curve    SurvivalCurve `json:"-"`
}

// LossGivenDefault returns notional * (1 - recovery)
func (e Entity) LossGivenDefault() float64 {
	return e.Notional * (1.0 - e.Recovery)
}

// Validate checks the entity's static data
func (e Entity) Validate() error {
	const op = "validate_entity"

	if e.Name == "" {
		return NewRiskError(ErrInvalidEntity, "entity name is required", op)
	}
	if !(e.Beta >= -1 && e.Beta <= 1) {
		return NewInvalidBetaError(op, e.Name, e.Beta)
	}
	if !(e.Notional > 0) || math.IsInf(e.Notional, 0) {
		return NewRiskError(ErrInvalidNotional,
			fmt.Sprintf("notional %v for %q must be positive and finite", e.Notional, e.Name), op).
			WithDetails("entity", e.Name).
			WithDetails("notional", e.Notional)
	}
	if !(e.Recovery >= 0 && e.Recovery <= 1) {
		return NewRiskError(ErrInvalidRecovery,
			fmt.Sprintf("recovery %v for %q is outside [0, 1]", e.Recovery, e.Name), op).
			WithDetails("entity", e.Name).
			WithConstraint("valid_range", "0 <= recovery <= 1")
	}
	if e.Curve.Len() == 0 {
		return NewRiskError(ErrInvalidCurve,
			fmt.Sprintf("entity %q has an empty survival curve", e.Name), op).
			WithDetails("entity", e.Name)
	}
	return nil
}

// Portfolio is an ordered, fixed-length set of validated entities
type Portfolio struct {
	entities []Entity
}

// NewPortfolio validates every entity and returns the portfolio.
// No portfolio is returned when any entity is invalid.
func NewPortfolio(entities []Entity) (*Portfolio, error) {
	if len(entities) == 0 {
		return nil, NewRiskError(ErrEmptyPortfolio, "portfolio has no entities", "new_portfolio")
	}

	owned := make([]Entity, len(entities))
	for i, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entity %d: %w", i, err)
		}
		owned[i] = e
	}

	return &Portfolio{entities: owned}, nil
}

// NewPortfolioFromArrays builds a portfolio from parallel arrays, as supplied by
// reference-data feeds. All arrays must have the same length as names.
func NewPortfolioFromArrays(names []string, betas, notionals, recoveries []float64, curves []SurvivalCurve) (*Portfolio, error) {
	const op = "new_portfolio_from_arrays"

	n := len(names)
	lengths := []struct {
		field string
		size  int
	}{
		{"betas", len(betas)},
		{"notionals", len(notionals)},
		{"recoveries", len(recoveries)},
		{"survival_curves", len(curves)},
	}
	for _, l := range lengths {
		if l.size != n {
			return nil, NewLengthMismatchError(op, l.field, n, l.size)
		}
	}

	entities := make([]Entity, n)
	for i := range names {
		entities[i] = Entity{
			Name:     names[i],
			Beta:     betas[i],
			Notional: notionals[i],
			Recovery: recoveries[i],
			Curve:    curves[i],
		}
	}

	return NewPortfolio(entities)
}

// Len returns the number of entities
func (p *Portfolio) Len() int {
	return len(p.entities)
}

// Entity returns the i-th entity
func (p *Portfolio) Entity(i int) Entity {
	return p.entities[i]
}

// Entities returns a copy of the entity list
func (p *Portfolio) Entities() []Entity {
	out := make([]Entity, len(p.entities))
	copy(out, p.entities)
	return out
}

// Names returns entity names in portfolio order
func (p *Portfolio) Names() []string {
	names := make([]string, len(p.entities))
	for i, e := range p.entities {
		names[i] = e.Name
	}
	return names
}

// CheckDefaults flags each entity whose default time is at or before horizon
func CheckDefaults(defaultTimes []float64, horizon float64) []bool {
	defaults := make([]bool, len(defaultTimes))
	for i, t := range defaultTimes {
		defaults[i] = t <= horizon
	}
	return defaults
}
