package simulation

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// sequenceRander replays fixed draws, then repeats the last one
type sequenceRander struct {
	draws []float64
	next  int
}

func (s *sequenceRander) Rand() float64 {
	v := s.draws[min(s.next, len(s.draws)-1)]
	s.next++
	return v
}

func fixedSampler(draws ...float64) SamplerFactory {
	return func(int64, int) distuv.Rander {
		return &sequenceRander{draws: draws}
	}
}

func nanAtPath(bad int) SamplerFactory {
	return func(seed int64, path int) distuv.Rander {
		if path == bad {
			return &sequenceRander{draws: []float64{0.1, math.NaN()}}
		}
		return PCGSampler(seed, path)
	}
}

func standardCurve() credit.SurvivalCurve {
	return credit.MustSurvivalCurve(
		credit.SurvivalPoint{Time: 1, Survival: 0.99},
		credit.SurvivalPoint{Time: 5, Survival: 0.95},
	)
}

func testPortfolio(betas ...float64) *credit.Portfolio {
	entities := make([]credit.Entity, len(betas))
	for i, b := range betas {
		entities[i] = credit.Entity{
			Name:     string(rune('A' + i)),
			Beta:     b,
			Notional: 1_000_000,
			Recovery: 0.4,
			Curve: credit.MustSurvivalCurve(
				credit.SurvivalPoint{Time: 1, Survival: 0.97},
				credit.SurvivalPoint{Time: 3, Survival: 0.90},
				credit.SurvivalPoint{Time: 5, Survival: 0.82},
			),
		}
	}
	p, err := credit.NewPortfolio(entities)
	if err != nil {
		panic(err)
	}
	return p
}
