package credit

import (
	"fmt"
	"math"
)

// SimulationConfig is the immutable per-run configuration
type SimulationConfig struct {
	Seed     int64     `json:"seed"`
	Paths    int       `json:"paths"`
	Horizons []float64 `json:"horizons"`

	// Workers bounds path concurrency; zero or less means GOMAXPROCS
	Workers int `json:"workers"`
}

// NewSimulationConfig validates paths and horizons. Horizons must be non-empty,
// positive and strictly ascending.
func NewSimulationConfig(seed int64, paths int, horizons []float64) (SimulationConfig, error) {
	const op = "new_simulation_config"

	if paths < 1 {
		return SimulationConfig{}, NewRiskError(ErrInvalidPaths,
			fmt.Sprintf("number of paths must be at least 1, got %d", paths), op).
			WithDetails("paths", paths)
	}
	if err := ValidateHorizons(horizons); err != nil {
		return SimulationConfig{}, err
	}

	owned := make([]float64, len(horizons))
	copy(owned, horizons)

	return SimulationConfig{Seed: seed, Paths: paths, Horizons: owned}, nil
}

// ValidateHorizons checks that horizons are non-empty, finite, positive and strictly ascending
func ValidateHorizons(horizons []float64) error {
	const op = "validate_horizons"

	if len(horizons) == 0 {
		return NewRiskError(ErrInvalidHorizons, "at least one horizon is required", op)
	}

	prev := 0.0
	for i, h := range horizons {
		if math.IsNaN(h) || math.IsInf(h, 0) || h <= prev {
			return NewRiskError(ErrInvalidHorizons,
				fmt.Sprintf("horizon %d (%v years) is not strictly after %v", i, h, prev), op).
				WithDetails("index", i).
				WithDetails("horizon", h).
				WithConstraint("ordering", "0 < h0 < h1 < ...")
		}
		prev = h
	}
	return nil
}
