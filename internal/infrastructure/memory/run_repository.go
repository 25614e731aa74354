// Package memory provides in-process implementations of the domain repositories.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// RunRepository implements credit.RunRepository in memory. Runs are copied on
// the way in and out so callers never share state with the store.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]*credit.Run
}

// NewRunRepository creates an empty repository
func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[string]*credit.Run)}
}

// Save creates or replaces a run
func (r *RunRepository) Save(_ context.Context, run *credit.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = cloneRun(run)
	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(_ context.Context, runID string) (*credit.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, credit.NewRunNotFoundError(runID)
	}
	return cloneRun(run), nil
}

// ListByPortfolio returns the runs of a portfolio, newest first
func (r *RunRepository) ListByPortfolio(_ context.Context, portfolioID int64) ([]*credit.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*credit.Run
	for _, run := range r.runs {
		if run.PortfolioID == portfolioID {
			out = append(out, cloneRun(run))
		}
	}
	slices.SortFunc(out, func(a, b *credit.Run) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Delete removes a run
func (r *RunRepository) Delete(_ context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[runID]; !ok {
		return credit.NewRunNotFoundError(runID)
	}
	delete(r.runs, runID)
	return nil
}

func cloneRun(run *credit.Run) *credit.Run {
	c := *run
	c.Tenors = slices.Clone(run.Tenors)
	c.Contributors = slices.Clone(run.Contributors)
	if run.Horizons != nil {
		c.Horizons = make([]credit.HorizonMetrics, len(run.Horizons))
		for i, h := range run.Horizons {
			h.Contributions = slices.Clone(h.Contributions)
			c.Horizons[i] = h
		}
	}
	if run.StartedAt != nil {
		t := *run.StartedAt
		c.StartedAt = &t
	}
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
