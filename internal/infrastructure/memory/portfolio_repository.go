package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// PortfolioRepository implements credit.PortfolioRepository over portfolios
// loaded in process, such as a JSON file handed to the CLI.
type PortfolioRepository struct {
	mu         sync.RWMutex
	portfolios map[int64][]credit.Constituent
}

// NewPortfolioRepository creates an empty repository
func NewPortfolioRepository() *PortfolioRepository {
	return &PortfolioRepository{portfolios: make(map[int64][]credit.Constituent)}
}

// Put stores the constituents of a portfolio, replacing any previous set
func (r *PortfolioRepository) Put(portfolioID int64, constituents []credit.Constituent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.portfolios[portfolioID] = slices.Clone(constituents)
}

// ActiveConstituents returns the stored constituents in insertion order
func (r *PortfolioRepository) ActiveConstituents(_ context.Context, portfolioID int64) ([]credit.Constituent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.portfolios[portfolioID]
	if !ok {
		return nil, credit.NewRiskError(credit.ErrPortfolioNotFound,
			fmt.Sprintf("portfolio %d not found", portfolioID), "active_constituents").
			WithDetails("portfolio_id", portfolioID)
	}
	return slices.Clone(cs), nil
}
