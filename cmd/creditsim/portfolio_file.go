package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
	"github.com/victoralfred/credit_sim/internal/services"
)

// filePortfolioID is the ID a portfolio read from a file is registered under
const filePortfolioID int64 = 1

// portfolioFile is the JSON layout accepted by -portfolio
type portfolioFile struct {
	Name         string                `json:"name"`
	FactorModel  *services.FactorModel `json:"factor_model,omitempty"`
	Constituents []credit.Constituent  `json:"constituents"`
}

func loadPortfolioFile(path string) (*portfolioFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio file: %w", err)
	}

	var pf portfolioFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse portfolio file %s: %w", path, err)
	}
	if len(pf.Constituents) == 0 {
		return nil, fmt.Errorf("portfolio file %s has no constituents", path)
	}
	return &pf, nil
}
