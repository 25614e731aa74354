package services

import (
	"github.com/shopspring/decimal"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// Decimal places used when publishing results
const (
	AmountPlaces      = 2
	ProbabilityPlaces = 6
	PercentPlaces     = 1
)

// SimulationResponse is the externally visible state of a run
type SimulationResponse struct {
	RunID         string           `json:"run_id"`
	PortfolioID   int64            `json:"portfolio_id"`
	Status        credit.RunStatus `json:"status"`
	ValuationDate string           `json:"valuation_date"`
	Paths         int              `json:"paths"`
	SeedUsed      int64            `json:"seed_used"`
	RuntimeMs     int64            `json:"runtime_ms,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	Horizons      []HorizonResult  `json:"horizons,omitempty"`
	Contributors  []Contributor    `json:"contributors,omitempty"`
	Settings      Settings         `json:"settings"`
}

// Settings echoes model switches applied to the run
type Settings struct {
	StochasticRecovery bool `json:"stochastic_recovery"`
}

// HorizonResult is the metrics block of one tenor
type HorizonResult struct {
	Tenor            string          `json:"tenor"`
	PAnyDefault      decimal.Decimal `json:"p_any_default"`
	ExpectedDefaults decimal.Decimal `json:"expected_defaults"`
	Loss             LossResult      `json:"loss"`
	Diversification  Diversification `json:"diversification"`
}

// LossResult holds the loss distribution statistics
type LossResult struct {
	Mean  decimal.Decimal `json:"mean"`
	VaR95 decimal.Decimal `json:"var95"`
	VaR99 decimal.Decimal `json:"var99"`
	ES975 decimal.Decimal `json:"es97_5"`
}

// Diversification compares standalone and portfolio expected loss
type Diversification struct {
	SumStandaloneEL decimal.Decimal `json:"sum_standalone_el"`
	PortfolioEL     decimal.Decimal `json:"portfolio_el"`
	BenefitPct      decimal.Decimal `json:"benefit_pct"`
}

// Contributor is one entity's share of expected loss at the last horizon
type Contributor struct {
	Entity        string          `json:"entity"`
	MarginalELPct decimal.Decimal `json:"marginal_el_pct"`
	Beta          decimal.Decimal `json:"beta"`
	StandaloneEL  decimal.Decimal `json:"standalone_el"`
}

// NewSimulationResponse maps a stored run to its response
func NewSimulationResponse(run *credit.Run) *SimulationResponse {
	resp := &SimulationResponse{
		RunID:         run.ID,
		PortfolioID:   run.PortfolioID,
		Status:        run.Status,
		ValuationDate: run.ValuationDate,
		Paths:         run.Paths,
		SeedUsed:      run.Seed,
		RuntimeMs:     run.RuntimeMs,
		ErrorMessage:  run.ErrorMessage,
	}

	if run.Status != credit.RunComplete {
		return resp
	}

	resp.Horizons = make([]HorizonResult, len(run.Horizons))
	for i, m := range run.Horizons {
		tenor := ""
		if i < len(run.Tenors) {
			tenor = run.Tenors[i]
		}
		resp.Horizons[i] = HorizonResult{
			Tenor:            tenor,
			PAnyDefault:      decimal.NewFromFloat(m.PAnyDefault).Round(ProbabilityPlaces),
			ExpectedDefaults: decimal.NewFromFloat(m.ExpectedDefaults).Round(ProbabilityPlaces),
			Loss: LossResult{
				Mean:  amount(m.LossMean),
				VaR95: amount(m.LossVaR95),
				VaR99: amount(m.LossVaR99),
				ES975: amount(m.LossES975),
			},
			Diversification: Diversification{
				SumStandaloneEL: amount(m.SumStandaloneEL),
				PortfolioEL:     amount(m.PortfolioEL),
				BenefitPct:      decimal.NewFromFloat(m.DiversificationBenefitPct).Round(PercentPlaces),
			},
		}
	}

	resp.Contributors = make([]Contributor, len(run.Contributors))
	for i, c := range run.Contributors {
		resp.Contributors[i] = Contributor{
			Entity:        c.Name,
			MarginalELPct: decimal.NewFromFloat(c.MarginalELPct).Round(PercentPlaces),
			Beta:          decimal.NewFromFloat(c.Beta),
			StandaloneEL:  amount(c.StandaloneEL),
		}
	}
	return resp
}

func amount(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x).Round(AmountPlaces)
}
