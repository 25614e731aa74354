package credit

// EntityContribution is one entity's share of the standalone expected loss at a horizon
type EntityContribution struct {
	Name          string  `json:"name"`
	Beta          float64 `json:"beta"`
	StandaloneEL  float64 `json:"standalone_el"`
	MarginalELPct float64 `json:"marginal_el_pct"`
}

// HorizonMetrics summarises the simulated loss distribution at one horizon
type HorizonMetrics struct {
	Horizon                   float64              `json:"horizon"`
	PAnyDefault               float64              `json:"p_any_default"`
	ExpectedDefaults          float64              `json:"expected_defaults"`
	LossMean                  float64              `json:"loss_mean"`
	LossVaR95                 float64              `json:"loss_var95"`
	LossVaR99                 float64              `json:"loss_var99"`
	LossES975                 float64              `json:"loss_es975"`
	SumStandaloneEL           float64              `json:"sum_standalone_el"`
	PortfolioEL               float64              `json:"portfolio_el"`
	DiversificationBenefitPct float64              `json:"diversification_benefit_pct"`
	Contributions             []EntityContribution `json:"contributions"`
}
