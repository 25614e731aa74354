package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

// ValuationDateLayout is the accepted valuation date format
const ValuationDateLayout = "2006-01-02"

// requestValidator reports field errors under their JSON names
var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// SimulationRequest asks for one Monte Carlo run over a stored portfolio
type SimulationRequest struct {
	ValuationDate      string       `json:"valuation_date" validate:"required,datetime=2006-01-02"`
	Horizons           []string     `json:"horizons" validate:"required,min=1,dive,required"`
	Paths              int          `json:"paths" validate:"gte=1"`
	Seed               *int64       `json:"seed,omitempty"`
	FactorModel        *FactorModel `json:"factor_model,omitempty"`
	StochasticRecovery bool         `json:"stochastic_recovery" validate:"eq=false"`
}

// FactorModel assigns systemic loadings to reference entities
type FactorModel struct {
	SystemicLoadingDefault *float64           `json:"systemic_loading_default,omitempty"`
	SectorOverrides        map[string]float64 `json:"sector_overrides,omitempty"`
	IDOverrides            map[string]float64 `json:"id_overrides,omitempty"`
}

// Beta resolves the loading of c: entity override, then sector override, then
// the model default, then fallback. A nil model always yields fallback.
func (f *FactorModel) Beta(c credit.Constituent, fallback float64) float64 {
	if f == nil {
		return fallback
	}
	if b, ok := f.IDOverrides[c.ReferenceEntity]; ok {
		return b
	}
	if c.Sector != "" {
		if b, ok := f.SectorOverrides[c.Sector]; ok {
			return b
		}
	}
	if f.SystemicLoadingDefault != nil {
		return *f.SystemicLoadingDefault
	}
	return fallback
}

// validate checks the request tags, then the configured path limits, and
// parses its horizons into years.
func (r *SimulationRequest) validate(minPaths, maxPaths int) ([]float64, error) {
	const op = "validate_request"

	if err := requestValidator.Struct(r); err != nil {
		return nil, validationError(op, err)
	}
	if r.Paths < minPaths || r.Paths > maxPaths {
		return nil, credit.NewRiskError(credit.ErrInvalidPaths,
			fmt.Sprintf("paths must be between %d and %d, got %d", minPaths, maxPaths, r.Paths), op).
			WithDetails("paths", r.Paths).
			WithConstraint("min_paths", minPaths).
			WithConstraint("max_paths", maxPaths)
	}

	horizons, err := credit.ParseTenors(r.Horizons)
	if err != nil {
		return nil, err
	}
	return horizons, nil
}

func validationError(op string, err error) *credit.RiskError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return credit.NewRiskError(credit.ErrInvalidRequest, "invalid simulation request", op).WithCause(err)
	}

	first := fieldErrs[0]
	msg := fmt.Sprintf("%s failed the %q rule", first.Field(), first.Tag())
	switch first.Tag() {
	case "required":
		msg = first.Field() + " is required"
	case "datetime":
		msg = fmt.Sprintf("%s %q is not YYYY-MM-DD", first.Field(), first.Value())
	case "eq":
		if first.Field() == "stochastic_recovery" {
			msg = "stochastic recovery is not supported"
		}
	}

	riskErr := credit.NewRiskError(credit.ErrInvalidRequest, msg, op).WithCause(err)
	for _, fe := range fieldErrs {
		riskErr = riskErr.WithDetails(fe.Namespace(), fe.Tag())
	}
	return riskErr
}
