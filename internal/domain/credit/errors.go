package credit

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a categorized error code for credit simulation operations
type ErrorCode string

const (
	// Configuration errors
	ErrInvalidBeta     ErrorCode = "INVALID_BETA"
	ErrInvalidNotional ErrorCode = "INVALID_NOTIONAL"
	ErrInvalidRecovery ErrorCode = "INVALID_RECOVERY"
	ErrInvalidCurve    ErrorCode = "INVALID_SURVIVAL_CURVE"
	ErrInvalidEntity   ErrorCode = "INVALID_ENTITY"
	ErrLengthMismatch  ErrorCode = "LENGTH_MISMATCH"
	ErrEmptyPortfolio  ErrorCode = "EMPTY_PORTFOLIO"
	ErrInvalidHorizons ErrorCode = "INVALID_HORIZONS"
	ErrInvalidPaths    ErrorCode = "INVALID_PATHS"
	ErrInvalidTenor    ErrorCode = "INVALID_TENOR"
	ErrInvalidSpread   ErrorCode = "INVALID_SPREAD"

	// Numeric errors
	ErrNumericalInstability ErrorCode = "NUMERICAL_INSTABILITY"

	// Validation errors
	ErrInvalidQuantile ErrorCode = "INVALID_QUANTILE"
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrPathOutOfRange  ErrorCode = "PATH_OUT_OF_RANGE"
	ErrPathRecorded    ErrorCode = "PATH_ALREADY_RECORDED"
	ErrIncompleteRun   ErrorCode = "INCOMPLETE_RUN"
	ErrHorizonIndex    ErrorCode = "HORIZON_OUT_OF_RANGE"
	ErrRateLimited     ErrorCode = "SUBMISSION_RATE_LIMITED"

	// Lookup errors
	ErrRunNotFound       ErrorCode = "RUN_NOT_FOUND"
	ErrPortfolioNotFound ErrorCode = "PORTFOLIO_NOT_FOUND"
)

// ErrorSeverity indicates the severity level of an error
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// ErrorCategory groups related error codes
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "CONFIGURATION"
	CategoryNumeric       ErrorCategory = "NUMERIC"
	CategoryValidation    ErrorCategory = "VALIDATION"
	CategoryNotFound      ErrorCategory = "NOT_FOUND"
)

// Category sentinels for errors.Is checks.
var (
	ErrConfiguration = &RiskError{Category: CategoryConfiguration}
	ErrNumeric       = &RiskError{Category: CategoryNumeric}
	ErrValidation    = &RiskError{Category: CategoryValidation}
	ErrNotFound      = &RiskError{Category: CategoryNotFound}
)

// RiskError is the error type returned by every credit simulation component.
type RiskError struct {
	Code      ErrorCode     `json:"code"`
	Message   string        `json:"message"`
	Severity  ErrorSeverity `json:"severity"`
	Category  ErrorCategory `json:"category"`
	Details   ErrorDetails  `json:"details"`
	Timestamp time.Time     `json:"timestamp"`
	Cause     error         `json:"-"`
}

// ErrorDetails contains specific information about the error
type ErrorDetails struct {
	Operation    string         `json:"operation"`
	ExpectedData map[string]any `json:"expected_data,omitempty"`
	ActualData   map[string]any `json:"actual_data,omitempty"`
	Constraints  map[string]any `json:"constraints,omitempty"`
}

// NewRiskError creates a new RiskError with severity and category derived from the code
func NewRiskError(code ErrorCode, message string, operation string) *RiskError {
	return &RiskError{
		Code:      code,
		Message:   message,
		Severity:  determineSeverity(code),
		Category:  determineCategory(code),
		Timestamp: time.Now(),
		Details: ErrorDetails{
			Operation: operation,
		},
	}
}

// Error implements the error interface
func (re *RiskError) Error() string {
	if re.Code == "" {
		return fmt.Sprintf("%s error", re.Category)
	}
	return fmt.Sprintf("[%s] %s: %s (operation: %s)",
		re.Severity, re.Code, re.Message, re.Details.Operation)
}

// Unwrap returns the underlying cause
func (re *RiskError) Unwrap() error {
	return re.Cause
}

// Is matches on code when the target carries one, otherwise on category.
func (re *RiskError) Is(target error) bool {
	t, ok := target.(*RiskError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return re.Code == t.Code
	}
	return t.Category != "" && re.Category == t.Category
}

// WithDetails adds observed data to the error
func (re *RiskError) WithDetails(key string, value any) *RiskError {
	if re.Details.ActualData == nil {
		re.Details.ActualData = make(map[string]any)
	}
	re.Details.ActualData[key] = value
	return re
}

// WithExpected adds expected value information
func (re *RiskError) WithExpected(key string, value any) *RiskError {
	if re.Details.ExpectedData == nil {
		re.Details.ExpectedData = make(map[string]any)
	}
	re.Details.ExpectedData[key] = value
	return re
}

// WithConstraint adds constraint violation information
func (re *RiskError) WithConstraint(key string, value any) *RiskError {
	if re.Details.Constraints == nil {
		re.Details.Constraints = make(map[string]any)
	}
	re.Details.Constraints[key] = value
	return re
}

// WithCause wraps an underlying error
func (re *RiskError) WithCause(cause error) *RiskError {
	re.Cause = cause
	return re
}

// HasCode reports whether any RiskError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var re *RiskError
	if !errors.As(err, &re) {
		return false
	}
	return re.Code == code
}

func determineSeverity(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrNumericalInstability:
		return SeverityCritical
	case ErrInvalidBeta, ErrInvalidCurve, ErrLengthMismatch, ErrInvalidHorizons,
		ErrIncompleteRun, ErrPathRecorded:
		return SeverityHigh
	case ErrInvalidNotional, ErrInvalidRecovery, ErrInvalidEntity, ErrEmptyPortfolio,
		ErrInvalidPaths, ErrInvalidTenor, ErrInvalidSpread:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func determineCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrInvalidBeta, ErrInvalidNotional, ErrInvalidRecovery, ErrInvalidCurve,
		ErrInvalidEntity, ErrLengthMismatch, ErrEmptyPortfolio, ErrInvalidHorizons,
		ErrInvalidPaths, ErrInvalidTenor, ErrInvalidSpread:
		return CategoryConfiguration
	case ErrNumericalInstability:
		return CategoryNumeric
	case ErrRunNotFound, ErrPortfolioNotFound:
		return CategoryNotFound
	default:
		return CategoryValidation
	}
}

// NumericError reports a NaN or infinite value produced while simulating a path.
// The run that produced it is aborted; the path is never redrawn.
type NumericError struct {
	*RiskError
	PathIndex   int
	EntityIndex int
	Stage       string
	Value       float64
}

// NewNumericError creates a NumericError. entity is -1 for the systemic draw.
func NewNumericError(path, entity int, stage string, value float64) *NumericError {
	re := NewRiskError(ErrNumericalInstability,
		fmt.Sprintf("non-finite %s at path %d", stage, path), "simulate_path").
		WithDetails("path_index", path).
		WithDetails("entity_index", entity).
		WithDetails("stage", stage)
	return &NumericError{
		RiskError:   re,
		PathIndex:   path,
		EntityIndex: entity,
		Stage:       stage,
		Value:       value,
	}
}

// Convenience constructors for common configuration failures

// NewLengthMismatchError creates an error for parallel input arrays of different lengths
func NewLengthMismatchError(operation, field string, expected, actual int) *RiskError {
	return NewRiskError(ErrLengthMismatch,
		fmt.Sprintf("%s has %d elements, expected %d", field, actual, expected), operation).
		WithExpected(field, expected).
		WithDetails(field, actual)
}

// NewInvalidBetaError creates an error for a factor loading outside [-1, 1]
func NewInvalidBetaError(operation, entity string, beta float64) *RiskError {
	return NewRiskError(ErrInvalidBeta,
		fmt.Sprintf("beta %v for %q is outside [-1, 1]", beta, entity), operation).
		WithDetails("entity", entity).
		WithDetails("beta", beta).
		WithConstraint("valid_range", "-1 <= beta <= 1")
}

// NewInvalidQuantileError creates an error for a quantile outside (0, 1]
func NewInvalidQuantileError(operation string, q float64) *RiskError {
	return NewRiskError(ErrInvalidQuantile,
		fmt.Sprintf("quantile %v is outside (0, 1]", q), operation).
		WithDetails("quantile", q).
		WithConstraint("valid_range", "0 < q <= 1")
}

// Unwrap exposes the embedded RiskError to errors.As.
func (ne *NumericError) Unwrap() error {
	return ne.RiskError
}
