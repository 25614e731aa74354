package credit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus is the lifecycle state of a simulation run
type RunStatus string

const (
	RunQueued   RunStatus = "QUEUED"
	RunRunning  RunStatus = "RUNNING"
	RunComplete RunStatus = "COMPLETE"
	RunFailed   RunStatus = "FAILED"
	RunCanceled RunStatus = "CANCELED"
)

// IsTerminal reports whether no further transitions can happen
func (s RunStatus) IsTerminal() bool {
	return s == RunComplete || s == RunFailed || s == RunCanceled
}

// Run is the record of one simulation request and, once complete, its results
type Run struct {
	ID              string               `json:"run_id"`
	PortfolioID     int64                `json:"portfolio_id"`
	ValuationDate   string               `json:"valuation_date"`
	Tenors          []string             `json:"tenors"`
	Paths           int                  `json:"paths"`
	Seed            int64                `json:"seed_used"`
	Status          RunStatus            `json:"status"`
	CancelRequested bool                 `json:"cancel_requested"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	RuntimeMs       int64                `json:"runtime_ms"`
	CreatedAt       time.Time            `json:"created_at"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	Horizons        []HorizonMetrics     `json:"horizons,omitempty"`
	Contributors    []EntityContribution `json:"contributors,omitempty"`
}

// RunRepository stores run records
type RunRepository interface {
	// Save creates or replaces a run
	Save(ctx context.Context, run *Run) error

	// Get retrieves a run by ID
	Get(ctx context.Context, runID string) (*Run, error)
}

// Constituent is one active position of a CDS portfolio as held by reference data
type Constituent struct {
	ReferenceEntity string          `json:"reference_entity"`
	Sector          string          `json:"sector,omitempty"`
	Notional        decimal.Decimal `json:"notional"`
	SpreadBps       decimal.Decimal `json:"spread_bps"`
	Recovery        *float64        `json:"recovery,omitempty"`
}

// PortfolioRepository supplies portfolio composition
type PortfolioRepository interface {
	// ActiveConstituents lists the active constituents of a portfolio in a stable order
	ActiveConstituents(ctx context.Context, portfolioID int64) ([]Constituent, error)
}

// NewRunNotFoundError creates an error for an unknown run ID
func NewRunNotFoundError(runID string) *RiskError {
	return NewRiskError(ErrRunNotFound, "simulation not found: "+runID, "get_run").
		WithDetails("run_id", runID)
}
