package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/victoralfred/credit_sim/internal/config"
	"github.com/victoralfred/credit_sim/internal/domain/credit"
	"github.com/victoralfred/credit_sim/internal/logging"
	"github.com/victoralfred/credit_sim/internal/simulation"
)

// RunIDPrefix prefixes every generated run ID
const RunIDPrefix = "SIM-"

// RunMetrics receives run lifecycle events
type RunMetrics interface {
	RunStarted()
	RunFinished(status credit.RunStatus, elapsed time.Duration)
	ObservePaths(n int)
	RecordHorizons(tenors []string, horizons []credit.HorizonMetrics)
}

// SubmissionLimiter throttles submissions per portfolio
type SubmissionLimiter interface {
	Allow(ctx context.Context, portfolioID int64) (bool, time.Duration, error)
}

// Option configures a SimulationService
type Option func(*SimulationService)

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *SimulationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunMetrics publishes run lifecycle events
func WithRunMetrics(m RunMetrics) Option {
	return func(s *SimulationService) {
		s.metrics = m
	}
}

// WithSubmissionLimiter throttles Submit per portfolio
func WithSubmissionLimiter(l SubmissionLimiter) Option {
	return func(s *SimulationService) {
		s.limiter = l
	}
}

// WithSeedSource replaces the generator used when a request carries no seed
func WithSeedSource(fn func() int64) Option {
	return func(s *SimulationService) {
		s.newSeed = fn
	}
}

// SimulationService owns the lifecycle of simulation runs: validation,
// portfolio assembly, asynchronous execution and cancellation.
type SimulationService struct {
	runs       credit.RunRepository
	portfolios credit.PortfolioRepository
	simulation config.SimulationConfig
	model      config.ModelConfig
	logger     *zap.Logger
	metrics    RunMetrics
	limiter    SubmissionLimiter
	newSeed    func() int64

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

type activeRun struct {
	ctx             context.Context
	cancel          context.CancelFunc
	done            chan struct{}
	cancelRequested bool
}

// NewSimulationService creates a new simulation service
func NewSimulationService(
	runs credit.RunRepository,
	portfolios credit.PortfolioRepository,
	cfg *config.Config,
	opts ...Option,
) *SimulationService {
	s := &SimulationService{
		runs:       runs,
		portfolios: portfolios,
		simulation: cfg.Simulation,
		model:      cfg.Model,
		logger:     zap.NewNop(),
		newSeed:    rand.Int64,
		active:     make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request, assembles the portfolio and starts the run in
// the background. The returned response has status QUEUED.
func (s *SimulationService) Submit(ctx context.Context, portfolioID int64, req *SimulationRequest) (*SimulationResponse, error) {
	if req == nil {
		return nil, credit.NewRiskError(credit.ErrInvalidRequest, "request is required", "submit")
	}

	horizons, err := req.validate(s.simulation.MinPaths, s.simulation.MaxPaths)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.Allow(ctx, portfolioID)
		if err != nil {
			return nil, fmt.Errorf("failed to check submission limit: %w", err)
		}
		if !allowed {
			return nil, credit.NewRiskError(credit.ErrRateLimited,
				fmt.Sprintf("too many simulations for portfolio %d, retry in %s", portfolioID, retryAfter), "submit").
				WithDetails("portfolio_id", portfolioID).
				WithDetails("retry_after_ms", retryAfter.Milliseconds())
		}
	}

	constituents, err := s.portfolios.ActiveConstituents(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio %d: %w", portfolioID, err)
	}
	if len(constituents) == 0 {
		return nil, credit.NewRiskError(credit.ErrEmptyPortfolio,
			fmt.Sprintf("portfolio %d has no active constituents", portfolioID), "submit").
			WithDetails("portfolio_id", portfolioID)
	}

	portfolio, err := s.buildPortfolio(constituents, horizons, req.FactorModel)
	if err != nil {
		return nil, err
	}

	seed := s.newSeed()
	if req.Seed != nil {
		seed = *req.Seed
	}

	run := &credit.Run{
		ID:            RunIDPrefix + uuid.NewString(),
		PortfolioID:   portfolioID,
		ValuationDate: req.ValuationDate,
		Tenors:        slices.Clone(req.Horizons),
		Paths:         req.Paths,
		Seed:          seed,
		Status:        credit.RunQueued,
		CreatedAt:     time.Now(),
	}
	ar := s.register(run.ID)
	if err := s.runs.Save(ctx, run); err != nil {
		s.mu.Lock()
		delete(s.active, run.ID)
		s.mu.Unlock()
		ar.cancel()
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Info("Simulation submitted", logging.RunFields(run)...)

	resp := NewSimulationResponse(run)
	s.start(ar, run, portfolio, horizons)
	return resp, nil
}

// RunSync submits the request and blocks until the run reaches a terminal
// state. Canceling ctx cancels the run.
func (s *SimulationService) RunSync(ctx context.Context, portfolioID int64, req *SimulationRequest) (*SimulationResponse, error) {
	resp, err := s.Submit(ctx, portfolioID, req)
	if err != nil {
		return nil, err
	}

	final, err := s.Wait(ctx, resp.RunID)
	if err != nil && ctx.Err() != nil {
		if _, cerr := s.Cancel(context.WithoutCancel(ctx), resp.RunID); cerr != nil {
			s.logger.Warn("Failed to cancel simulation", zap.String("run_id", resp.RunID), zap.Error(cerr))
		}
		return nil, err
	}
	return final, err
}

// Get returns the current state of a run
func (s *SimulationService) Get(ctx context.Context, runID string) (*SimulationResponse, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return NewSimulationResponse(run), nil
}

// Wait blocks until a run started by this service finishes, then returns its
// state. Runs not executing here are returned as stored.
func (s *SimulationService) Wait(ctx context.Context, runID string) (*SimulationResponse, error) {
	s.mu.Lock()
	ar, ok := s.active[runID]
	s.mu.Unlock()

	if ok {
		select {
		case <-ar.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Get(ctx, runID)
}

// Cancel stops a queued or running simulation and marks it CANCELED. Runs
// already in a terminal state are returned unchanged.
func (s *SimulationService) Cancel(ctx context.Context, runID string) (*SimulationResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return NewSimulationResponse(run), nil
	}

	if ar, ok := s.active[runID]; ok {
		ar.cancelRequested = true
		ar.cancel()
	}

	now := time.Now()
	run.CancelRequested = true
	run.Status = credit.RunCanceled
	run.CompletedAt = &now
	if err := s.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Info("Simulation canceled", logging.RunFields(run)...)
	return NewSimulationResponse(run), nil
}

// Shutdown cancels every active run and waits for the workers to exit
func (s *SimulationService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, ar := range s.active {
		ar.cancelRequested = true
		ar.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// register tracks a run before it becomes visible in the repository, so a
// Cancel can never miss it.
func (s *SimulationService) register(runID string) *activeRun {
	ctx, cancel := context.WithCancel(context.Background())
	ar := &activeRun{ctx: ctx, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.active[runID] = ar
	s.mu.Unlock()
	return ar
}

func (s *SimulationService) start(ar *activeRun, run *credit.Run, portfolio *credit.Portfolio, horizons []float64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(ar.done)
		defer ar.cancel()
		s.execute(ar.ctx, ar, run, portfolio, horizons)
	}()
}

// execute drives one run from RUNNING to a terminal state. The final save
// happens under the service lock so a concurrent Cancel always wins.
func (s *SimulationService) execute(ctx context.Context, ar *activeRun, run *credit.Run, portfolio *credit.Portfolio, horizons []float64) {
	logger := s.logger.With(logging.RunFields(run)...)
	start := time.Now()

	s.mu.Lock()
	if ar.cancelRequested {
		delete(s.active, run.ID)
		run.Status = credit.RunCanceled
		run.CancelRequested = true
		run.CompletedAt = &start
		if err := s.runs.Save(context.WithoutCancel(ctx), run); err != nil {
			logger.Error("Failed to save canceled simulation", zap.Error(err))
		}
		s.mu.Unlock()
		return
	}
	run.Status = credit.RunRunning
	run.StartedAt = &start
	err := s.runs.Save(ctx, run)
	s.mu.Unlock()
	if err != nil {
		logger.Error("Failed to mark simulation running", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RunStarted()
	}

	result, err := s.simulate(ctx, logger, run, portfolio, horizons)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, run.ID)

	finished := time.Now()
	run.CompletedAt = &finished
	run.RuntimeMs = elapsed.Milliseconds()

	switch {
	case ar.cancelRequested:
		run.Status = credit.RunCanceled
		run.CancelRequested = true
	case err != nil:
		run.Status = credit.RunFailed
		run.ErrorMessage = err.Error()
		logger.Error("Simulation run failed", logging.ErrorFields(err)...)
	default:
		run.Status = credit.RunComplete
		run.Horizons = result.Horizons
		run.Contributors = topContributors(result.Horizons)
		logger.Info("Simulation run completed", zap.Int64("runtime_ms", run.RuntimeMs))
		if s.metrics != nil {
			s.metrics.RecordHorizons(run.Tenors, run.Horizons)
		}
	}

	if s.metrics != nil {
		s.metrics.RunFinished(run.Status, elapsed)
	}

	if err := s.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("Failed to save simulation result", zap.Error(err))
	}
}

func (s *SimulationService) simulate(ctx context.Context, logger *zap.Logger, run *credit.Run, portfolio *credit.Portfolio, horizons []float64) (*simulation.Result, error) {
	cfg := credit.SimulationConfig{
		Seed:     run.Seed,
		Paths:    run.Paths,
		Horizons: horizons,
		Workers:  s.simulation.Workers,
	}

	opts := []simulation.EngineOption{
		simulation.WithLogger(logger),
		simulation.WithProgressInterval(s.simulation.ProgressInterval),
	}
	if s.metrics != nil {
		opts = append(opts, simulation.WithPathObserver(s.metrics))
	}

	engine, err := simulation.NewEngine(portfolio, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx)
}

// buildPortfolio turns reference-data constituents into simulation entities
// with flat-hazard curves tabulated on the requested horizons.
func (s *SimulationService) buildPortfolio(constituents []credit.Constituent, horizons []float64, fm *FactorModel) (*credit.Portfolio, error) {
	entities := make([]credit.Entity, len(constituents))
	for i, c := range constituents {
		recovery := s.model.DefaultRecovery
		if c.Recovery != nil {
			recovery = *c.Recovery
		}

		curve, err := credit.FlatHazardCurve(c.SpreadBps.InexactFloat64(), recovery, horizons)
		if err != nil {
			return nil, fmt.Errorf("constituent %s: %w", c.ReferenceEntity, err)
		}

		entities[i] = credit.Entity{
			Name:     c.ReferenceEntity,
			Beta:     fm.Beta(c, s.model.DefaultBeta),
			Notional: c.Notional.InexactFloat64(),
			Recovery: recovery,
			Curve:    curve,
		}
	}
	return credit.NewPortfolio(entities)
}

// topContributors ranks the last horizon's contributions by marginal EL share
func topContributors(horizons []credit.HorizonMetrics) []credit.EntityContribution {
	if len(horizons) == 0 {
		return nil
	}
	out := slices.Clone(horizons[len(horizons)-1].Contributions)
	slices.SortStableFunc(out, func(a, b credit.EntityContribution) int {
		switch {
		case a.MarginalELPct > b.MarginalELPct:
			return -1
		case a.MarginalELPct < b.MarginalELPct:
			return 1
		default:
			return 0
		}
	})
	return out
}
