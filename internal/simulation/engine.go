package simulation

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
	"github.com/victoralfred/credit_sim/internal/risk"
)

// DefaultProgressInterval is the number of paths between progress snapshots
const DefaultProgressInterval = 10_000

// PathObserver is notified as batches of paths complete
type PathObserver interface {
	ObservePaths(n int)
}

// Result is the outcome of a completed run
type Result struct {
	Seed     int64                   `json:"seed"`
	Paths    int                     `json:"paths"`
	Horizons []credit.HorizonMetrics `json:"horizons"`
	Duration time.Duration           `json:"duration"`
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProgressInterval sets how many paths pass between progress snapshots.
// Zero or less disables them.
func WithProgressInterval(n int) EngineOption {
	return func(e *Engine) {
		e.progressInterval = n
	}
}

// WithProgressFunc receives every progress snapshot
func WithProgressFunc(fn func(risk.SummarySnapshot)) EngineOption {
	return func(e *Engine) {
		e.onProgress = fn
	}
}

// WithPathObserver receives path completion counts
func WithPathObserver(o PathObserver) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithSampler replaces the per-path normal source
func WithSampler(f SamplerFactory) EngineOption {
	return func(e *Engine) {
		e.sampler = f
	}
}

// Engine runs one simulation: paths in parallel, then metrics after the barrier
type Engine struct {
	portfolio        *credit.Portfolio
	config           credit.SimulationConfig
	logger           *zap.Logger
	progressInterval int
	onProgress       func(risk.SummarySnapshot)
	observer         PathObserver
	sampler          SamplerFactory
}

// NewEngine validates the configuration against the portfolio
func NewEngine(portfolio *credit.Portfolio, cfg credit.SimulationConfig, opts ...EngineOption) (*Engine, error) {
	if portfolio == nil || portfolio.Len() == 0 {
		return nil, credit.NewRiskError(credit.ErrEmptyPortfolio, "portfolio has no entities", "new_engine")
	}
	validated, err := credit.NewSimulationConfig(cfg.Seed, cfg.Paths, cfg.Horizons)
	if err != nil {
		return nil, err
	}
	validated.Workers = cfg.Workers

	e := &Engine{
		portfolio:        portfolio,
		config:           validated,
		logger:           zap.NewNop(),
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) workers() int {
	w := e.config.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > e.config.Paths {
		w = e.config.Paths
	}
	return w
}

// Run simulates every path and returns the horizon metrics. The first failing
// path, or cancellation of ctx, aborts the run.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.config
	start := time.Now()

	var modelOpts []ModelOption
	if e.sampler != nil {
		modelOpts = append(modelOpts, WithSamplerFactory(e.sampler))
	}
	model, err := NewDefaultTimeModel(e.portfolio, cfg.Seed, modelOpts...)
	if err != nil {
		return nil, err
	}
	agg, err := NewPathAggregator(e.portfolio, cfg.Horizons, cfg.Paths)
	if err != nil {
		return nil, err
	}

	workers := e.workers()
	e.logger.Info("Simulation started",
		zap.Int64("seed", cfg.Seed),
		zap.Int("paths", cfg.Paths),
		zap.Int("entities", e.portfolio.Len()),
		zap.Float64s("horizons", cfg.Horizons),
		zap.Int("workers", workers),
	)

	summary := risk.NewStreamingSummary()
	last := len(cfg.Horizons) - 1
	var done atomic.Int64

	// contiguous chunks, several per worker
	chunk := cfg.Paths / (workers * 8)
	if chunk < 1 {
		chunk = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for lo := 0; lo < cfg.Paths; lo += chunk {
		hi := min(lo+chunk, cfg.Paths)
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			times := make([]float64, model.Len())
			for p := lo; p < hi; p++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := model.DefaultTimes(p, times); err != nil {
					return err
				}
				if err := agg.RecordPath(p, times); err != nil {
					return err
				}
				summary.Add(agg.PathLoss(last, p))
				e.pathDone(done.Add(1), summary)
			}
			if e.observer != nil {
				e.observer.ObservePaths(hi - lo)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Warn("Simulation aborted",
			zap.Int64("seed", cfg.Seed),
			zap.Int("recorded_paths", agg.Recorded()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("simulation aborted after %d of %d paths: %w", agg.Recorded(), cfg.Paths, err)
	}
	// the dispatch loop stops early on cancellation without any worker failing
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("simulation aborted after %d of %d paths: %w", agg.Recorded(), cfg.Paths, err)
	}

	metrics, err := agg.CalculateAllMetrics()
	if err != nil {
		return nil, err
	}

	result := &Result{
		Seed:     cfg.Seed,
		Paths:    cfg.Paths,
		Horizons: metrics,
		Duration: time.Since(start),
	}

	e.logger.Info("Simulation completed",
		zap.Int64("seed", cfg.Seed),
		zap.Int("paths", cfg.Paths),
		zap.Duration("duration", result.Duration),
		zap.Float64("final_loss_mean", metrics[last].LossMean),
		zap.Float64("final_var99", metrics[last].LossVaR99),
	)
	return result, nil
}

func (e *Engine) pathDone(n int64, summary *risk.StreamingSummary) {
	if e.progressInterval <= 0 || n%int64(e.progressInterval) != 0 {
		return
	}
	snap := summary.Snapshot()
	e.logger.Debug("Simulation progress",
		zap.Int64("paths_done", n),
		zap.Int("paths_total", e.config.Paths),
		zap.Float64("loss_mean", snap.Mean),
		zap.Float64("loss_var95_estimate", snap.VaR95),
		zap.Float64("loss_var99_estimate", snap.VaR99),
	)
	if e.onProgress != nil {
		e.onProgress(snap)
	}
}
