// Command creditsim runs one Monte Carlo credit-loss simulation and prints the
// result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/victoralfred/credit_sim/internal/adapters/database"
	"github.com/victoralfred/credit_sim/internal/config"
	"github.com/victoralfred/credit_sim/internal/domain/credit"
	"github.com/victoralfred/credit_sim/internal/infrastructure/memory"
	"github.com/victoralfred/credit_sim/internal/infrastructure/redis"
	"github.com/victoralfred/credit_sim/internal/logging"
	"github.com/victoralfred/credit_sim/internal/metrics"
	"github.com/victoralfred/credit_sim/internal/services"
)

type options struct {
	configPath    string
	portfolioFile string
	portfolioID   int64
	paths         int
	seed          int64
	horizons      string
	valuationDate string
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "creditsim:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	var o options
	fs := flag.NewFlagSet("creditsim", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&o.portfolioFile, "portfolio", "", "JSON file of portfolio constituents")
	fs.Int64Var(&o.portfolioID, "portfolio-id", 0, "portfolio ID in the reference database")
	fs.IntVar(&o.paths, "paths", 0, "number of Monte Carlo paths (default from config)")
	fs.Int64Var(&o.seed, "seed", 0, "random seed (default from config; 0 draws a fresh one)")
	fs.StringVar(&o.horizons, "horizons", "", "comma-separated tenors such as 1Y,3Y,5Y (default from config)")
	fs.StringVar(&o.valuationDate, "valuation-date", time.Now().Format(services.ValuationDateLayout), "valuation date, YYYY-MM-DD")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if (o.portfolioFile == "") == (o.portfolioID == 0) {
		return nil, errors.New("exactly one of -portfolio or -portfolio-id is required")
	}
	return &o, nil
}

// buildRequest fills the request from flags, falling back to configuration
func buildRequest(o *options, cfg *config.Config, fm *services.FactorModel) *services.SimulationRequest {
	req := &services.SimulationRequest{
		ValuationDate: o.valuationDate,
		Horizons:      cfg.Simulation.Horizons,
		Paths:         cfg.Simulation.Paths,
		FactorModel:   fm,
	}
	if o.horizons != "" {
		req.Horizons = strings.Split(o.horizons, ",")
	}
	if o.paths > 0 {
		req.Paths = o.paths
	}

	seed := cfg.Simulation.Seed
	if o.seed != 0 {
		seed = o.seed
	}
	if seed != 0 {
		req.Seed = &seed
	}
	return req
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []services.Option{services.WithLogger(logger)}

	var (
		portfolios  credit.PortfolioRepository
		portfolioID = o.portfolioID
		factorModel *services.FactorModel
	)
	if o.portfolioFile != "" {
		pf, err := loadPortfolioFile(o.portfolioFile)
		if err != nil {
			return err
		}
		repo := memory.NewPortfolioRepository()
		repo.Put(filePortfolioID, pf.Constituents)
		portfolios, portfolioID, factorModel = repo, filePortfolioID, pf.FactorModel
		logger.Info("Loaded portfolio file",
			zap.String("path", o.portfolioFile),
			zap.String("name", pf.Name),
			zap.Int("constituents", len(pf.Constituents)),
		)
	} else {
		if !cfg.Database.Enabled {
			return errors.New("-portfolio-id requires database.enabled")
		}
		pool, err := database.NewPostgresPool(ctx, database.Config{
			Host:             cfg.Database.Host,
			Port:             cfg.Database.Port,
			User:             cfg.Database.User,
			Password:         cfg.Database.Password,
			Database:         cfg.Database.Database,
			SSLMode:          cfg.Database.SSLMode,
			ConnectionString: cfg.Database.ConnectionString,
			MaxConns:         cfg.Database.MaxConns,
			MaxIdleConns:     cfg.Database.MaxIdleConns,
			MaxLifetime:      cfg.Database.MaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		version, err := database.NewMigrationRunner(pool, database.Migrations, "migrations").Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Connected to reference database", zap.Uint("schema_version", version))
		portfolios = database.NewPortfolioRepository(pool)
	}

	var runs credit.RunRepository = memory.NewRunRepository()
	if cfg.Redis.Enabled {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			_ = client.Close()
		}()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		runs = redis.NewRunRepositoryWithClient(client, cfg.Redis.TTL)
		if cfg.Redis.SubmitLimit > 0 {
			opts = append(opts, services.WithSubmissionLimiter(
				redis.NewSubmissionLimiter(client, cfg.Redis.SubmitLimit, cfg.Redis.SubmitWindow)))
		}
	}

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(prometheus.NewRegistry())
		opts = append(opts, services.WithRunMetrics(collector))

		srv := serveMetrics(cfg.Metrics, collector.Handler(), logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	svc := services.NewSimulationService(runs, portfolios, cfg, opts...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Simulation workers did not stop in time", zap.Error(err))
		}
	}()

	resp, err := svc.RunSync(ctx, portfolioID, buildRequest(o, cfg, factorModel))
	if err != nil {
		logger.Error("Simulation could not run", logging.ErrorFields(err)...)
		return err
	}
	if resp.Status == credit.RunFailed {
		return fmt.Errorf("simulation %s failed: %s", resp.RunID, resp.ErrorMessage)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func serveMetrics(cfg config.MetricsConfig, handler http.Handler, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", srv.Addr), zap.String("path", cfg.Path))
	return srv
}
