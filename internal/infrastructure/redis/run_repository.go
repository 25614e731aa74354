package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
)

const (
	runKeyPrefix           = "simrun:"
	portfolioRunsKeyPrefix = "portfolio_runs:"
)

// DefaultRunTTL is how long run records are kept when no TTL is configured
const DefaultRunTTL = 24 * time.Hour

// RunRepository implements credit.RunRepository using Redis
type RunRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunRepositoryWithClient creates a Redis run repository on a shared client.
// The client is also used by the submission limiter; a non-positive ttl means DefaultRunTTL.
func NewRunRepositoryWithClient(client *redis.Client, ttl time.Duration) *RunRepository {
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}
	return &RunRepository{
		client: client,
		ttl:    ttl,
	}
}

// Save stores a run as JSON and indexes it under its portfolio
func (r *RunRepository) Save(ctx context.Context, run *credit.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	runKey := runKeyPrefix + run.ID
	portfolioKey := portfolioRunsKeyPrefix + strconv.FormatInt(run.PortfolioID, 10)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, runKey, data, r.ttl)
	pipe.ZAdd(ctx, portfolioKey, redis.Z{Score: float64(run.CreatedAt.UnixMilli()), Member: run.ID})
	pipe.Expire(ctx, portfolioKey, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	return nil
}

// Get retrieves a run by its ID
func (r *RunRepository) Get(ctx context.Context, runID string) (*credit.Run, error) {
	data, err := r.client.Get(ctx, runKeyPrefix+runID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, credit.NewRunNotFoundError(runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run credit.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to deserialize run: %w", err)
	}
	return &run, nil
}

// ListByPortfolio returns the runs of a portfolio, newest first
func (r *RunRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]*credit.Run, error) {
	portfolioKey := portfolioRunsKeyPrefix + strconv.FormatInt(portfolioID, 10)

	ids, err := r.client.ZRevRange(ctx, portfolioKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio runs: %w", err)
	}

	runs := make([]*credit.Run, 0, len(ids))
	for _, id := range ids {
		run, err := r.Get(ctx, id)
		if err != nil {
			if credit.HasCode(err, credit.ErrRunNotFound) {
				// expired record, drop it from the index
				r.client.ZRem(ctx, portfolioKey, id)
				continue
			}
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Delete removes a run and its index entry
func (r *RunRepository) Delete(ctx context.Context, runID string) error {
	run, err := r.Get(ctx, runID)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, runKeyPrefix+runID)
	pipe.ZRem(ctx, portfolioRunsKeyPrefix+strconv.FormatInt(run.PortfolioID, 10), runID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
