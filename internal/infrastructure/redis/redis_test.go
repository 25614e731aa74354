package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redisModule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/victoralfred/credit_sim/internal/domain/credit"
	redisImpl "github.com/victoralfred/credit_sim/internal/infrastructure/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	container, err := redisModule.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithOccurrence(1),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port.Port()),
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStores(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("run repository", func(t *testing.T) {
		repo := redisImpl.NewRunRepositoryWithClient(client, time.Minute)

		created := time.Now().UTC().Truncate(time.Millisecond)
		run := &credit.Run{
			ID:            "SIM-a",
			PortfolioID:   11,
			ValuationDate: "2026-10-16",
			Tenors:        []string{"1Y", "5Y"},
			Paths:         1000,
			Seed:          42,
			Status:        credit.RunQueued,
			CreatedAt:     created,
		}
		require.NoError(t, repo.Save(ctx, run))

		got, err := repo.Get(ctx, "SIM-a")
		require.NoError(t, err)
		assert.Equal(t, run.Tenors, got.Tenors)
		assert.Equal(t, credit.RunQueued, got.Status)
		assert.True(t, created.Equal(got.CreatedAt))

		run.Status = credit.RunComplete
		run.Horizons = []credit.HorizonMetrics{{Horizon: 1, LossVaR99: 600_000}}
		require.NoError(t, repo.Save(ctx, run))

		got, err = repo.Get(ctx, "SIM-a")
		require.NoError(t, err)
		assert.Equal(t, credit.RunComplete, got.Status)
		require.Len(t, got.Horizons, 1)
		assert.Equal(t, 600_000.0, got.Horizons[0].LossVaR99)

		ttl, err := client.TTL(ctx, "simrun:SIM-a").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))

		later := &credit.Run{ID: "SIM-b", PortfolioID: 11, CreatedAt: created.Add(time.Second)}
		require.NoError(t, repo.Save(ctx, later))

		runs, err := repo.ListByPortfolio(ctx, 11)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "SIM-b", runs[0].ID)

		require.NoError(t, repo.Delete(ctx, "SIM-b"))
		_, err = repo.Get(ctx, "SIM-b")
		assert.True(t, credit.HasCode(err, credit.ErrRunNotFound))

		runs, err = repo.ListByPortfolio(ctx, 11)
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("unknown run", func(t *testing.T) {
		repo := redisImpl.NewRunRepositoryWithClient(client, 0)
		_, err := repo.Get(ctx, "SIM-missing")
		assert.True(t, credit.HasCode(err, credit.ErrRunNotFound))
	})

	t.Run("submission limiter", func(t *testing.T) {
		limiter := redisImpl.NewSubmissionLimiter(client, 2, time.Minute)

		for i := 0; i < 2; i++ {
			ok, _, err := limiter.Allow(ctx, 5)
			require.NoError(t, err)
			assert.True(t, ok)
		}

		ok, retry, err := limiter.Allow(ctx, 5)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Greater(t, retry, time.Duration(0))

		// other portfolios are unaffected
		ok, _, err = limiter.Allow(ctx, 6)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, limiter.Reset(ctx, 5))
		ok, _, err = limiter.Allow(ctx, 5)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("sliding window expiry", func(t *testing.T) {
		limiter := redisImpl.NewSubmissionLimiter(client, 1, 200*time.Millisecond)

		ok, _, err := limiter.Allow(ctx, 9)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, _, err = limiter.Allow(ctx, 9)
		require.NoError(t, err)
		assert.False(t, ok)

		time.Sleep(250 * time.Millisecond)
		ok, _, err = limiter.Allow(ctx, 9)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
