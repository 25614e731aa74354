package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const submissionKeyPrefix = "sim_submissions:"

// slidingWindow admits a request when fewer than limit entries fall inside the
// window. Returns {allowed, count, oldest_ms}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('EXPIRE', key, ttl)
		return {1, current + 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local oldest_ms = now
	if #oldest > 0 then
		oldest_ms = tonumber(oldest[2])
	end
	return {0, current, oldest_ms}
`)

// SubmissionLimiter caps simulation submissions per portfolio with a sliding window
type SubmissionLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewSubmissionLimiter allows limit submissions per portfolio within window
func NewSubmissionLimiter(client *redis.Client, limit int, window time.Duration) *SubmissionLimiter {
	return &SubmissionLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow records a submission for portfolioID if the window has room. When it
// does not, the returned duration is how long until the oldest entry expires.
func (l *SubmissionLimiter) Allow(ctx context.Context, portfolioID int64) (bool, time.Duration, error) {
	now := time.Now()
	key := submissionKeyPrefix + strconv.FormatInt(portfolioID, 10)
	ttlSeconds := int(l.window.Seconds()) + 1
	member := strconv.FormatInt(now.UnixNano(), 10)

	res, err := slidingWindow.Run(ctx, l.client, []string{key},
		now.Add(-l.window).UnixMilli(), now.UnixMilli(), l.limit, ttlSeconds, member).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("submission limit check failed: %w", err)
	}
	if len(res) != 3 {
		return false, 0, fmt.Errorf("unexpected result format from submission limiter")
	}

	if res[0] == 1 {
		return true, 0, nil
	}

	retryAfter := time.Until(time.UnixMilli(res[2]).Add(l.window))
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter, nil
}

// Reset clears the submission history of a portfolio
func (l *SubmissionLimiter) Reset(ctx context.Context, portfolioID int64) error {
	return l.client.Del(ctx, submissionKeyPrefix+strconv.FormatInt(portfolioID, 10)).Err()
}
