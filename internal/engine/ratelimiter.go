package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/post-relay/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// CredentialBudget caps how many fetches one scraper credential may make per
// hour. It is a sliding window over a Redis sorted set so the cap holds across
// restarts.
type CredentialBudget struct {
	redisClient *redis.Client
	limit       int
	window      time.Duration
	logger      *slog.Logger
	script      *redis.Script
}

// Drops entries older than the window, then adds one if under the limit.
// Returns 1 when allowed.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
else
    return 0
end
`)

// NewCredentialBudget returns a budget of limit fetches per hour. A limit of
// zero or less means unlimited.
func NewCredentialBudget(redisClient *redis.Client, limit int, logger *slog.Logger) *CredentialBudget {
	return &CredentialBudget{
		redisClient: redisClient,
		limit:       limit,
		window:      time.Hour,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

func budgetKey(username string) string {
	return fmt.Sprintf("twitter:budget:%s", username)
}

// Allow spends one unit of username's budget. Redis errors fail open.
func (b *CredentialBudget) Allow(ctx context.Context, username string) bool {
	if b.limit <= 0 {
		return true
	}

	now := time.Now()
	member := fmt.Sprintf("%d", now.UnixNano())

	result, err := b.script.Run(ctx, b.redisClient, []string{budgetKey(username)},
		now.UnixMilli(), b.window.Milliseconds(), b.limit, member,
	).Int64()
	if err != nil {
		b.logger.Error("credential budget script failed", "error", err, "credential", username)
		return true
	}

	if result == 0 {
		metrics.CredentialBudgetDenied.WithLabelValues(username).Inc()
		b.logger.Warn("credential budget exhausted", "credential", username, "limit_per_hour", b.limit)
		return false
	}
	return true
}
