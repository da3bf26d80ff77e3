// Package monitor records per-request search outcomes. The fallback rate is
// the operational health signal for the skill taxonomy: a high rate means
// the taxonomy is stale or too narrow for the query patterns it serves.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"

	"github.com/Laisky/capability-search/library/log"
)

// Outcome summarizes one completed search call.
type Outcome struct {
	Strategy      string
	FallbackFired bool
	FinalCount    int
	TotalTime     time.Duration
}

// Stats aggregates recorded outcomes.
type Stats struct {
	Searches     int64   `json:"searches"`
	Fallbacks    int64   `json:"fallbacks"`
	FallbackRate float64 `json:"fallback_rate"`
}

// Recorder accepts outcomes and serves aggregated stats. Recording must
// never fail a search request.
type Recorder interface {
	Record(ctx context.Context, outcome Outcome)
	Stats(ctx context.Context) (Stats, error)
}

// MemoryRecorder keeps counters in process memory. Used when no redis
// endpoint is configured.
type MemoryRecorder struct {
	searches  atomic.Int64
	fallbacks atomic.Int64
}

// NewMemoryRecorder returns an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record counts the outcome.
func (m *MemoryRecorder) Record(_ context.Context, outcome Outcome) {
	m.searches.Add(1)
	if outcome.FallbackFired {
		m.fallbacks.Add(1)
	}
}

// Stats returns the current counters.
func (m *MemoryRecorder) Stats(_ context.Context) (Stats, error) {
	return buildStats(m.searches.Load(), m.fallbacks.Load()), nil
}

const (
	keySearches  = "capability_search:stats:searches"
	keyFallbacks = "capability_search:stats:fallbacks"
)

// RedisRecorder keeps counters in redis so stats survive restarts and
// aggregate across replicas.
type RedisRecorder struct {
	rdb    redis.UniversalClient
	logger logSDK.Logger
}

// NewRedisRecorder wires a recorder against the given redis client.
func NewRedisRecorder(rdb redis.UniversalClient, logger logSDK.Logger) (*RedisRecorder, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	if logger == nil {
		logger = log.Logger.Named("search_monitor")
	}
	return &RedisRecorder{rdb: rdb, logger: logger}, nil
}

// Record counts the outcome. Redis failures are logged and swallowed so
// monitoring can never fail a search.
func (r *RedisRecorder) Record(ctx context.Context, outcome Outcome) {
	pipe := r.rdb.Pipeline()
	pipe.Incr(ctx, keySearches)
	if outcome.FallbackFired {
		pipe.Incr(ctx, keyFallbacks)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("record search outcome",
			zap.Error(err),
			zap.String("strategy", outcome.Strategy))
	}
}

// Stats loads the counters from redis.
func (r *RedisRecorder) Stats(ctx context.Context) (Stats, error) {
	searches, err := r.rdb.Get(ctx, keySearches).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, errors.Wrap(err, "load search counter")
	}
	fallbacks, err := r.rdb.Get(ctx, keyFallbacks).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, errors.Wrap(err, "load fallback counter")
	}
	return buildStats(searches, fallbacks), nil
}

func buildStats(searches, fallbacks int64) Stats {
	stats := Stats{Searches: searches, Fallbacks: fallbacks}
	if searches > 0 {
		stats.FallbackRate = float64(fallbacks) / float64(searches)
	}
	return stats
}
