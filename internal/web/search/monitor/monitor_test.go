package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRecorderCountsFallbacks(t *testing.T) {
	t.Parallel()

	recorder := NewMemoryRecorder()
	ctx := context.Background()

	recorder.Record(ctx, Outcome{Strategy: "hierarchical", FallbackFired: true, TotalTime: 12 * time.Millisecond})
	recorder.Record(ctx, Outcome{Strategy: "hierarchical"})
	recorder.Record(ctx, Outcome{Strategy: "direct"})

	stats, err := recorder.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Searches)
	require.Equal(t, int64(1), stats.Fallbacks)
	require.InDelta(t, 1.0/3.0, stats.FallbackRate, 1e-9)
}

func TestMemoryRecorderConcurrentRecords(t *testing.T) {
	t.Parallel()

	recorder := NewMemoryRecorder()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(fallback bool) {
			defer wg.Done()
			recorder.Record(ctx, Outcome{FallbackFired: fallback})
		}(i%2 == 0)
	}
	wg.Wait()

	stats, err := recorder.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(100), stats.Searches)
	require.Equal(t, int64(50), stats.Fallbacks)
}

func TestStatsZeroSearchesHasZeroRate(t *testing.T) {
	t.Parallel()

	stats, err := NewMemoryRecorder().Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0.0, stats.FallbackRate)
}
