package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, opts ...Option) *GraphCache {
	t.Helper()
	c, err := NewGraphCache("test", opts...)
	require.NoError(t, err)
	return c
}

func countingBuild(calls *atomic.Int64) BuildFunc {
	return func(context.Context) (*graph.Graph, error) {
		n := calls.Add(1)
		nodes := make([]graph.Node, n)
		for i := range nodes {
			nodes[i] = graph.Node{ID: string(rune('a' + i))}
		}
		return graph.NewGraph("p1", nodes, nil, nil), nil
	}
}

func TestGetOrBuildCachesBaseGraph(t *testing.T) {
	c := newCache(t)
	var calls atomic.Int64

	first, err := c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	second, err := c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)

	got, ok := c.Get("p1")
	require.True(t, ok)
	assert.Same(t, first, got)
	_, ok = c.Get("p2")
	assert.False(t, ok)
}

func TestInvalidateForcesRebuild(t *testing.T) {
	c := newCache(t)
	var calls atomic.Int64

	first, err := c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	c.Invalidate("p1")
	assert.Equal(t, 0, c.Len())

	second, err := c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, second.NodeCount())
	assert.Equal(t, int64(2), calls.Load())
}

func TestInvalidateIsPerProject(t *testing.T) {
	c := newCache(t)
	var calls atomic.Int64
	_, err := c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	_, err = c.GetOrBuild(context.Background(), "p2", countingBuild(&calls))
	require.NoError(t, err)

	c.Invalidate("p1")
	_, ok := c.Get("p2")
	assert.True(t, ok)
	_, ok = c.Get("p1")
	assert.False(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestFailedBuildIsNotPublished(t *testing.T) {
	c := newCache(t)
	boom := errors.New("entities unavailable")

	g, err := c.GetOrBuild(context.Background(), "p1", func(context.Context) (*graph.Graph, error) {
		return nil, boom
	})
	assert.Nil(t, g)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Stats().BuildFailures)

	var calls atomic.Int64
	_, err = c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestInvalidateDuringBuildDiscardsResult(t *testing.T) {
	c := newCache(t)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan *graph.Graph)
	go func() {
		g, err := c.GetOrBuild(context.Background(), "p1", func(context.Context) (*graph.Graph, error) {
			close(started)
			<-release
			return graph.NewGraph("p1", nil, nil, nil), nil
		})
		assert.NoError(t, err)
		done <- g
	}()

	<-started
	c.Invalidate("p1")
	close(release)

	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Stats().StaleBuilds)

	var calls atomic.Int64
	fresh, err := c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
	assert.Equal(t, int64(1), calls.Load())
}

func TestConcurrentMissesShareOneBuild(t *testing.T) {
	c := newCache(t)
	var calls atomic.Int64
	release := make(chan struct{})
	build := func(ctx context.Context) (*graph.Graph, error) {
		calls.Add(1)
		<-release
		return graph.NewGraph("p1", nil, nil, nil), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*graph.Graph, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := c.GetOrBuild(context.Background(), "p1", build)
			assert.NoError(t, err)
			results[i] = g
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	// let the other callers join the flight
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, g := range results {
		assert.Same(t, results[0], g)
	}
}

func TestCallerCancellationKeepsBuildRunning(t *testing.T) {
	c := newCache(t)
	release := make(chan struct{})
	built := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := c.GetOrBuild(ctx, "p1", func(bctx context.Context) (*graph.Graph, error) {
			<-release
			defer close(built)
			if bctx.Err() != nil {
				return nil, bctx.Err()
			}
			return graph.NewGraph("p1", nil, nil, nil), nil
		})
		errc <- err
	}()

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	<-built
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
}

func TestTTLExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newCache(t, WithTTL(time.Minute), WithClock(func() time.Time { return now }))
	var calls atomic.Int64

	_, err := c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())

	now = now.Add(time.Minute)
	_, ok := c.Get("p1")
	assert.False(t, ok)
	_, err = c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newCache(t, WithRegisterer(reg))
	var calls atomic.Int64

	_, err := c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	_, err = c.GetOrBuild(context.Background(), "p1", countingBuild(&calls))
	require.NoError(t, err)
	c.Invalidate("p1")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.invalidations))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.entries))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	_, err = NewGraphCache("test", WithRegisterer(reg))
	assert.Error(t, err)
}
