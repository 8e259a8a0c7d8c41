// Package cache holds the per-project cache of base graphs.
package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// BuildFunc builds the base graph of a project on a cache miss.
type BuildFunc func(ctx context.Context) (*graph.Graph, error)

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Builds        int64 `json:"builds"`
	BuildFailures int64 `json:"build_failures"`
	StaleBuilds   int64 `json:"stale_builds"`
	Invalidations int64 `json:"invalidations"`
	Entries       int   `json:"entries"`
}

type entry struct {
	graph      *graph.Graph
	generation uint64
	epoch      uint64
	builtAt    time.Time
}

// version identifies the cache state a build started under.
type version struct {
	generation uint64
	epoch      uint64
}

// GraphCache maps project ids to their last built base graph.
//
// Every project has a generation counter that Invalidate bumps. A build
// remembers the generation it started under and is only published if the
// generation is still current when it finishes, so an invalidation that
// races with a build is never lost. Concurrent misses of the same project
// and generation share one build.
type GraphCache struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	generations map[string]uint64
	// epoch is bumped by InvalidateAll
	epoch uint64

	group   singleflight.Group
	metrics *cacheMetrics
	ttl     time.Duration
	now     func() time.Time

	hits, misses, builds, failures, stale, invalidations atomic.Int64
}

type Option func(*GraphCache) error

// WithRegisterer registers the cache metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *GraphCache) error {
		if reg == nil {
			return nil
		}
		return c.metrics.register(reg)
	}
}

// WithTTL expires entries after ttl even without an invalidation. Zero
// keeps entries until they are invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(c *GraphCache) error {
		c.ttl = ttl
		return nil
	}
}

// WithClock overrides the clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *GraphCache) error {
		c.now = now
		return nil
	}
}

// NewGraphCache creates an empty cache. name labels the metrics.
func NewGraphCache(name string, opts ...Option) (*GraphCache, error) {
	c := &GraphCache{
		entries:     make(map[string]*entry),
		generations: make(map[string]uint64),
		metrics:     newCacheMetrics(name),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get returns the cached graph of projectID without building.
func (c *GraphCache) Get(projectID string) (*graph.Graph, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[projectID]
	if !ok || !c.fresh(projectID, e) {
		return nil, false
	}
	return e.graph, true
}

// GetOrBuild returns the cached graph of projectID or builds, publishes and
// returns a new one. A failed build publishes nothing. If the caller's
// context ends first GetOrBuild returns its error while the shared build
// keeps running for the other waiters.
func (c *GraphCache) GetOrBuild(ctx context.Context, projectID string, build BuildFunc) (*graph.Graph, error) {
	c.mu.RLock()
	e, ok := c.entries[projectID]
	v := c.version(projectID)
	if ok && c.fresh(projectID, e) {
		c.mu.RUnlock()
		c.hits.Add(1)
		c.metrics.hits.Inc()
		return e.graph, nil
	}
	c.mu.RUnlock()

	c.misses.Add(1)
	c.metrics.misses.Inc()

	key := projectID + "@" + strconv.FormatUint(v.generation, 10) + "." + strconv.FormatUint(v.epoch, 10)
	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.build(buildCtx, projectID, v, build)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*graph.Graph), nil
	}
}

func (c *GraphCache) build(ctx context.Context, projectID string, v version, build BuildFunc) (*graph.Graph, error) {
	c.builds.Add(1)
	c.metrics.builds.Inc()

	start := c.now()
	g, err := build(ctx)
	c.metrics.buildSeconds.Observe(c.now().Sub(start).Seconds())
	if err != nil {
		c.failures.Add(1)
		c.metrics.buildFailures.Inc()
		logger.Warn("[Cache] Graph build failed", "project_id", projectID, "err", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version(projectID) != v {
		c.stale.Add(1)
		c.metrics.staleBuilds.Inc()
		logger.Debug("[Cache] Discarding stale build", "project_id", projectID, "generation", v.generation)
		return g, nil
	}
	c.entries[projectID] = &entry{graph: g, generation: v.generation, epoch: v.epoch, builtAt: c.now()}
	c.metrics.entries.Set(float64(len(c.entries)))
	logger.Debug("[Cache] Published graph", "project_id", projectID, "generation", v.generation, "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return g, nil
}

// Invalidate drops the graph of projectID. The next GetOrBuild rebuilds,
// and builds that are still running are not published.
func (c *GraphCache) Invalidate(projectID string) {
	c.mu.Lock()
	c.generations[projectID]++
	delete(c.entries, projectID)
	c.metrics.entries.Set(float64(len(c.entries)))
	c.mu.Unlock()

	c.invalidations.Add(1)
	c.metrics.invalidations.Inc()
	logger.Debug("[Cache] Invalidated project", "project_id", projectID)
}

// InvalidateAll drops every cached graph.
func (c *GraphCache) InvalidateAll() {
	c.mu.Lock()
	c.epoch++
	n := len(c.entries)
	clear(c.entries)
	c.metrics.entries.Set(0)
	c.mu.Unlock()

	c.invalidations.Add(int64(n))
	c.metrics.invalidations.Add(float64(n))
	logger.Debug("[Cache] Invalidated all projects", "entries", n)
}

// Len returns the number of cached graphs.
func (c *GraphCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the current counters.
func (c *GraphCache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Builds:        c.builds.Load(),
		BuildFailures: c.failures.Load(),
		StaleBuilds:   c.stale.Load(),
		Invalidations: c.invalidations.Load(),
		Entries:       c.Len(),
	}
}

// version and fresh must be called with c.mu held.
func (c *GraphCache) version(projectID string) version {
	return version{generation: c.generations[projectID], epoch: c.epoch}
}

func (c *GraphCache) fresh(projectID string, e *entry) bool {
	if e.generation != c.generations[projectID] || e.epoch != c.epoch {
		return false
	}
	return c.ttl <= 0 || c.now().Sub(e.builtAt) < c.ttl
}
