// Package engine ties graph building, caching and analysis together for
// one process. All operations resolve the base graph of a project through
// the cache and compute derived views on demand.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/cache"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/OFFIS-RIT/kiwi/entitygraph/pkg/engine"

// GraphBuilder builds graphs from the source-of-truth stores.
// *graph.Builder implements it.
type GraphBuilder interface {
	BuildGraph(ctx context.Context, projectID string, opts graph.BuildOptions) (*graph.Graph, error)
}

// Engine serves graph operations for any number of projects.
type Engine struct {
	builder      GraphBuilder
	cache        *cache.GraphCache
	tracer       trace.Tracer
	buildTimeout time.Duration
	buildSlots   *semaphore.Weighted
}

type Option func(*Engine)

// WithTracerProvider sets the provider for operation spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// WithBuildTimeout bounds a single graph build. Zero means no bound.
func WithBuildTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.buildTimeout = d
	}
}

// WithMaxConcurrentBuilds caps the number of graph builds running at once
// across all projects. Zero means no cap.
func WithMaxConcurrentBuilds(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.buildSlots = semaphore.NewWeighted(n)
		}
	}
}

// New creates an engine that owns c.
func New(builder GraphBuilder, c *cache.GraphCache, opts ...Option) *Engine {
	e := &Engine{
		builder: builder,
		cache:   c,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// Cache returns the cache owned by e.
func (e *Engine) Cache() *cache.GraphCache {
	return e.cache
}

func (e *Engine) startSpan(ctx context.Context, name, projectID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("project_id", projectID))
	return e.tracer.Start(ctx, "graph."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) build(ctx context.Context, projectID string, opts graph.BuildOptions) (*graph.Graph, error) {
	if e.buildSlots != nil {
		if err := e.buildSlots.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.buildSlots.Release(1)
	}
	if e.buildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.buildTimeout)
		defer cancel()
	}
	return e.builder.BuildGraph(ctx, projectID, opts)
}

// BaseGraph returns the cached base graph of projectID, building it on a miss.
func (e *Engine) BaseGraph(ctx context.Context, projectID string) (*graph.Graph, error) {
	return e.cache.GetOrBuild(ctx, projectID, func(ctx context.Context) (*graph.Graph, error) {
		return e.build(ctx, projectID, graph.BuildOptions{})
	})
}

// BuildGraph returns the graph of projectID for opts. Only the base graph
// is cached; any other options build a fresh graph.
func (e *Engine) BuildGraph(ctx context.Context, projectID string, opts graph.BuildOptions) (g *graph.Graph, err error) {
	ctx, span := e.startSpan(ctx, "build", projectID, attribute.Bool("base", opts.IsBase()))
	defer func() { endSpan(span, err) }()

	if opts.IsBase() {
		return e.BaseGraph(ctx, projectID)
	}
	return e.build(ctx, projectID, opts)
}

// FilterGraph filters the base graph of projectID.
func (e *Engine) FilterGraph(ctx context.Context, projectID string, opts graph.FilterOptions) (g *graph.Graph, err error) {
	ctx, span := e.startSpan(ctx, "filter", projectID)
	defer func() { endSpan(span, err) }()

	if err = opts.Validate(); err != nil {
		return nil, err
	}
	base, err := e.BaseGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return graph.FilterGraph(base, opts)
}

// ExtractSubgraph returns the neighborhood of entityID in the base graph.
func (e *Engine) ExtractSubgraph(ctx context.Context, projectID, entityID string, opts graph.SubgraphOptions) (g *graph.Graph, err error) {
	ctx, span := e.startSpan(ctx, "subgraph", projectID,
		attribute.String("entity_id", entityID),
		attribute.Int("depth", opts.Depth),
	)
	defer func() { endSpan(span, err) }()

	if err = opts.Validate(); err != nil {
		return nil, err
	}
	base, err := e.BaseGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return graph.ExtractSubgraph(base, entityID, opts)
}

// CalculateCentrality scores the nodes of the base graph, optionally after
// filtering it.
func (e *Engine) CalculateCentrality(
	ctx context.Context,
	projectID string,
	metric string,
	opts graph.CentralityOptions,
	filter graph.FilterOptions,
) (scores []graph.CentralityScore, err error) {
	ctx, span := e.startSpan(ctx, "centrality", projectID, attribute.String("metric", metric))
	defer func() { endSpan(span, err) }()

	if err = graph.ValidateMetric(metric); err != nil {
		return nil, err
	}
	if err = opts.Validate(); err != nil {
		return nil, err
	}
	g, err := e.view(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	return graph.CalculateCentrality(g, metric, opts)
}

// DetectCommunities partitions the base graph, optionally after filtering it.
func (e *Engine) DetectCommunities(
	ctx context.Context,
	projectID string,
	opts graph.CommunityOptions,
	filter graph.FilterOptions,
) (res *graph.CommunityResult, err error) {
	ctx, span := e.startSpan(ctx, "communities", projectID)
	defer func() { endSpan(span, err) }()

	if err = opts.Validate(); err != nil {
		return nil, err
	}
	g, err := e.view(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	res, err = graph.DetectCommunities(g, opts)
	if err == nil {
		span.SetAttributes(attribute.Int("communities", len(res.Communities)))
	}
	return res, err
}

// FindShortestPath finds a shortest path in the base graph.
func (e *Engine) FindShortestPath(ctx context.Context, projectID, source, target string) (res *graph.PathResult, err error) {
	ctx, span := e.startSpan(ctx, "shortest_path", projectID,
		attribute.String("source", source),
		attribute.String("target", target),
	)
	defer func() { endSpan(span, err) }()

	base, err := e.BaseGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return graph.FindShortestPath(base, source, target)
}

// FindAllPaths enumerates simple paths in the base graph.
func (e *Engine) FindAllPaths(ctx context.Context, projectID, source, target string, maxLength, limit int) (paths []graph.Path, err error) {
	ctx, span := e.startSpan(ctx, "all_paths", projectID,
		attribute.String("source", source),
		attribute.String("target", target),
		attribute.Int("max_length", maxLength),
	)
	defer func() { endSpan(span, err) }()

	if err = graph.ValidatePathBounds(maxLength, limit); err != nil {
		return nil, err
	}
	base, err := e.BaseGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return graph.FindAllPaths(base, source, target, maxLength, limit)
}

// GetNeighbors returns the ego network of entityID in the base graph.
func (e *Engine) GetNeighbors(ctx context.Context, projectID, entityID string, degree int) (res []graph.NeighborResult, err error) {
	ctx, span := e.startSpan(ctx, "neighbors", projectID,
		attribute.String("entity_id", entityID),
		attribute.Int("degree", degree),
	)
	defer func() { endSpan(span, err) }()

	if degree < 0 {
		return nil, fmt.Errorf("%w: degree=%d", graph.ErrInvalidParameter, degree)
	}
	base, err := e.BaseGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return graph.GetNeighbors(base, entityID, degree)
}

// ExportGraph serializes the base graph, optionally filtered. It returns the
// document and the fingerprint of the exported graph.
func (e *Engine) ExportGraph(ctx context.Context, projectID, format string, filter graph.FilterOptions) (doc, fingerprint string, err error) {
	ctx, span := e.startSpan(ctx, "export", projectID, attribute.String("format", format))
	defer func() { endSpan(span, err) }()

	g, err := e.view(ctx, projectID, filter)
	if err != nil {
		return "", "", err
	}
	doc, err = graph.Export(g, format)
	if err != nil {
		return "", "", err
	}
	fingerprint, err = graph.Fingerprint(g)
	if err != nil {
		return "", "", err
	}
	return doc, fingerprint, nil
}

// CalculateStatistics summarizes the base graph, optionally filtered.
func (e *Engine) CalculateStatistics(ctx context.Context, projectID string, filter graph.FilterOptions) (stats graph.Statistics, err error) {
	ctx, span := e.startSpan(ctx, "statistics", projectID)
	defer func() { endSpan(span, err) }()

	g, err := e.view(ctx, projectID, filter)
	if err != nil {
		return graph.Statistics{}, err
	}
	return graph.CalculateStatistics(g), nil
}

// view returns the base graph, filtered when filter is not empty.
func (e *Engine) view(ctx context.Context, projectID string, filter graph.FilterOptions) (*graph.Graph, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	base, err := e.BaseGraph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if filter.IsZero() {
		return base, nil
	}
	g, err := graph.FilterGraph(base, filter)
	if err != nil {
		return nil, err
	}
	logger.Debug("[Graph] Filtered graph", "project_id", projectID, "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return g, nil
}
