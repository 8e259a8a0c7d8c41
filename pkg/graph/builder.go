package graph

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

// BuildOptions restricts and tunes a graph build. The zero value builds the
// base graph of a project: all entities, all documents, every co-occurring
// pair becomes an edge.
type BuildOptions struct {
	DocumentIDs     []string `json:"document_ids,omitempty" query:"document_ids"`
	EntityTypes     []string `json:"entity_types,omitempty" query:"entity_types"`
	MinCoOccurrence int      `json:"min_co_occurrence,omitempty" query:"min_co_occurrence"`
	IncludeTemporal bool     `json:"include_temporal,omitempty" query:"include_temporal"`
}

// IsBase reports whether o describes the unfiltered base build, the only
// build that is cached.
func (o BuildOptions) IsBase() bool {
	return len(o.DocumentIDs) == 0 &&
		len(o.EntityTypes) == 0 &&
		o.MinCoOccurrence <= 1 &&
		!o.IncludeTemporal
}

// Builder turns entity and co-occurrence data into graphs. It holds no
// state besides its providers and is safe for concurrent use.
type Builder struct {
	entities      store.EntitiesProvider
	documents     store.DocumentsProvider
	relationships store.RelationshipsProvider
	now           func() time.Time
}

type BuilderOption func(*Builder)

// WithRelationships sets the provider of explicit relationship types.
func WithRelationships(p store.RelationshipsProvider) BuilderOption {
	return func(b *Builder) {
		b.relationships = p
	}
}

// WithClock overrides the clock used for the built_at metadata.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a builder. If one of the providers also implements
// store.RelationshipsProvider it is used for relationship types unless
// WithRelationships says otherwise.
func NewBuilder(
	entities store.EntitiesProvider,
	documents store.DocumentsProvider,
	opts ...BuilderOption,
) *Builder {
	b := &Builder{
		entities:  entities,
		documents: documents,
		now:       time.Now,
	}
	if rp, ok := documents.(store.RelationshipsProvider); ok {
		b.relationships = rp
	} else if rp, ok := entities.(store.RelationshipsProvider); ok {
		b.relationships = rp
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(b)
	}
	return b
}

type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

type pairStats struct {
	count     int
	documents []string
	firstSeen time.Time
	lastSeen  time.Time
}

type span struct {
	first, last time.Time
}

func (s *span) add(t time.Time) {
	if t.IsZero() {
		return
	}
	if s.first.IsZero() || t.Before(s.first) {
		s.first = t
	}
	if s.last.IsZero() || t.After(s.last) {
		s.last = t
	}
}

// BuildGraph builds the co-occurrence graph of a project. Provider failures
// are returned wrapped in ErrDependencyUnavailable; unmatched filters yield
// an empty graph.
func (b *Builder) BuildGraph(ctx context.Context, projectID string, opts BuildOptions) (*Graph, error) {
	if opts.MinCoOccurrence < 0 {
		return nil, invalidParameter("min_co_occurrence", opts.MinCoOccurrence)
	}
	minCo := max(opts.MinCoOccurrence, 1)
	documentIDs := store.DedupeStrings(opts.DocumentIDs)
	entityTypes := store.DedupeStrings(opts.EntityTypes)

	var (
		entities      []common.Entity
		documents     []common.DocumentEntities
		relationships []common.Relationship
	)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		res, err := b.entities.GetEntities(gCtx, store.EntityQuery{
			ProjectID:   projectID,
			EntityTypes: storedEntityTypes(entityTypes),
			DocumentIDs: documentIDs,
		})
		if err != nil {
			return dependencyUnavailable("entities", err)
		}
		entities = res
		return nil
	})
	eg.Go(func() error {
		res, err := b.documents.GetDocumentEntities(gCtx, store.DocumentQuery{
			ProjectID:   projectID,
			DocumentIDs: documentIDs,
		})
		if err != nil {
			return dependencyUnavailable("documents", err)
		}
		documents = res
		return nil
	})
	if b.relationships != nil {
		eg.Go(func() error {
			res, err := b.relationships.GetRelationships(gCtx, projectID)
			if err != nil {
				return dependencyUnavailable("relationships", err)
			}
			relationships = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	nodes := buildNodes(entities, entityTypes)
	candidates := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		candidates[n.ID] = struct{}{}
	}

	pairs, nodeSpans := countCoOccurrences(documents, documentIDs, candidates)
	edges := buildEdges(pairs, minCo, relationshipTypes(relationships), opts.IncludeTemporal)

	if opts.IncludeTemporal {
		for i := range nodes {
			s, ok := nodeSpans[nodes[i].ID]
			if !ok || s.first.IsZero() {
				continue
			}
			props := copyProperties(nodes[i].Properties)
			props["first_seen"] = s.first.UTC().Format(time.RFC3339)
			props["last_seen"] = s.last.UTC().Format(time.RFC3339)
			nodes[i].Properties = props
		}
	}

	maxCount := 0
	for _, e := range edges {
		maxCount = max(maxCount, e.CoOccurrenceCount)
	}

	metadata := map[string]any{
		"min_co_occurrence": minCo,
		"entity_types":      entityTypes,
		"document_ids":      documentIDs,
		"include_temporal":  opts.IncludeTemporal,
		"max_co_occurrence": maxCount,
		"document_count":    len(documents),
		"built_at":          b.now().UTC().Format(time.RFC3339Nano),
	}

	g := NewGraph(projectID, nodes, edges, metadata)
	logger.Debug("[Graph] Built graph", "project_id", projectID, "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return g, nil
}

// storedEntityTypes maps node types back to the values kept in the store.
// Untyped entities are stored with an empty type and become UnknownEntityType.
func storedEntityTypes(entityTypes []string) []string {
	if !slices.Contains(entityTypes, UnknownEntityType) {
		return entityTypes
	}
	return append(slices.Clone(entityTypes), "")
}

func buildNodes(entities []common.Entity, entityTypes []string) []Node {
	allowed := store.StringSet(entityTypes)
	nodes := make([]Node, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, ent := range entities {
		if ent.ID == "" {
			continue
		}
		if _, ok := seen[ent.ID]; ok {
			continue
		}
		label := ent.Label
		if label == "" {
			label = ent.ID
		}
		entityType := ent.Type
		if entityType == "" {
			entityType = UnknownEntityType
		}
		if allowed != nil {
			if _, ok := allowed[entityType]; !ok {
				continue
			}
		}
		seen[ent.ID] = struct{}{}
		nodes = append(nodes, Node{
			ID:            ent.ID,
			EntityID:      ent.ID,
			Label:         label,
			EntityType:    entityType,
			DocumentCount: max(ent.DocumentCount, 0),
			Properties:    ent.Properties,
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

func countCoOccurrences(
	documents []common.DocumentEntities,
	documentIDs []string,
	candidates map[string]struct{},
) (map[pairKey]*pairStats, map[string]*span) {
	allowedDocs := store.StringSet(documentIDs)
	pairs := make(map[pairKey]*pairStats)
	spans := make(map[string]*span)

	for _, doc := range documents {
		if allowedDocs != nil {
			if _, ok := allowedDocs[doc.DocumentID]; !ok {
				continue
			}
		}

		ids := make([]string, 0, len(doc.EntityIDs))
		for _, id := range store.DedupeStrings(doc.EntityIDs) {
			if _, ok := candidates[id]; ok {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)

		for _, id := range ids {
			s, ok := spans[id]
			if !ok {
				s = &span{}
				spans[id] = s
			}
			s.add(doc.CreatedAt)
		}

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				key := pairKey{a: ids[i], b: ids[j]}
				ps, ok := pairs[key]
				if !ok {
					ps = &pairStats{}
					pairs[key] = ps
				}
				ps.count++
				ps.documents = append(ps.documents, doc.DocumentID)
				if !doc.CreatedAt.IsZero() {
					if ps.firstSeen.IsZero() || doc.CreatedAt.Before(ps.firstSeen) {
						ps.firstSeen = doc.CreatedAt
					}
					if ps.lastSeen.IsZero() || doc.CreatedAt.After(ps.lastSeen) {
						ps.lastSeen = doc.CreatedAt
					}
				}
			}
		}
	}
	return pairs, spans
}

// relationshipTypes picks one type per entity pair: the most frequent one,
// ties broken by name.
func relationshipTypes(relationships []common.Relationship) map[pairKey]string {
	counts := make(map[pairKey]map[string]int)
	for _, r := range relationships {
		if r.Type == "" || r.SourceID == "" || r.TargetID == "" || r.SourceID == r.TargetID {
			continue
		}
		key := newPairKey(r.SourceID, r.TargetID)
		if counts[key] == nil {
			counts[key] = make(map[string]int)
		}
		counts[key][r.Type]++
	}

	out := make(map[pairKey]string, len(counts))
	for key, types := range counts {
		best, bestCount := "", 0
		for t, c := range types {
			if c > bestCount || (c == bestCount && t < best) {
				best, bestCount = t, c
			}
		}
		out[key] = best
	}
	return out
}

func buildEdges(
	pairs map[pairKey]*pairStats,
	minCo int,
	types map[pairKey]string,
	temporal bool,
) []Edge {
	maxCount := 0
	for _, ps := range pairs {
		if ps.count >= minCo {
			maxCount = max(maxCount, ps.count)
		}
	}

	edges := make([]Edge, 0, len(pairs))
	for key, ps := range pairs {
		if ps.count < minCo {
			continue
		}
		relType, ok := types[key]
		if !ok {
			relType = DefaultRelationshipType
		}
		docs := store.DedupeStrings(ps.documents)
		slices.Sort(docs)

		e := Edge{
			Source:            key.a,
			Target:            key.b,
			RelationshipType:  relType,
			Weight:            float64(ps.count) / float64(maxCount),
			CoOccurrenceCount: ps.count,
			DocumentIDs:       docs,
		}
		if temporal && !ps.firstSeen.IsZero() {
			e.Properties = map[string]any{
				"first_seen": ps.firstSeen.UTC().Format(time.RFC3339),
				"last_seen":  ps.lastSeen.UTC().Format(time.RFC3339),
			}
		}
		edges = append(edges, e)
	}

	sortEdges(edges)
	return edges
}

func sortEdges(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}

func copyProperties(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
