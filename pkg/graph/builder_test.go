package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedClock = WithClock(func() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
})

func TestBuildGraphMinCoOccurrence(t *testing.T) {
	src := exampleSource()
	b := NewBuilder(src, src, fixedClock)

	g, err := b.BuildGraph(context.Background(), "p1", BuildOptions{MinCoOccurrence: 2})
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, []string{"e1", "e2", "e3"}, nodeIDs(g))
	assert.Equal(t, []string{"e1-e2"}, edgePairs(g))
	assert.Equal(t, 1, degreeOf(t, g, "e1"))
	assert.Equal(t, 1, degreeOf(t, g, "e2"))
	assert.Equal(t, 0, degreeOf(t, g, "e3"))

	e := g.Edges[0]
	assert.Equal(t, 5, e.CoOccurrenceCount)
	assert.Equal(t, 1.0, e.Weight)
	assert.Equal(t, DefaultRelationshipType, e.RelationshipType)
	assert.Equal(t, []string{"d1", "d2", "d3", "d4", "d5"}, e.DocumentIDs)
	assert.Equal(t, 2, g.Metadata["min_co_occurrence"])
}

func TestBuildGraphWeightsNormalizedByMaxCount(t *testing.T) {
	src := exampleSource()
	b := NewBuilder(src, src, fixedClock)

	g, err := b.BuildGraph(context.Background(), "p1", BuildOptions{})
	require.NoError(t, err)

	require.Len(t, g.Edges, 2)
	assert.Equal(t, "e1", g.Edges[0].Source)
	assert.Equal(t, "e2", g.Edges[0].Target)
	assert.Equal(t, 1.0, g.Edges[0].Weight)
	assert.Equal(t, "e2", g.Edges[1].Source)
	assert.Equal(t, "e3", g.Edges[1].Target)
	assert.InDelta(t, 0.2, g.Edges[1].Weight, 1e-9)
	assert.Equal(t, 2, degreeOf(t, g, "e2"))
}

func TestBuildGraphDefaults(t *testing.T) {
	src := &fakeSource{
		entities: []common.Entity{{ID: "x"}, {ID: "y", DocumentCount: -3}, {ID: ""}, {ID: "x", Label: "dup"}},
	}
	b := NewBuilder(src, src)

	g, err := b.BuildGraph(context.Background(), "p1", BuildOptions{})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)

	x, ok := g.Node("x")
	require.True(t, ok)
	assert.Equal(t, "x", x.Label)
	assert.Equal(t, UnknownEntityType, x.EntityType)
	assert.Equal(t, 0, x.DocumentCount)

	y, _ := g.Node("y")
	assert.Equal(t, 0, y.DocumentCount)
	assert.Empty(t, g.Edges)
}

func TestBuildGraphEmptyResultIsNotAnError(t *testing.T) {
	src := &fakeSource{}
	g, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{EntityTypes: []string{"nothing"}})
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
	assert.NotNil(t, g.Nodes)
}

func TestBuildGraphEntityTypeFilter(t *testing.T) {
	src := exampleSource()
	g, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{EntityTypes: []string{"person"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"e1", "e3"}, nodeIDs(g))
	assert.Empty(t, g.Edges)
	assert.Equal(t, []string{"person"}, src.lastEntityQuery.EntityTypes)
}

func TestBuildGraphUnknownEntityTypeMatchesUntyped(t *testing.T) {
	src := &fakeSource{
		entities: []common.Entity{{ID: "a"}, {ID: "b", Type: "person"}},
	}
	g, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{EntityTypes: []string{UnknownEntityType}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, nodeIDs(g))
	assert.Equal(t, []string{UnknownEntityType, ""}, src.lastEntityQuery.EntityTypes)
	assert.Equal(t, []string{UnknownEntityType}, g.Metadata["entity_types"])
}

func TestBuildGraphDocumentFilter(t *testing.T) {
	src := exampleSource()
	g, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{DocumentIDs: []string{"d6"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"e2-e3"}, edgePairs(g))
	assert.Equal(t, 1.0, g.Edges[0].Weight)
}

func TestBuildGraphIdempotent(t *testing.T) {
	src := exampleSource()
	b := NewBuilder(src, src, fixedClock)

	first, err := b.BuildGraph(context.Background(), "p1", BuildOptions{})
	require.NoError(t, err)
	second, err := b.BuildGraph(context.Background(), "p1", BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Edges, second.Edges)
}

func TestBuildGraphOrderIndependent(t *testing.T) {
	src := exampleSource()
	reversed := &fakeSource{}
	for i := len(src.entities) - 1; i >= 0; i-- {
		reversed.entities = append(reversed.entities, src.entities[i])
	}
	for i := len(src.documents) - 1; i >= 0; i-- {
		reversed.documents = append(reversed.documents, src.documents[i])
	}

	a, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{})
	require.NoError(t, err)
	b, err := NewBuilder(reversed, reversed).BuildGraph(context.Background(), "p1", BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, a.Nodes, b.Nodes)
	assert.Equal(t, a.Edges, b.Edges)
}

func TestBuildGraphRelationshipTypes(t *testing.T) {
	src := &fakeRelSource{
		fakeSource: exampleSource(),
		relationships: []common.Relationship{
			{SourceID: "e2", TargetID: "e1", Type: "works_for"},
			{SourceID: "e1", TargetID: "e2", Type: "works_for"},
			{SourceID: "e1", TargetID: "e2", Type: "founded"},
			{SourceID: "e3", TargetID: "e2", Type: "b_type"},
			{SourceID: "e2", TargetID: "e3", Type: "a_type"},
		},
	}

	g, err := NewBuilder(src.fakeSource, src).BuildGraph(context.Background(), "p1", BuildOptions{})
	require.NoError(t, err)
	require.Len(t, g.Edges, 2)
	assert.Equal(t, "works_for", g.Edges[0].RelationshipType)
	assert.Equal(t, "a_type", g.Edges[1].RelationshipType)
}

func TestBuildGraphTemporal(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC) }
	src := &fakeSource{
		entities: []common.Entity{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		documents: []common.DocumentEntities{
			{DocumentID: "d1", EntityIDs: []string{"a", "b"}, CreatedAt: day(5)},
			{DocumentID: "d2", EntityIDs: []string{"a", "b"}, CreatedAt: day(1)},
			{DocumentID: "d3", EntityIDs: []string{"a", "c"}, CreatedAt: day(9)},
		},
	}

	g, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{IncludeTemporal: true})
	require.NoError(t, err)

	require.Len(t, g.Edges, 2)
	assert.Equal(t, "2025-03-01T12:00:00Z", g.Edges[0].Properties["first_seen"])
	assert.Equal(t, "2025-03-05T12:00:00Z", g.Edges[0].Properties["last_seen"])

	a, _ := g.Node("a")
	assert.Equal(t, "2025-03-01T12:00:00Z", a.Properties["first_seen"])
	assert.Equal(t, "2025-03-09T12:00:00Z", a.Properties["last_seen"])
}

func TestBuildGraphDependencyUnavailable(t *testing.T) {
	boom := errors.New("connection refused")

	src := exampleSource()
	src.entErr = boom
	g, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{})
	assert.Nil(t, g)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.ErrorIs(t, err, boom)

	src = exampleSource()
	src.docErr = boom
	_, err = NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{})
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
}

func TestBuildGraphInvalidMinCoOccurrence(t *testing.T) {
	src := exampleSource()
	_, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{MinCoOccurrence: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBuildOptionsIsBase(t *testing.T) {
	assert.True(t, BuildOptions{}.IsBase())
	assert.True(t, BuildOptions{MinCoOccurrence: 1}.IsBase())
	assert.False(t, BuildOptions{MinCoOccurrence: 2}.IsBase())
	assert.False(t, BuildOptions{EntityTypes: []string{"person"}}.IsBase())
	assert.False(t, BuildOptions{IncludeTemporal: true}.IsBase())
}
