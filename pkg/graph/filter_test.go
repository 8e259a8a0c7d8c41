package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterGraphEntityTypes(t *testing.T) {
	src := exampleSource()
	g, err := NewBuilder(src, src).BuildGraph(context.Background(), "p1", BuildOptions{MinCoOccurrence: 2})
	require.NoError(t, err)

	filtered, err := FilterGraph(g, FilterOptions{EntityTypes: []string{"person"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"e1", "e3"}, nodeIDs(filtered))
	assert.Empty(t, filtered.Edges)
	assert.Equal(t, 0, degreeOf(t, filtered, "e1"))
	assert.Equal(t, 0, degreeOf(t, filtered, "e3"))

	// input untouched
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 1)
	assert.Equal(t, 1, degreeOf(t, g, "e1"))
}

func TestFilterGraphMinEdgeWeight(t *testing.T) {
	g := newTestGraph(t, nodesOf("a", "b", "c", "d"), []Edge{
		edge("a", "b", 1.0),
		edge("b", "c", 0.4),
		edge("c", "d", 0.5),
	})

	filtered, err := FilterGraph(g, FilterOptions{MinEdgeWeight: 0.5})
	require.NoError(t, err)
	require.NoError(t, filtered.Validate())

	assert.Equal(t, []string{"a-b", "c-d"}, edgePairs(filtered))
	assert.Equal(t, []string{"a", "b", "c", "d"}, nodeIDs(filtered))
	assert.Equal(t, 1, degreeOf(t, filtered, "b"))

	filtered, err = FilterGraph(g, FilterOptions{MinEdgeWeight: 0.9})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-b"}, edgePairs(filtered))
	assert.Equal(t, []string{"a", "b"}, nodeIDs(filtered))
}

func TestFilterGraphRelationshipTypes(t *testing.T) {
	works := edge("a", "b", 1)
	works.RelationshipType = "works_for"
	g := newTestGraph(t, nodesOf("a", "b", "c"), []Edge{works, edge("b", "c", 1)})

	filtered, err := FilterGraph(g, FilterOptions{RelationshipTypes: []string{"works_for"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-b"}, edgePairs(filtered))
	assert.Equal(t, []string{"a", "b"}, nodeIDs(filtered))
}

func TestFilterGraphPreserveNodes(t *testing.T) {
	g := newTestGraph(t, nodesOf("a", "b", "c"), []Edge{edge("a", "b", 1), edge("b", "c", 0.1)})

	filtered, err := FilterGraph(g, FilterOptions{MinEdgeWeight: 0.5, PreserveNodes: []string{"c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, nodeIDs(filtered))
	assert.Equal(t, 0, degreeOf(t, filtered, "c"))
}

func TestFilterGraphMinDegreeUsesInputDegree(t *testing.T) {
	// a-b-c-d chain plus b-d: degrees a=1 b=2 c=2 d=2
	g := newTestGraph(t, nodesOf("a", "b", "c", "d"), []Edge{
		edge("a", "b", 1),
		edge("b", "c", 1),
		edge("b", "d", 1),
		edge("c", "d", 1),
	})

	filtered, err := FilterGraph(g, FilterOptions{MinDegree: 2})
	require.NoError(t, err)

	// b keeps degree 2 after a is gone; no cascade is applied within the call.
	assert.Equal(t, []string{"b", "c", "d"}, nodeIDs(filtered))
	assert.Equal(t, []string{"b-c", "b-d", "c-d"}, edgePairs(filtered))
	assert.Equal(t, 2, degreeOf(t, filtered, "b"))
}

func TestFilterGraphNodeCriteriaKeepIsolatedNodes(t *testing.T) {
	g := newTestGraph(t, nodesOf("a", "b", "c"), []Edge{edge("a", "b", 1), edge("b", "c", 1)})

	filtered, err := FilterGraph(g, FilterOptions{MinDegree: 2, MinEdgeWeight: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, nodeIDs(filtered))
	assert.Empty(t, filtered.Edges)
	assert.Equal(t, 0, degreeOf(t, filtered, "b"))

	pruned, err := FilterGraph(g, FilterOptions{MinDegree: 2, MinEdgeWeight: 0.1})
	require.NoError(t, err)
	assert.Empty(t, pruned.Nodes)
}

func TestFilterGraphDegreesRecomputed(t *testing.T) {
	g := newTestGraph(t, []Node{node("a", "person"), node("b", "org"), node("c", "person")}, []Edge{
		edge("a", "b", 1),
		edge("a", "c", 1),
	})

	filtered, err := FilterGraph(g, FilterOptions{EntityTypes: []string{"person"}})
	require.NoError(t, err)
	require.NoError(t, filtered.Validate())
	assert.Equal(t, 1, degreeOf(t, filtered, "a"))
}

func TestFilterGraphRecordsMetadata(t *testing.T) {
	g := newTestGraph(t, nodesOf("a"), nil)
	opts := FilterOptions{MinDegree: 1}
	filtered, err := FilterGraph(g, opts)
	require.NoError(t, err)
	assert.Equal(t, opts, filtered.Metadata["filter"])
	assert.NotContains(t, g.Metadata, "filter")
}

func TestFilterGraphInvalidParameters(t *testing.T) {
	g := newTestGraph(t, nodesOf("a"), nil)

	_, err := FilterGraph(g, FilterOptions{MinDegree: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = FilterGraph(g, FilterOptions{MinEdgeWeight: 1.5})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = FilterGraph(g, FilterOptions{MinEdgeWeight: -0.1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
