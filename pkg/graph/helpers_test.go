package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/store"
)

type fakeSource struct {
	entities  []common.Entity
	documents []common.DocumentEntities
	entErr    error
	docErr    error

	lastEntityQuery store.EntityQuery
}

func (f *fakeSource) GetEntities(_ context.Context, q store.EntityQuery) ([]common.Entity, error) {
	f.lastEntityQuery = q
	if f.entErr != nil {
		return nil, f.entErr
	}
	return f.entities, nil
}

func (f *fakeSource) GetDocumentEntities(_ context.Context, _ store.DocumentQuery) ([]common.DocumentEntities, error) {
	if f.docErr != nil {
		return nil, f.docErr
	}
	return f.documents, nil
}

type fakeRelSource struct {
	*fakeSource
	relationships []common.Relationship
}

func (f *fakeRelSource) GetRelationships(_ context.Context, _ string) ([]common.Relationship, error) {
	return f.relationships, nil
}

func node(id, entityType string) Node {
	return Node{ID: id, EntityID: id, Label: id, EntityType: entityType}
}

func edge(source, target string, weight float64) Edge {
	return Edge{
		Source:            source,
		Target:            target,
		RelationshipType:  DefaultRelationshipType,
		Weight:            weight,
		CoOccurrenceCount: 1,
	}
}

func newTestGraph(t *testing.T, nodes []Node, edges []Edge) *Graph {
	t.Helper()
	g := NewGraph("p1", nodes, edges, nil)
	if err := g.Validate(); err != nil {
		t.Fatalf("invalid test graph: %v", err)
	}
	return g
}

// nodesOf builds one person node per id.
func nodesOf(ids ...string) []Node {
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, node(id, "person"))
	}
	return out
}

func nodeIDs(g *Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

func edgePairs(g *Graph) []string {
	out := make([]string, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, e.Source+"-"+e.Target)
	}
	sort.Strings(out)
	return out
}

func degreeOf(t *testing.T, g *Graph, id string) int {
	t.Helper()
	n, ok := g.Node(id)
	if !ok {
		t.Fatalf("node %q missing", id)
	}
	return n.Degree
}

// exampleSource is the e1/e2/e3 project: (e1,e2) co-occur in five
// documents, (e2,e3) in one.
func exampleSource() *fakeSource {
	src := &fakeSource{
		entities: []common.Entity{
			{ID: "e1", Label: "Alice", Type: "person", DocumentCount: 5},
			{ID: "e2", Label: "Acme", Type: "org", DocumentCount: 6},
			{ID: "e3", Label: "Bob", Type: "person", DocumentCount: 1},
		},
	}
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		src.documents = append(src.documents, common.DocumentEntities{DocumentID: id, EntityIDs: []string{"e1", "e2"}})
	}
	src.documents = append(src.documents, common.DocumentEntities{DocumentID: "d6", EntityIDs: []string{"e3", "e2"}})
	return src
}
