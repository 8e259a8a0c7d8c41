package graph

import (
	"fmt"
	"sync"
)

// DefaultRelationshipType labels edges that only stem from co-occurrence.
const DefaultRelationshipType = "associated"

// UnknownEntityType is used for entities without a type.
const UnknownEntityType = "unknown"

// Graph is one consistent snapshot of the entity relationship graph of a
// project. It is never mutated after construction: FilterGraph and
// ExtractSubgraph return new graphs. Callers must treat Nodes, Edges and
// Metadata as read-only.
type Graph struct {
	ProjectID string         `json:"project_id"`
	Nodes     []Node         `json:"nodes"`
	Edges     []Edge         `json:"edges"`
	Metadata  map[string]any `json:"metadata"`

	indexOnce sync.Once
	index     map[string]int
}

// Node is a canonical entity in the graph. Degree is the number of distinct
// edges incident to the node, computed when the graph was constructed.
type Node struct {
	ID            string         `json:"id"`
	EntityID      string         `json:"entity_id"`
	Label         string         `json:"label"`
	EntityType    string         `json:"entity_type"`
	DocumentCount int            `json:"document_count"`
	Degree        int            `json:"degree"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// Edge is an undirected association between two nodes.
type Edge struct {
	Source            string         `json:"source"`
	Target            string         `json:"target"`
	RelationshipType  string         `json:"relationship_type"`
	Weight            float64        `json:"weight"`
	CoOccurrenceCount int            `json:"co_occurrence_count"`
	DocumentIDs       []string       `json:"document_ids"`
	Properties        map[string]any `json:"properties,omitempty"`
}

// NewGraph assembles a graph from nodes and edges. Node degrees are
// recomputed from edges so the degree invariant always holds; the passed
// slices are owned by the graph afterwards.
func NewGraph(projectID string, nodes []Node, edges []Edge, metadata map[string]any) *Graph {
	if nodes == nil {
		nodes = []Node{}
	}
	if edges == nil {
		edges = []Edge{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	degrees := degreeCounts(edges)
	for i := range nodes {
		nodes[i].Degree = degrees[nodes[i].ID]
	}

	return &Graph{
		ProjectID: projectID,
		Nodes:     nodes,
		Edges:     edges,
		Metadata:  metadata,
	}
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	g.indexOnce.Do(g.buildIndex)
	idx, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[idx], true
}

// HasNode reports whether id is a node of g.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.Edges)
}

// Validate checks the structural invariants of g: unique node ids, edges
// between existing nodes, weights within [0,1] and degrees matching edges.
func (g *Graph) Validate() error {
	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, ok := seen[n.ID]; ok {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := seen[e.Source]; !ok {
			return fmt.Errorf("edge %s-%s: unknown source", e.Source, e.Target)
		}
		if _, ok := seen[e.Target]; !ok {
			return fmt.Errorf("edge %s-%s: unknown target", e.Source, e.Target)
		}
		if e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("edge %s-%s: weight %f out of range", e.Source, e.Target, e.Weight)
		}
	}
	degrees := degreeCounts(g.Edges)
	for _, n := range g.Nodes {
		if n.Degree != degrees[n.ID] {
			return fmt.Errorf("node %q: degree %d, expected %d", n.ID, n.Degree, degrees[n.ID])
		}
	}
	return nil
}

func (g *Graph) buildIndex() {
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
}

// degreeCounts counts every edge once per endpoint; a self loop counts once.
func degreeCounts(edges []Edge) map[string]int {
	degrees := make(map[string]int)
	for _, e := range edges {
		degrees[e.Source]++
		if e.Target != e.Source {
			degrees[e.Target]++
		}
	}
	return degrees
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
