package graph

// Neighbor is one adjacency entry. EdgeIndex points into the edge slice
// the index was built from.
type Neighbor struct {
	ID        string
	Weight    float64
	EdgeIndex int
}

// AdjacencyIndex is an undirected adjacency list derived from an edge list.
// Neighbors appear in edge order, so iteration is deterministic for a given
// graph. Self loops are skipped; parallel edges are all kept.
type AdjacencyIndex struct {
	neighbors map[string][]Neighbor
}

// NewAdjacencyIndex builds the adjacency of edges.
func NewAdjacencyIndex(edges []Edge) *AdjacencyIndex {
	idx := &AdjacencyIndex{neighbors: make(map[string][]Neighbor)}
	for i, e := range edges {
		if e.Source == e.Target {
			continue
		}
		idx.neighbors[e.Source] = append(idx.neighbors[e.Source], Neighbor{ID: e.Target, Weight: e.Weight, EdgeIndex: i})
		idx.neighbors[e.Target] = append(idx.neighbors[e.Target], Neighbor{ID: e.Source, Weight: e.Weight, EdgeIndex: i})
	}
	return idx
}

// Neighbors returns the adjacency entries of id. The slice must not be modified.
func (a *AdjacencyIndex) Neighbors(id string) []Neighbor {
	return a.neighbors[id]
}

// Degree returns the number of adjacency entries of id, self loops excluded.
func (a *AdjacencyIndex) Degree(id string) int {
	return len(a.neighbors[id])
}

// WeightedDegree returns the sum of weights of the edges incident to id.
func (a *AdjacencyIndex) WeightedDegree(id string) float64 {
	total := 0.0
	for _, n := range a.neighbors[id] {
		total += n.Weight
	}
	return total
}
