package graph

import "sort"

// PathResult is the outcome of a shortest path search. Found is false for
// valid but unconnected entities; that is not an error.
type PathResult struct {
	Found     bool     `json:"found"`
	Length    int      `json:"length"`
	PathNodes []string `json:"path_nodes"`
	PathEdges []Edge   `json:"path_edges"`
}

// Path is one simple path of FindAllPaths.
type Path struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// NeighborResult is a node of an ego network with its hop distance from the
// center. Weight is the strongest edge linking it to a node one hop closer.
type NeighborResult struct {
	ID            string  `json:"id"`
	Label         string  `json:"label"`
	EntityType    string  `json:"entity_type"`
	DocumentCount int     `json:"document_count"`
	Distance      int     `json:"distance"`
	Weight        float64 `json:"weight"`
}

// FindShortestPath returns a path with the fewest hops between source and
// target. Among equally short paths the one found first in adjacency order
// is returned.
func FindShortestPath(g *Graph, source, target string) (*PathResult, error) {
	if !g.HasNode(source) {
		return nil, entityNotFound(source)
	}
	if !g.HasNode(target) {
		return nil, entityNotFound(target)
	}
	if source == target {
		return &PathResult{Found: true, Length: 0, PathNodes: []string{source}, PathEdges: []Edge{}}, nil
	}

	adj := NewAdjacencyIndex(g.Edges)
	type step struct {
		prev string
		edge int
	}
	parent := map[string]step{source: {edge: -1}}
	queue := []string{source}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, nb := range adj.Neighbors(current) {
			if _, seen := parent[nb.ID]; seen {
				continue
			}
			parent[nb.ID] = step{prev: current, edge: nb.EdgeIndex}
			if nb.ID == target {
				queue = nil
				break
			}
			queue = append(queue, nb.ID)
		}
	}

	if _, ok := parent[target]; !ok {
		return &PathResult{Found: false, PathNodes: []string{}, PathEdges: []Edge{}}, nil
	}

	var nodes []string
	var edges []Edge
	for at := target; at != source; at = parent[at].prev {
		nodes = append(nodes, at)
		edges = append(edges, g.Edges[parent[at].edge])
	}
	nodes = append(nodes, source)
	reverse(nodes)
	reverse(edges)

	return &PathResult{
		Found:     true,
		Length:    len(edges),
		PathNodes: nodes,
		PathEdges: edges,
	}, nil
}

// FindAllPaths enumerates simple paths of at most maxLength hops by depth
// first search and stops after limit paths (limit 0 means no limit). Paths
// are returned in discovery order.
func FindAllPaths(g *Graph, source, target string, maxLength, limit int) ([]Path, error) {
	if err := ValidatePathBounds(maxLength, limit); err != nil {
		return nil, err
	}
	if !g.HasNode(source) {
		return nil, entityNotFound(source)
	}
	if !g.HasNode(target) {
		return nil, entityNotFound(target)
	}

	paths := make([]Path, 0)
	if source == target {
		return paths, nil
	}

	adj := NewAdjacencyIndex(g.Edges)
	onPath := map[string]bool{source: true}
	nodes := []string{source}
	var edges []Edge

	var walk func(current string) bool
	walk = func(current string) bool {
		if len(edges) >= maxLength {
			return true
		}
		for _, nb := range adj.Neighbors(current) {
			if onPath[nb.ID] {
				continue
			}
			nodes = append(nodes, nb.ID)
			edges = append(edges, g.Edges[nb.EdgeIndex])

			if nb.ID == target {
				paths = append(paths, Path{
					Nodes: append([]string(nil), nodes...),
					Edges: append([]Edge(nil), edges...),
				})
				if limit > 0 && len(paths) >= limit {
					return false
				}
			} else {
				onPath[nb.ID] = true
				cont := walk(nb.ID)
				onPath[nb.ID] = false
				if !cont {
					return false
				}
			}

			nodes = nodes[:len(nodes)-1]
			edges = edges[:len(edges)-1]
		}
		return true
	}
	walk(source)

	return paths, nil
}

// GetNeighbors returns every node within degree hops of entityID, the
// center excluded, sorted by distance ascending, then by document count,
// edge weight (both descending) and id.
func GetNeighbors(g *Graph, entityID string, degree int) ([]NeighborResult, error) {
	if degree < 0 {
		return nil, invalidParameter("degree", degree)
	}
	if !g.HasNode(entityID) {
		return nil, entityNotFound(entityID)
	}

	adj := NewAdjacencyIndex(g.Edges)
	distance := map[string]int{entityID: 0}
	weight := map[string]float64{}
	frontier := []string{entityID}

	for level := 1; level <= degree && len(frontier) > 0; level++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range adj.Neighbors(id) {
				d, seen := distance[nb.ID]
				if !seen {
					distance[nb.ID] = level
					weight[nb.ID] = nb.Weight
					next = append(next, nb.ID)
					continue
				}
				if d == level && nb.Weight > weight[nb.ID] {
					weight[nb.ID] = nb.Weight
				}
			}
		}
		frontier = next
	}

	out := make([]NeighborResult, 0, len(distance)-1)
	for id, d := range distance {
		if id == entityID {
			continue
		}
		n, _ := g.Node(id)
		out = append(out, NeighborResult{
			ID:            id,
			Label:         n.Label,
			EntityType:    n.EntityType,
			DocumentCount: n.DocumentCount,
			Distance:      d,
			Weight:        weight[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.DocumentCount != b.DocumentCount {
			return a.DocumentCount > b.DocumentCount
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.ID < b.ID
	})
	return out, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// ValidatePathBounds checks the bounds of FindAllPaths.
func ValidatePathBounds(maxLength, limit int) error {
	if maxLength < 0 {
		return invalidParameter("max_length", maxLength)
	}
	if limit < 0 {
		return invalidParameter("limit", limit)
	}
	return nil
}
