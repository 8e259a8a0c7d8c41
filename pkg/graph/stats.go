package graph

// Statistics summarizes a graph.
type Statistics struct {
	NodeCount           int            `json:"node_count"`
	EdgeCount           int            `json:"edge_count"`
	Density             float64        `json:"density"`
	AverageDegree       float64        `json:"average_degree"`
	MaxDegree           int            `json:"max_degree"`
	IsolatedNodes       int            `json:"isolated_nodes"`
	ConnectedComponents int            `json:"connected_components"`
	LargestComponent    int            `json:"largest_component"`
	AverageWeight       float64        `json:"average_weight"`
	EntityTypes         map[string]int `json:"entity_types"`
	RelationshipTypes   map[string]int `json:"relationship_types"`
}

// CalculateStatistics computes size, density and component statistics.
// Density is 2E / (N(N-1)) and 0 for graphs with fewer than two nodes.
func CalculateStatistics(g *Graph) Statistics {
	stats := Statistics{
		NodeCount:         len(g.Nodes),
		EdgeCount:         len(g.Edges),
		EntityTypes:       map[string]int{},
		RelationshipTypes: map[string]int{},
	}

	n := float64(stats.NodeCount)
	if stats.NodeCount > 1 {
		stats.Density = 2 * float64(stats.EdgeCount) / (n * (n - 1))
	}

	totalDegree := 0
	for _, node := range g.Nodes {
		totalDegree += node.Degree
		stats.MaxDegree = max(stats.MaxDegree, node.Degree)
		if node.Degree == 0 {
			stats.IsolatedNodes++
		}
		stats.EntityTypes[node.EntityType]++
	}
	if stats.NodeCount > 0 {
		stats.AverageDegree = float64(totalDegree) / n
	}

	totalWeight := 0.0
	for _, e := range g.Edges {
		totalWeight += e.Weight
		stats.RelationshipTypes[e.RelationshipType]++
	}
	if stats.EdgeCount > 0 {
		stats.AverageWeight = totalWeight / float64(stats.EdgeCount)
	}

	adj := NewAdjacencyIndex(g.Edges)
	visited := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		if visited[node.ID] {
			continue
		}
		stats.ConnectedComponents++
		size := 0
		stack := []string{node.ID}
		visited[node.ID] = true
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			for _, nb := range adj.Neighbors(id) {
				if !visited[nb.ID] {
					visited[nb.ID] = true
					stack = append(stack, nb.ID)
				}
			}
		}
		stats.LargestComponent = max(stats.LargestComponent, size)
	}

	return stats
}
