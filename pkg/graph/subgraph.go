package graph

// SubgraphOptions bounds a subgraph extraction. MaxNodes 0 means unlimited.
type SubgraphOptions struct {
	Depth     int     `json:"depth" query:"depth"`
	MaxNodes  int     `json:"max_nodes,omitempty" query:"max_nodes"`
	MinWeight float64 `json:"min_weight,omitempty" query:"min_weight"`
}

// Validate checks the bounds of o.
func (o SubgraphOptions) Validate() error {
	if o.Depth < 0 {
		return invalidParameter("depth", o.Depth)
	}
	if o.MaxNodes < 0 {
		return invalidParameter("max_nodes", o.MaxNodes)
	}
	if o.MinWeight < 0 || o.MinWeight > 1 {
		return invalidParameter("min_weight", o.MinWeight)
	}
	return nil
}

// ExtractSubgraph returns the neighborhood of entityID reached by a breadth
// first traversal of at most opts.Depth levels over edges with weight of at
// least opts.MinWeight. Once MaxNodes nodes are selected no further nodes
// are added; nodes of lower depth and earlier discovery win. The result
// holds every edge of g between selected nodes.
func ExtractSubgraph(g *Graph, entityID string, opts SubgraphOptions) (*Graph, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !g.HasNode(entityID) {
		return nil, entityNotFound(entityID)
	}

	adj := NewAdjacencyIndex(g.Edges)
	selected := map[string]int{entityID: 0}
	order := []string{entityID}
	full := func() bool { return opts.MaxNodes > 0 && len(order) >= opts.MaxNodes }

	frontier := []string{entityID}
	for level := 1; level <= opts.Depth && len(frontier) > 0 && !full(); level++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range adj.Neighbors(id) {
				if full() {
					break
				}
				if nb.Weight < opts.MinWeight {
					continue
				}
				if _, seen := selected[nb.ID]; seen {
					continue
				}
				selected[nb.ID] = level
				order = append(order, nb.ID)
				next = append(next, nb.ID)
			}
		}
		frontier = next
	}

	nodes := make([]Node, 0, len(order))
	for _, n := range g.Nodes {
		if _, ok := selected[n.ID]; ok {
			nodes = append(nodes, n)
		}
	}
	edges := make([]Edge, 0)
	for _, e := range g.Edges {
		_, okS := selected[e.Source]
		_, okT := selected[e.Target]
		if okS && okT {
			edges = append(edges, e)
		}
	}

	metadata := copyMetadata(g.Metadata)
	metadata["subgraph"] = map[string]any{
		"entity_id":  entityID,
		"depth":      opts.Depth,
		"max_nodes":  opts.MaxNodes,
		"min_weight": opts.MinWeight,
	}
	return NewGraph(g.ProjectID, nodes, edges, metadata), nil
}
