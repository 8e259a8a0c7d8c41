package graph

// FilterOptions prunes a graph. All supplied criteria are combined with AND.
// Empty type lists mean "keep all types".
//
// Nodes left without edges are removed only when an edge criterion is set,
// that is RelationshipTypes or a MinEdgeWeight above zero. Filters on
// EntityTypes or MinDegree alone keep the surviving nodes even if all of
// their edges went away, and so does MinEdgeWeight of 0.
type FilterOptions struct {
	EntityTypes       []string `json:"entity_types,omitempty" query:"entity_types"`
	RelationshipTypes []string `json:"relationship_types,omitempty" query:"relationship_types"`
	MinDegree         int      `json:"min_degree,omitempty" query:"min_degree"`
	MinEdgeWeight     float64  `json:"min_edge_weight,omitempty" query:"min_edge_weight"`
	// PreserveNodes are exempt from isolated-node pruning.
	PreserveNodes []string `json:"preserve_nodes,omitempty" query:"preserve_nodes"`
}

// IsZero reports whether o filters nothing.
func (o FilterOptions) IsZero() bool {
	return len(o.EntityTypes) == 0 &&
		len(o.RelationshipTypes) == 0 &&
		o.MinDegree == 0 &&
		o.MinEdgeWeight == 0
}

// Validate checks the bounds of o.
func (o FilterOptions) Validate() error {
	if o.MinDegree < 0 {
		return invalidParameter("min_degree", o.MinDegree)
	}
	if o.MinEdgeWeight < 0 || o.MinEdgeWeight > 1 {
		return invalidParameter("min_edge_weight", o.MinEdgeWeight)
	}
	return nil
}

func (o FilterOptions) hasEdgeCriteria() bool {
	return len(o.RelationshipTypes) > 0 || o.MinEdgeWeight > 0
}

// FilterGraph returns a pruned copy of g in a single pass:
//
//  1. edges with an excluded relationship type or a weight below MinEdgeWeight are dropped
//  2. nodes with an excluded entity type are dropped, with their edges
//  3. nodes whose degree, as stored in g, is below MinDegree are dropped, with their edges
//  4. if an edge criterion was given, nodes left without edges are dropped
//     unless listed in PreserveNodes
//
// Degrees of the result are recomputed from its edges. g is not modified.
func FilterGraph(g *Graph, opts FilterOptions) (*Graph, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	relTypes := toSet(opts.RelationshipTypes)
	entityTypes := toSet(opts.EntityTypes)

	keepNode := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if entityTypes != nil && !entityTypes[n.EntityType] {
			continue
		}
		if n.Degree < opts.MinDegree {
			continue
		}
		keepNode[n.ID] = true
	}

	edges := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if relTypes != nil && !relTypes[e.RelationshipType] {
			continue
		}
		if e.Weight < opts.MinEdgeWeight {
			continue
		}
		if !keepNode[e.Source] || !keepNode[e.Target] {
			continue
		}
		edges = append(edges, e)
	}

	var connected map[string]int
	if opts.hasEdgeCriteria() {
		connected = degreeCounts(edges)
	}
	preserve := toSet(opts.PreserveNodes)

	nodes := make([]Node, 0, len(keepNode))
	for _, n := range g.Nodes {
		if !keepNode[n.ID] {
			continue
		}
		if connected != nil && connected[n.ID] == 0 && !preserve[n.ID] {
			continue
		}
		nodes = append(nodes, n)
	}

	metadata := copyMetadata(g.Metadata)
	metadata["filter"] = opts
	return NewGraph(g.ProjectID, nodes, edges, metadata), nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
