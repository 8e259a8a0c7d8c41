package graph

import (
	"container/heap"
	"math"
	"sort"
)

// Supported centrality metrics.
const (
	MetricDegree      = "degree"
	MetricPageRank    = "pagerank"
	MetricBetweenness = "betweenness"
	MetricCloseness   = "closeness"
	MetricEigenvector = "eigenvector"
)

// PageRank and distance defaults.
const (
	// DefaultDampingFactor is the probability of following an edge instead of jumping.
	DefaultDampingFactor = 0.85
	// DefaultMaxIterations caps the power iterations of pagerank and eigenvector.
	DefaultMaxIterations = 100
	// DefaultConvergence stops power iteration once the L1 change drops below it.
	DefaultConvergence = 1e-6
	// DefaultDistanceEpsilon is the smallest cost an edge can have.
	DefaultDistanceEpsilon = 1e-3
)

// CentralityOptions configures CalculateCentrality. Zero values fall back to
// the defaults above; Limit 0 returns every node.
type CentralityOptions struct {
	Limit int `json:"limit,omitempty" query:"limit"`
	// Normalized divides degree scores by n-1.
	Normalized      bool    `json:"normalized,omitempty" query:"normalized"`
	DampingFactor   float64 `json:"damping_factor,omitempty" query:"damping_factor"`
	MaxIterations   int     `json:"max_iterations,omitempty" query:"max_iterations"`
	Convergence     float64 `json:"convergence,omitempty" query:"convergence"`
	DistanceEpsilon float64 `json:"distance_epsilon,omitempty" query:"distance_epsilon"`
}

func (o *CentralityOptions) applyDefaults() {
	if o.DampingFactor <= 0 || o.DampingFactor >= 1 {
		o.DampingFactor = DefaultDampingFactor
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Convergence <= 0 {
		o.Convergence = DefaultConvergence
	}
	if o.DistanceEpsilon <= 0 {
		o.DistanceEpsilon = DefaultDistanceEpsilon
	}
}

// Validate checks the bounds of o.
func (o CentralityOptions) Validate() error {
	if o.Limit < 0 {
		return invalidParameter("limit", o.Limit)
	}
	return nil
}

// ValidateMetric returns ErrUnknownMetric unless metric is supported.
func ValidateMetric(metric string) error {
	switch metric {
	case MetricDegree, MetricPageRank, MetricBetweenness, MetricCloseness, MetricEigenvector:
		return nil
	}
	return invalidMetric(metric)
}

// CentralityScore is the score of one node.
type CentralityScore struct {
	NodeID string  `json:"node_id"`
	Score  float64 `json:"score"`
}

// CalculateCentrality scores every node of g with metric and returns the
// scores sorted by score descending, ties by node id ascending.
//
// Betweenness and closeness treat an edge as a distance of 1 - weight,
// floored at DistanceEpsilon, so strong associations are short. Betweenness
// is the normalized fraction of shortest paths through a node.
func CalculateCentrality(g *Graph, metric string, opts CentralityOptions) ([]CentralityScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	var scores map[string]float64
	switch metric {
	case MetricDegree:
		scores = degreeCentrality(g, opts.Normalized)
	case MetricPageRank:
		scores = pageRank(g, opts)
	case MetricBetweenness:
		scores = betweenness(g, opts.DistanceEpsilon)
	case MetricCloseness:
		scores = closeness(g, opts.DistanceEpsilon)
	case MetricEigenvector:
		scores = eigenvector(g, opts)
	default:
		return nil, invalidMetric(metric)
	}

	return rankScores(scores, opts.Limit), nil
}

func rankScores(scores map[string]float64, limit int) []CentralityScore {
	out := make([]CentralityScore, 0, len(scores))
	for id, s := range scores {
		out = append(out, CentralityScore{NodeID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].NodeID < out[j].NodeID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func degreeCentrality(g *Graph, normalized bool) map[string]float64 {
	scores := make(map[string]float64, len(g.Nodes))
	n := len(g.Nodes)
	for _, node := range g.Nodes {
		s := float64(node.Degree)
		if normalized && n > 1 {
			s /= float64(n - 1)
		}
		scores[node.ID] = s
	}
	return scores
}

// pageRank runs weighted power iteration. A node passes its score to its
// neighbors in proportion to edge weight; the score of nodes without
// weighted edges is spread over all nodes.
func pageRank(g *Graph, opts CentralityOptions) map[string]float64 {
	n := len(g.Nodes)
	scores := make(map[string]float64, n)
	if n == 0 {
		return scores
	}

	adj := NewAdjacencyIndex(g.Edges)
	N := float64(n)
	d := opts.DampingFactor

	ids := make([]string, n)
	strength := make(map[string]float64, n)
	for i, node := range g.Nodes {
		ids[i] = node.ID
		scores[node.ID] = 1 / N
		strength[node.ID] = adj.WeightedDegree(node.ID)
	}

	next := make(map[string]float64, n)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		dangling := 0.0
		for _, id := range ids {
			if strength[id] == 0 {
				dangling += scores[id]
			}
		}
		base := (1-d)/N + d*dangling/N

		for _, id := range ids {
			s := base
			for _, nb := range adj.Neighbors(id) {
				if w := strength[nb.ID]; w > 0 {
					s += d * scores[nb.ID] * nb.Weight / w
				}
			}
			next[id] = s
		}

		diff := 0.0
		for _, id := range ids {
			diff += math.Abs(next[id] - scores[id])
		}
		scores, next = next, scores
		if diff < opts.Convergence {
			break
		}
	}
	return scores
}

// eigenvector runs power iteration on A + I, which converges for the
// bipartite graphs where plain A oscillates.
func eigenvector(g *Graph, opts CentralityOptions) map[string]float64 {
	n := len(g.Nodes)
	scores := make(map[string]float64, n)
	if n == 0 {
		return scores
	}
	adj := NewAdjacencyIndex(g.Edges)
	for _, node := range g.Nodes {
		scores[node.ID] = 1 / float64(n)
	}

	next := make(map[string]float64, n)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		norm := 0.0
		for _, node := range g.Nodes {
			s := scores[node.ID]
			for _, nb := range adj.Neighbors(node.ID) {
				s += scores[nb.ID] * nb.Weight
			}
			next[node.ID] = s
			norm += s * s
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			break
		}
		diff := 0.0
		for _, node := range g.Nodes {
			next[node.ID] /= norm
			diff += math.Abs(next[node.ID] - scores[node.ID])
		}
		scores, next = next, scores
		if diff < float64(n)*opts.Convergence {
			break
		}
	}
	return scores
}

func edgeCost(weight, epsilon float64) float64 {
	return math.Max(1-weight, epsilon)
}

// costTolerance absorbs floating point noise when comparing path costs.
const costTolerance = 1e-12

type queueItem struct {
	id   string
	dist float64
}

type distQueue []queueItem

func (q distQueue) Len() int { return len(q) }
func (q distQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id
}
func (q distQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *distQueue) Push(x any)   { *q = append(*q, x.(queueItem)) }
func (q *distQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

type shortestPaths struct {
	order []string // settled nodes, non-decreasing distance
	dist  map[string]float64
	sigma map[string]float64
	preds map[string][]string
}

// dijkstra computes single-source shortest path counts, the first phase of
// Brandes' algorithm.
func dijkstra(adj *AdjacencyIndex, source string, epsilon float64) shortestPaths {
	sp := shortestPaths{
		dist:  map[string]float64{source: 0},
		sigma: map[string]float64{source: 1},
		preds: map[string][]string{},
	}
	settled := map[string]bool{}
	q := &distQueue{{id: source, dist: 0}}

	for q.Len() > 0 {
		item := heap.Pop(q).(queueItem)
		if settled[item.id] || item.dist > sp.dist[item.id]+costTolerance {
			continue
		}
		settled[item.id] = true
		sp.order = append(sp.order, item.id)

		for _, nb := range adj.Neighbors(item.id) {
			if settled[nb.ID] {
				continue
			}
			alt := sp.dist[item.id] + edgeCost(nb.Weight, epsilon)
			cur, seen := sp.dist[nb.ID]
			switch {
			case !seen || alt < cur-costTolerance:
				sp.dist[nb.ID] = alt
				sp.sigma[nb.ID] = sp.sigma[item.id]
				sp.preds[nb.ID] = []string{item.id}
				heap.Push(q, queueItem{id: nb.ID, dist: alt})
			case math.Abs(alt-cur) <= costTolerance:
				sp.sigma[nb.ID] += sp.sigma[item.id]
				sp.preds[nb.ID] = append(sp.preds[nb.ID], item.id)
			}
		}
	}
	return sp
}

// betweenness implements Brandes' algorithm on the weighted graph. Scores
// are normalized by (n-1)(n-2)/2, the number of pairs excluding the node.
func betweenness(g *Graph, epsilon float64) map[string]float64 {
	scores := make(map[string]float64, len(g.Nodes))
	for _, node := range g.Nodes {
		scores[node.ID] = 0
	}
	n := len(g.Nodes)
	if n < 3 {
		return scores
	}

	adj := NewAdjacencyIndex(g.Edges)
	for _, node := range g.Nodes {
		sp := dijkstra(adj, node.ID, epsilon)
		delta := make(map[string]float64, len(sp.order))
		for i := len(sp.order) - 1; i >= 0; i-- {
			w := sp.order[i]
			for _, v := range sp.preds[w] {
				delta[v] += sp.sigma[v] / sp.sigma[w] * (1 + delta[w])
			}
			if w != node.ID {
				scores[w] += delta[w]
			}
		}
	}

	// every pair was counted from both ends
	scale := 1 / float64((n-1)*(n-2))
	for id := range scores {
		scores[id] *= scale
	}
	return scores
}

// closeness is the inverse mean distance to reachable nodes, scaled by the
// reachable share of the graph so that small components do not dominate.
func closeness(g *Graph, epsilon float64) map[string]float64 {
	scores := make(map[string]float64, len(g.Nodes))
	n := len(g.Nodes)
	adj := NewAdjacencyIndex(g.Edges)
	for _, node := range g.Nodes {
		sp := dijkstra(adj, node.ID, epsilon)
		total := 0.0
		for _, d := range sp.dist {
			total += d
		}
		reached := float64(len(sp.dist) - 1)
		if total == 0 || n < 2 {
			scores[node.ID] = 0
			continue
		}
		scores[node.ID] = (reached / total) * (reached / float64(n-1))
	}
	return scores
}
