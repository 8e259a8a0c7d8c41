package graph

import (
	"sort"
)

// Community detection defaults.
const (
	DefaultResolution        = 1.0
	DefaultCommunityPasses   = 50
	DefaultCommunityMaxLevel = 10
	modularityTolerance      = 1e-12
)

// CommunityOptions configures DetectCommunities.
type CommunityOptions struct {
	// MinSize drops smaller communities from the result. They still count
	// towards the modularity.
	MinSize    int     `json:"min_size,omitempty" query:"min_size"`
	Resolution float64 `json:"resolution,omitempty" query:"resolution"`
	// MaxIterations caps the local-move passes per level.
	MaxIterations int `json:"max_iterations,omitempty" query:"max_iterations"`
}

// Validate checks the bounds of o.
func (o CommunityOptions) Validate() error {
	if o.MinSize < 0 {
		return invalidParameter("min_size", o.MinSize)
	}
	if o.Resolution < 0 {
		return invalidParameter("resolution", o.Resolution)
	}
	return nil
}

// CommunityResult is a partition of the graph nodes.
type CommunityResult struct {
	Communities [][]string `json:"communities"`
	Modularity  float64    `json:"modularity"`
	Levels      int        `json:"levels"`
}

// wgraph is the integer-indexed weighted graph the Louvain levels work on.
type wgraph struct {
	adj    [][]wedge
	self   []float64
	degree []float64
	total  float64 // sum of degrees, 2m
}

type wedge struct {
	to     int
	weight float64
}

func (w *wgraph) size() int { return len(w.adj) }

func newWGraph(n int) *wgraph {
	return &wgraph{
		adj:    make([][]wedge, n),
		self:   make([]float64, n),
		degree: make([]float64, n),
	}
}

func (w *wgraph) finish() {
	w.total = 0
	for i := range w.adj {
		d := 2 * w.self[i]
		for _, e := range w.adj[i] {
			d += e.weight
		}
		w.degree[i] = d
		w.total += d
	}
}

// DetectCommunities partitions g with the Louvain method: greedy local
// moves that maximize weighted modularity, then aggregation of communities
// into super nodes, repeated until nothing moves. Communities that end up
// disconnected are split afterwards. Nodes are visited in id order, so the
// result is deterministic.
func DetectCommunities(g *Graph, opts CommunityOptions) (*CommunityResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Resolution == 0 {
		opts.Resolution = DefaultResolution
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultCommunityPasses
	}

	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	sort.Strings(ids)
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	base := newWGraph(len(ids))
	for _, e := range g.Edges {
		s, okS := index[e.Source]
		t, okT := index[e.Target]
		if !okS || !okT {
			continue
		}
		if s == t {
			base.self[s] += e.Weight
			continue
		}
		base.adj[s] = append(base.adj[s], wedge{to: t, weight: e.Weight})
		base.adj[t] = append(base.adj[t], wedge{to: s, weight: e.Weight})
	}
	base.finish()

	membership := make([]int, len(ids))
	for i := range membership {
		membership[i] = i
	}

	levels := 0
	if base.total > 0 {
		current := base
		for levels < DefaultCommunityMaxLevel {
			comm, moved := localMoves(current, opts.Resolution, opts.MaxIterations)
			if !moved {
				break
			}
			levels++
			comm, k := renumber(comm)
			for i := range membership {
				membership[i] = comm[membership[i]]
			}
			current = aggregate(current, comm, k)
		}
	}

	membership = splitDisconnected(base, membership)
	q := modularity(base, membership, opts.Resolution)

	groups := make(map[int][]string)
	for i, c := range membership {
		groups[c] = append(groups[c], ids[i])
	}
	communities := make([][]string, 0, len(groups))
	for _, members := range groups {
		if len(members) < max(opts.MinSize, 1) {
			continue
		}
		sort.Strings(members)
		communities = append(communities, members)
	}
	sort.Slice(communities, func(i, j int) bool {
		if len(communities[i]) != len(communities[j]) {
			return len(communities[i]) > len(communities[j])
		}
		return communities[i][0] < communities[j][0]
	})

	return &CommunityResult{
		Communities: communities,
		Modularity:  q,
		Levels:      levels,
	}, nil
}

// localMoves moves single nodes into the neighboring community with the
// largest modularity gain until a full pass changes nothing.
func localMoves(w *wgraph, resolution float64, maxPasses int) ([]int, bool) {
	n := w.size()
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := range comm {
		comm[i] = i
		tot[i] = w.degree[i]
	}

	links := make([]float64, n)
	seen := make([]bool, n)
	touched := make([]int, 0, 16)
	movedAny := false

	for pass := 0; pass < maxPasses; pass++ {
		moved := false
		for i := 0; i < n; i++ {
			ci := comm[i]
			touched = touched[:0]
			for _, e := range w.adj[i] {
				c := comm[e.to]
				if !seen[c] {
					seen[c] = true
					touched = append(touched, c)
				}
				links[c] += e.weight
			}

			tot[ci] -= w.degree[i]
			gain := func(c int) float64 {
				return links[c] - resolution*tot[c]*w.degree[i]/w.total
			}

			best, bestGain := ci, gain(ci)
			for _, c := range touched {
				if c == ci {
					continue
				}
				gc := gain(c)
				if gc > bestGain+modularityTolerance {
					best, bestGain = c, gc
				}
			}
			tot[best] += w.degree[i]
			if best != ci {
				comm[i] = best
				moved = true
				movedAny = true
			}

			for _, c := range touched {
				links[c] = 0
				seen[c] = false
			}
		}
		if !moved {
			break
		}
	}
	return comm, movedAny
}

// renumber maps community labels to 0..k-1 in order of first appearance.
func renumber(comm []int) ([]int, int) {
	mapping := make(map[int]int)
	out := make([]int, len(comm))
	for i, c := range comm {
		id, ok := mapping[c]
		if !ok {
			id = len(mapping)
			mapping[c] = id
		}
		out[i] = id
	}
	return out, len(mapping)
}

// aggregate collapses every community of w into one node. Internal edge
// weight becomes a self loop.
func aggregate(w *wgraph, comm []int, k int) *wgraph {
	out := newWGraph(k)
	between := make([]map[int]float64, k)
	for i := 0; i < w.size(); i++ {
		ci := comm[i]
		out.self[ci] += w.self[i]
		for _, e := range w.adj[i] {
			cj := comm[e.to]
			if ci == cj {
				// seen from both endpoints
				out.self[ci] += e.weight / 2
				continue
			}
			if between[ci] == nil {
				between[ci] = make(map[int]float64)
			}
			between[ci][cj] += e.weight
		}
	}
	for ci, targets := range between {
		keys := make([]int, 0, len(targets))
		for cj := range targets {
			keys = append(keys, cj)
		}
		sort.Ints(keys)
		for _, cj := range keys {
			out.adj[ci] = append(out.adj[ci], wedge{to: cj, weight: targets[cj]})
		}
	}
	out.finish()
	return out
}

// splitDisconnected gives every connected part of a community its own
// label. Splitting never lowers modularity.
func splitDisconnected(w *wgraph, membership []int) []int {
	n := w.size()
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	next := 0
	for start := 0; start < n; start++ {
		if out[start] >= 0 {
			continue
		}
		label := next
		next++
		out[start] = label
		stack := []int{start}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, e := range w.adj[v] {
				if out[e.to] < 0 && membership[e.to] == membership[start] {
					out[e.to] = label
					stack = append(stack, e.to)
				}
			}
		}
	}
	return out
}

// modularity computes Q = sum_c [ L_c/m - resolution*(K_c/2m)^2 ].
func modularity(w *wgraph, membership []int, resolution float64) float64 {
	if w.total == 0 {
		return 0
	}
	m := w.total / 2
	internal := make(map[int]float64)
	degree := make(map[int]float64)
	for i := 0; i < w.size(); i++ {
		c := membership[i]
		degree[c] += w.degree[i]
		internal[c] += w.self[i]
		for _, e := range w.adj[i] {
			if membership[e.to] == c {
				internal[c] += e.weight / 2
			}
		}
	}

	q := 0.0
	for c, k := range degree {
		q += internal[c]/m - resolution*(k/w.total)*(k/w.total)
	}
	return q
}
