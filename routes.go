package routesim

// routes.go computes reference shortest paths over a topology, used by
// the reporter and the tests to judge whether the converged forwarding
// tables are actually optimal.  The approach is to convert our topology
// into the data structures of a graph package with built-in path
// discovery, then read distances out of cached Dijkstra trees.

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Edge is a link seen from outside any particular router: both
// endpoints and the cost between them.
type Edge struct {
	A, B RouterID
	Cost float64
}

// PathOracle answers shortest path distance queries over a fixed
// weighted topology.  Per-source Dijkstra trees are computed lazily and
// cached, since a conformance check asks about every source.
type PathOracle struct {
	ids    []RouterID
	nodeOf map[RouterID]int64
	g      *simple.WeightedUndirectedGraph
	cached map[RouterID]path.Shortest
}

// BuildPathOracle assembles the graph representation of a topology from
// the router set and the currently-up links.
func BuildPathOracle(routers []RouterID, edges []Edge) *PathOracle {
	po := new(PathOracle)
	po.ids = append([]RouterID{}, routers...)
	slices.Sort(po.ids)

	po.nodeOf = make(map[RouterID]int64, len(po.ids))
	for idx, id := range po.ids {
		po.nodeOf[id] = int64(idx)
	}

	po.g = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for _, id := range po.ids {
		po.g.AddNode(simple.Node(po.nodeOf[id]))
	}
	for _, e := range edges {
		if e.A == e.B {
			continue
		}
		we := simple.WeightedEdge{
			F: simple.Node(po.nodeOf[e.A]),
			T: simple.Node(po.nodeOf[e.B]),
			W: e.Cost,
		}
		po.g.SetWeightedEdge(we)
	}

	po.cached = make(map[RouterID]path.Shortest)
	return po
}

// tree returns the Dijkstra shortest path tree rooted at from,
// computing and caching it on first use.
func (po *PathOracle) tree(from RouterID) path.Shortest {
	spTree, present := po.cached[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(simple.Node(po.nodeOf[from]), po.g)
	po.cached[from] = spTree
	return spTree
}

// Dist returns the shortest path cost between two routers, and false
// when no path exists.
func (po *PathOracle) Dist(from, to RouterID) (float64, bool) {
	if _, ok := po.nodeOf[from]; !ok {
		return 0.0, false
	}
	if _, ok := po.nodeOf[to]; !ok {
		return 0.0, false
	}
	if from == to {
		return 0.0, true
	}
	w := po.tree(from).WeightTo(po.nodeOf[to])
	if math.IsInf(w, 1) {
		return 0.0, false
	}
	return w, true
}

// OnShortestPath reports whether forwarding from src toward dst through
// nextHop lies on some shortest path.  This is the conformance test for
// a forwarding table entry: the chosen hop need not match one particular
// tie break, it only has to be cost optimal, i.e.
// dist(src,dst) = cost(src,nextHop) + dist(nextHop,dst).
func (po *PathOracle) OnShortestPath(src, nextHop, dst RouterID, linkCost float64) bool {
	total, ok := po.Dist(src, dst)
	if !ok {
		return false
	}
	rest, ok := po.Dist(nextHop, dst)
	if !ok {
		return false
	}
	return math.Abs(total-(linkCost+rest)) < 1e-9
}
