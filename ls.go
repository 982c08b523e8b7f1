package routesim

// ls.go implements the link state routing engine: a sequence-numbered
// link state database fed by controlled flooding, with shortest paths
// recomputed by Dijkstra's algorithm whenever the database changes.

import (
	"container/heap"
	"fmt"
	"strings"
)

// LSConfig carries the tunable parameters of an LS engine.
type LSConfig struct {
	// MaxAge is the staleness threshold, in simulation seconds, beyond
	// which a database entry that has not been refreshed is dropped.
	// Zero disables expiry.
	MaxAge float64
}

// lsdbEntry is one router's record in the link state database: the
// freshest advertisement seen from that origin and when it was accepted.
type lsdbEntry struct {
	Seq   int
	Links map[RouterID]float64
	Stamp float64
}

// LSRouter runs the link state protocol for one router.
type LSRouter struct {
	addr   RouterID
	maxAge float64

	// clock is the engine's view of simulation time, advanced by Tick.
	// Database stamps are taken from it, so staleness is measured at
	// heartbeat granularity.
	clock float64

	// cost of the direct link to each live neighbor
	nbrCost map[RouterID]float64

	// the database: freshest accepted advertisement per origin
	db map[RouterID]*lsdbEntry

	// highest sequence number ever seen per origin.  Kept separately
	// from the database so that an origin whose entry was dropped (link
	// down, expiry) still has its stale re-floods rejected.
	seqSeen map[RouterID]int

	// this router's own advertisement sequence number
	ownSeq int

	// derived: next hop and total cost per reachable destination
	fwd  map[RouterID]RouterID
	dist map[RouterID]float64
}

// CreateLSRouter is a constructor
func CreateLSRouter(addr RouterID, cfg LSConfig) *LSRouter {
	ls := new(LSRouter)
	ls.addr = addr
	ls.maxAge = cfg.MaxAge
	ls.nbrCost = make(map[RouterID]float64)
	ls.db = make(map[RouterID]*lsdbEntry)
	ls.seqSeen = make(map[RouterID]int)
	ls.fwd = make(map[RouterID]RouterID)
	ls.dist = make(map[RouterID]float64)
	return ls
}

// Addr implements Router
func (ls *LSRouter) Addr() RouterID { return ls.addr }

// Init implements Router.  The first self-originated LSA goes out on
// every link so neighbors learn of this router's existence.
func (ls *LSRouter) Init(links []Link) []Outbound {
	for _, lnk := range links {
		ls.nbrCost[lnk.Neighbor] = lnk.Cost
	}
	return ls.originate()
}

// LinkUp implements Router
func (ls *LSRouter) LinkUp(neighbor RouterID, cost float64) []Outbound {
	ls.nbrCost[neighbor] = cost
	return ls.originate()
}

// LinkDown implements Router.  Besides re-originating our own record,
// the database entry for the lost adjacency is dropped regardless of its
// sequence number: with the link gone the neighbor's old claim of an
// edge to us must not keep feeding the shortest path computation.  The
// sequence floor survives, so its stale LSAs stay rejected.
func (ls *LSRouter) LinkDown(neighbor RouterID) []Outbound {
	if _, ok := ls.nbrCost[neighbor]; !ok {
		return nil
	}
	delete(ls.nbrCost, neighbor)
	delete(ls.db, neighbor)
	return ls.originate()
}

// HandleControl implements Router.  Controlled flooding: an LSA that is
// strictly newer than the stored entry for its origin is stored,
// triggers recomputation, and is re-flooded unmodified on every link
// except the one it arrived on.  Anything else is discarded silently,
// with no re-flood, which is what bounds redundant flood traffic.
func (ls *LSRouter) HandleControl(from RouterID, pkt ControlPacket) []Outbound {
	if pkt.Type != LSAdvert {
		return nil
	}
	if pkt.Origin == ls.addr {
		// our own advertisement echoed back around a cycle
		return nil
	}
	if floor, ok := ls.seqSeen[pkt.Origin]; ok && pkt.Seq <= floor {
		return nil
	}
	ls.seqSeen[pkt.Origin] = pkt.Seq
	ls.db[pkt.Origin] = &lsdbEntry{Seq: pkt.Seq, Links: copyCosts(pkt.Links), Stamp: ls.clock}
	ls.recompute()

	out := make([]Outbound, 0, len(ls.nbrCost))
	for _, nbr := range sortedIDs(ls.nbrCost) {
		if nbr == from {
			continue
		}
		out = append(out, Outbound{To: nbr, Pkt: pkt})
	}
	return out
}

// Tick implements Router.  It ages out origins that have not refreshed
// within MaxAge, then re-originates this router's own LSA under a fresh
// sequence number.  Refreshing under a new number (rather than resending
// the old one) is what lets peers' stamps advance, so a silent router
// really is distinguishable from a lossy link.
func (ls *LSRouter) Tick(now float64) []Outbound {
	ls.clock = now
	if ls.maxAge > 0.0 {
		aged := false
		for _, origin := range sortedIDs(ls.db) {
			if origin == ls.addr {
				continue
			}
			if now-ls.db[origin].Stamp > ls.maxAge {
				delete(ls.db, origin)
				aged = true
			}
		}
		if aged {
			ls.recompute()
		}
	}
	return ls.originate()
}

// NextHop implements Router
func (ls *LSRouter) NextHop(dst RouterID) (RouterID, bool) {
	nh, ok := ls.fwd[dst]
	return nh, ok
}

// Table implements Router
func (ls *LSRouter) Table() map[RouterID]RouterID {
	tbl := make(map[RouterID]RouterID, len(ls.fwd))
	for dst, nh := range ls.fwd {
		tbl[dst] = nh
	}
	return tbl
}

// originate rebuilds this router's own database record under the next
// sequence number, recomputes, and floods the new LSA to all neighbors.
func (ls *LSRouter) originate() []Outbound {
	ls.ownSeq++
	ls.seqSeen[ls.addr] = ls.ownSeq
	ls.db[ls.addr] = &lsdbEntry{Seq: ls.ownSeq, Links: copyCosts(ls.nbrCost), Stamp: ls.clock}
	ls.recompute()

	pkt := ControlPacket{
		Type:   LSAdvert,
		Origin: ls.addr,
		Seq:    ls.ownSeq,
		Links:  copyCosts(ls.nbrCost),
		Stamp:  ls.clock,
	}
	out := make([]Outbound, 0, len(ls.nbrCost))
	for _, nbr := range sortedIDs(ls.nbrCost) {
		out = append(out, Outbound{To: nbr, Pkt: pkt})
	}
	return out
}

// spItem is an entry in the Dijkstra priority queue: a tentative
// distance to a node, and the first hop that distance was reached
// through.  Ordering is (distance, node id), which fixes the settle
// order and hence the tie break.
type spItem struct {
	dist  float64
	node  RouterID
	first RouterID
}

type spQueue []spItem

func (q spQueue) Len() int { return len(q) }
func (q spQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}
func (q spQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *spQueue) Push(x any) {
	*q = append(*q, x.(spItem))
}

func (q *spQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[0 : n-1]
	return x
}

// recompute reruns Dijkstra from this router over the graph implied by
// the database and rebuilds the forwarding table from the first hops of
// the shortest paths.  Edges are relaxed in increasing neighbor id
// order, and an equal cost path replaces the current one only when its
// first hop identifier is lower, so route selection is deterministic.
func (ls *LSRouter) recompute() {
	dist := map[RouterID]float64{ls.addr: 0.0}
	first := map[RouterID]RouterID{}
	settled := map[RouterID]bool{}

	pq := &spQueue{}
	heap.Init(pq)
	heap.Push(pq, spItem{dist: 0.0, node: ls.addr})

	for pq.Len() > 0 {
		it := heap.Pop(pq).(spItem)
		if settled[it.node] {
			continue
		}
		settled[it.node] = true

		var edges map[RouterID]float64
		if it.node == ls.addr {
			// our own adjacencies come from live link state, not from
			// the (possibly not yet re-originated) database record
			edges = ls.nbrCost
		} else {
			entry, known := ls.db[it.node]
			if !known {
				// a node we only know as the far end of someone
				// else's edge: reachable, but it cannot be expanded
				continue
			}
			edges = entry.Links
		}

		for _, nbr := range sortedIDs(edges) {
			if settled[nbr] {
				continue
			}
			nd := it.dist + edges[nbr]
			fh := it.first
			if it.node == ls.addr {
				fh = nbr
			}
			cur, seen := dist[nbr]
			if !seen || nd < cur || (nd == cur && fh < first[nbr]) {
				dist[nbr] = nd
				first[nbr] = fh
				heap.Push(pq, spItem{dist: nd, node: nbr, first: fh})
			}
		}
	}

	ls.fwd = make(map[RouterID]RouterID)
	ls.dist = make(map[RouterID]float64)
	for dst, fh := range first {
		if dst == ls.addr {
			continue
		}
		if _, live := ls.nbrCost[fh]; !live {
			continue
		}
		ls.fwd[dst] = fh
		ls.dist[dst] = dist[dst]
	}
}

// String renders the engine state for reports and traces
func (ls *LSRouter) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Router %s\n", ls.addr)
	b.WriteString("Link State Database:\n")
	for _, origin := range sortedIDs(ls.db) {
		entry := ls.db[origin]
		cells := make([]string, 0, len(entry.Links))
		for _, nbr := range sortedIDs(entry.Links) {
			cells = append(cells, fmt.Sprintf("%s:%g", nbr, entry.Links[nbr]))
		}
		fmt.Fprintf(&b, "  %s (seq %d): %s\n", origin, entry.Seq, strings.Join(cells, " "))
	}
	b.WriteString("Forwarding Table:\n")
	for _, dst := range sortedIDs(ls.fwd) {
		fmt.Fprintf(&b, "  %s -> %s (cost %g)\n", dst, ls.fwd[dst], ls.dist[dst])
	}
	return b.String()
}
