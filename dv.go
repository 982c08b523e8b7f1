package routesim

// dv.go implements the distance vector routing engine: iterative
// Bellman-Ford over advertisements received from neighbors, with split
// horizon and poison reverse.  Poison reverse suppresses two-node routing
// loops; longer count-to-infinity episodes remain possible and are bounded
// by the cost horizon, exactly as in RIP-style protocols.

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
)

// DefaultCostHorizon is the cost at and above which a route is treated
// as unreachable.  The horizon is also the value advertised for poisoned
// and withdrawn routes, so it doubles as the protocol's INFINITY sentinel.
const DefaultCostHorizon = 16.0

// DVConfig carries the tunable parameters of a DV engine.
type DVConfig struct {
	// Horizon replaces DefaultCostHorizon when positive
	Horizon float64
}

// DVRouter runs the distance vector protocol for one router.
type DVRouter struct {
	addr    RouterID
	horizon float64

	// cost of the direct link to each live neighbor
	linkCost map[RouterID]float64

	// last raw vector received from each neighbor, kept so that link
	// cost changes can re-fold a whole column of the distance table
	lastVec map[RouterID]map[RouterID]float64

	// distTable[dst][via] is the cost to dst when forwarding through
	// via: the link cost to via plus via's advertised cost to dst
	distTable map[RouterID]map[RouterID]float64

	// derived: best cost and chosen next hop per reachable destination
	dist map[RouterID]float64
	fwd  map[RouterID]RouterID
}

// CreateDVRouter is a constructor.  The engine holds no routes until
// Init delivers the directly connected links.
func CreateDVRouter(addr RouterID, cfg DVConfig) *DVRouter {
	horizon := cfg.Horizon
	if horizon <= 0.0 {
		horizon = DefaultCostHorizon
	}
	dv := new(DVRouter)
	dv.addr = addr
	dv.horizon = horizon
	dv.linkCost = make(map[RouterID]float64)
	dv.lastVec = make(map[RouterID]map[RouterID]float64)
	dv.distTable = make(map[RouterID]map[RouterID]float64)
	dv.dist = make(map[RouterID]float64)
	dv.fwd = make(map[RouterID]RouterID)
	return dv
}

// Addr implements Router
func (dv *DVRouter) Addr() RouterID { return dv.addr }

// Init implements Router.  Each directly connected neighbor becomes a
// one-hop route, and the resulting vector is advertised on every link.
func (dv *DVRouter) Init(links []Link) []Outbound {
	for _, lnk := range links {
		dv.linkCost[lnk.Neighbor] = lnk.Cost
		dv.setEntry(lnk.Neighbor, lnk.Neighbor, lnk.Cost)
	}
	dv.recompute()
	return dv.advertiseAll()
}

// LinkUp implements Router.  It covers both a new link and a cost change
// on an existing one: the direct entry is reset and the whole column of
// routes learned through the neighbor is re-folded with the new cost.
func (dv *DVRouter) LinkUp(neighbor RouterID, cost float64) []Outbound {
	dv.linkCost[neighbor] = cost
	dv.setEntry(neighbor, neighbor, cost)
	dv.foldColumn(neighbor)
	dv.recompute()

	// advertise unconditionally: even an unchanged table must reach the
	// new neighbor, which may know nothing about this router yet
	return dv.advertiseAll()
}

// LinkDown implements Router.  Every route through the lost neighbor is
// invalidated before any of them can be used again, then withdrawals
// propagate to the remaining neighbors as horizon-cost entries.
func (dv *DVRouter) LinkDown(neighbor RouterID) []Outbound {
	if _, ok := dv.linkCost[neighbor]; !ok {
		return nil
	}
	delete(dv.linkCost, neighbor)
	delete(dv.lastVec, neighbor)
	for _, row := range dv.distTable {
		delete(row, neighbor)
	}
	dv.recompute()
	return dv.advertiseAll()
}

// HandleControl implements Router.  A received vector replaces the
// stored column for that neighbor; if the fold changes this router's own
// best costs or next hops, the new vector is advertised in turn.
func (dv *DVRouter) HandleControl(from RouterID, pkt ControlPacket) []Outbound {
	if pkt.Type != DVAdvert {
		return nil
	}
	if _, ok := dv.linkCost[from]; !ok {
		// stale packet from a neighbor whose link has since gone down
		return nil
	}
	dv.lastVec[from] = copyCosts(pkt.Vector)
	dv.foldColumn(from)
	if dv.recompute() {
		return dv.advertiseAll()
	}
	return nil
}

// Tick implements Router.  The full poisoned vector is re-sent to every
// neighbor regardless of change, which recovers from lost advertisements.
func (dv *DVRouter) Tick(now float64) []Outbound {
	return dv.advertiseAll()
}

// NextHop implements Router
func (dv *DVRouter) NextHop(dst RouterID) (RouterID, bool) {
	nh, ok := dv.fwd[dst]
	return nh, ok
}

// Table implements Router
func (dv *DVRouter) Table() map[RouterID]RouterID {
	tbl := make(map[RouterID]RouterID, len(dv.fwd))
	for dst, nh := range dv.fwd {
		tbl[dst] = nh
	}
	return tbl
}

// setEntry writes one cell of the distance table, creating the row on
// first use.  Costs at or beyond the horizon are clamped to it.
func (dv *DVRouter) setEntry(dst, via RouterID, cost float64) {
	row, ok := dv.distTable[dst]
	if !ok {
		row = make(map[RouterID]float64)
		dv.distTable[dst] = row
	}
	if cost > dv.horizon {
		cost = dv.horizon
	}
	row[via] = cost
}

// foldColumn recomputes the distance table column for one neighbor from
// that neighbor's last received vector and the current link cost.
func (dv *DVRouter) foldColumn(via RouterID) {
	vec, ok := dv.lastVec[via]
	if !ok {
		return
	}
	lc := dv.linkCost[via]
	for dst, advertised := range vec {
		if dst == dv.addr {
			continue
		}
		if advertised >= dv.horizon {
			// a withdrawal: the neighbor cannot reach dst (or is
			// poisoning a route that points back through us)
			dv.setEntry(dst, via, dv.horizon)
		} else {
			dv.setEntry(dst, via, lc+advertised)
		}
	}
	// the direct route to the neighbor itself never depends on the vector
	dv.setEntry(via, via, lc)
}

// recompute rebuilds the forwarding table as the per-destination minimum
// over the distance table, breaking cost ties in favor of the lowest
// neighbor identifier.  It reports whether any best cost or chosen next
// hop changed, which is the engine's trigger for re-advertising.
func (dv *DVRouter) recompute() bool {
	newDist := make(map[RouterID]float64)
	newFwd := make(map[RouterID]RouterID)

	for _, dst := range sortedIDs(dv.distTable) {
		if dst == dv.addr {
			continue
		}
		row := dv.distTable[dst]
		best := dv.horizon
		var bestVia RouterID
		found := false
		for _, via := range sortedIDs(row) {
			if _, live := dv.linkCost[via]; !live {
				continue
			}
			if c := row[via]; c < best {
				best = c
				bestVia = via
				found = true
			}
		}
		if found {
			newDist[dst] = best
			newFwd[dst] = bestVia
		}
	}

	changed := !maps.Equal(dv.dist, newDist) || !maps.Equal(dv.fwd, newFwd)
	dv.dist = newDist
	dv.fwd = newFwd
	return changed
}

// advertiseAll builds the vector sent to each live neighbor.  Split
// horizon with poison reverse: a destination whose chosen next hop IS the
// receiving neighbor is advertised at the horizon instead of its true
// cost, so the neighbor never routes it back through us.
func (dv *DVRouter) advertiseAll() []Outbound {
	out := make([]Outbound, 0, len(dv.linkCost))
	for _, nbr := range sortedIDs(dv.linkCost) {
		vec := make(map[RouterID]float64)
		vec[dv.addr] = 0.0
		for dst := range dv.distTable {
			if dst == dv.addr {
				continue
			}
			cost, reachable := dv.dist[dst]
			switch {
			case !reachable:
				vec[dst] = dv.horizon
			case dv.fwd[dst] == nbr:
				vec[dst] = dv.horizon
			default:
				vec[dst] = cost
			}
		}
		out = append(out, Outbound{To: nbr, Pkt: ControlPacket{Type: DVAdvert, Vector: vec}})
	}
	return out
}

// String renders the engine state for reports and traces
func (dv *DVRouter) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Router %s\n", dv.addr)
	b.WriteString("Distance Table:\n")
	dsts := sortedIDs(dv.distTable)
	for _, dst := range dsts {
		row := dv.distTable[dst]
		cells := make([]string, 0, len(row))
		for _, via := range sortedIDs(row) {
			cells = append(cells, fmt.Sprintf("via %s: %g", via, row[via]))
		}
		fmt.Fprintf(&b, "  %s: %s\n", dst, strings.Join(cells, ", "))
	}
	b.WriteString("Forwarding Table:\n")
	for _, dst := range sortedIDs(dv.fwd) {
		fmt.Fprintf(&b, "  %s -> %s (cost %g)\n", dst, dv.fwd[dst], dv.dist[dst])
	}
	return b.String()
}
