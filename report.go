package routesim

// report.go assembles the per-run results: what happened to each
// injected data packet, the final forwarding table of every router, and
// an optional conformance check of those tables against reference
// shortest paths over the final topology.

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// PacketOutcome classifies what happened to a data packet
type PacketOutcome string

const (
	Delivered        PacketOutcome = "delivered"
	Unreachable      PacketOutcome = "unreachable"
	HopLimitExceeded PacketOutcome = "hop-limit-exceeded"
	LinkLost         PacketOutcome = "link-lost"
)

// PacketRecord is the fate of one injected data packet
type PacketRecord struct {
	Src, Dst   string
	Payload    string
	SendTime   float64
	FinishTime float64
	Hops       []string
	Outcome    PacketOutcome
}

// Report collects the results of one simulation run
type Report struct {
	Topology string
	Protocol string
	Packets  []PacketRecord

	// Tables holds the final forwarding table of each router,
	// destination -> next hop
	Tables map[string]map[string]string

	// Mismatches lists forwarding entries that disagree with the
	// reference shortest paths; filled in by CheckConformance
	Mismatches []string
}

func createReport(topology, protocol string) *Report {
	rpt := new(Report)
	rpt.Topology = topology
	rpt.Protocol = protocol
	rpt.Packets = make([]PacketRecord, 0)
	rpt.Tables = make(map[string]map[string]string)
	return rpt
}

// recordData files the outcome of a data packet
func (rpt *Report) recordData(dt *dataTransit, outcome PacketOutcome, at float64) {
	hops := make([]string, 0, len(dt.hops))
	for _, h := range dt.hops {
		hops = append(hops, string(h))
	}
	rpt.Packets = append(rpt.Packets, PacketRecord{
		Src:        string(dt.msg.Src),
		Dst:        string(dt.msg.Dst),
		Payload:    dt.msg.Payload,
		SendTime:   dt.sendTime,
		FinishTime: at,
		Hops:       hops,
		Outcome:    outcome,
	})
}

// Report returns the results gathered so far
func (s *Simulation) Report() *Report {
	return s.rpt
}

// finishReport snapshots the final forwarding tables
func (s *Simulation) finishReport() {
	for _, id := range s.routerIDs() {
		tbl := s.routers[id].engine.Table()
		row := make(map[string]string, len(tbl))
		for dst, nh := range tbl {
			row[string(dst)] = string(nh)
		}
		s.rpt.Tables[string(id)] = row
	}
}

// CheckConformance compares every router's converged forwarding table
// against reference shortest paths over the final topology.  An entry
// conforms when its next hop lies on some least-cost path; a missing
// entry conforms only when the destination really is unreachable.  The
// check is meaningful only once the protocols have converged, so the
// caller decides when to invoke it.
func (s *Simulation) CheckConformance() []string {
	oracle := BuildPathOracle(s.routerIDs(), s.liveEdges())
	mismatches := []string{}

	for _, src := range s.routerIDs() {
		engine := s.routers[src].engine
		for _, dst := range s.routerIDs() {
			if src == dst {
				continue
			}
			_, reachable := oracle.Dist(src, dst)
			nh, ok := engine.NextHop(dst)
			switch {
			case !ok && reachable:
				mismatches = append(mismatches,
					fmt.Sprintf("%s has no route to reachable %s", src, dst))
			case ok && !reachable:
				mismatches = append(mismatches,
					fmt.Sprintf("%s routes to unreachable %s via %s", src, dst, nh))
			case ok:
				lnk := s.findLink(src, nh)
				if lnk == nil || !lnk.up {
					mismatches = append(mismatches,
						fmt.Sprintf("%s routes to %s over missing link to %s", src, dst, nh))
					continue
				}
				if !oracle.OnShortestPath(src, nh, dst, lnk.cost) {
					mismatches = append(mismatches,
						fmt.Sprintf("%s -> %s via %s is not least-cost", src, dst, nh))
				}
			}
		}
	}
	s.rpt.Mismatches = mismatches
	return mismatches
}

// Summary renders the report for the command line
func (rpt *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "experiment %s, protocol %s\n", rpt.Topology, rpt.Protocol)

	delivered := 0
	for _, pr := range rpt.Packets {
		if pr.Outcome == Delivered {
			delivered++
		}
	}
	fmt.Fprintf(&b, "data packets: %d sent, %d delivered\n", len(rpt.Packets), delivered)
	for _, pr := range rpt.Packets {
		fmt.Fprintf(&b, "  %s -> %s at %g: %s", pr.Src, pr.Dst, pr.SendTime, pr.Outcome)
		if pr.Outcome == Delivered {
			fmt.Fprintf(&b, " at %g via %s", pr.FinishTime, strings.Join(pr.Hops, ","))
		}
		b.WriteString("\n")
	}

	b.WriteString("final forwarding tables:\n")
	for _, src := range sortedKeys(rpt.Tables) {
		fmt.Fprintf(&b, "  %s:", src)
		row := rpt.Tables[src]
		for _, dst := range sortedKeys(row) {
			fmt.Fprintf(&b, " %s->%s", dst, row[dst])
		}
		b.WriteString("\n")
	}

	if len(rpt.Mismatches) > 0 {
		b.WriteString("conformance mismatches:\n")
		for _, m := range rpt.Mismatches {
			fmt.Fprintf(&b, "  %s\n", m)
		}
	}
	return b.String()
}

// sortedKeys is the string-keyed sibling of sortedIDs
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
