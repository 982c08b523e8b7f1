package routesim

// net.go contains the simulation driver: the component that owns
// simulated time and link topology.  It delivers control and data
// packets across links with per-link propagation delay, injects the
// topology changes scheduled in the input description, fires each
// router's periodic timer, and moves data packets hop by hop by asking
// the routers for next-hop decisions.  Routers see the network only
// through the events delivered here; no router touches another's state.

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"
)

// protocol selections accepted by BuildSimulation
const (
	ProtocolDV = "dv"
	ProtocolLS = "ls"
)

// defaults applied by BuildSimulation when the corresponding SimConfig
// field is zero
const (
	DefaultHeartbeat = 1.0
	DefaultStopTime  = 60.0
	DefaultHopLimit  = 64
)

// SimConfig carries the run-wide parameters of one simulation
type SimConfig struct {
	// Protocol selects the engine variant, ProtocolDV or ProtocolLS
	Protocol string

	// Heartbeat is the period, in seconds, of each router's timer
	Heartbeat float64

	// StopTime is the simulation time at which the run ends
	StopTime float64

	// HopLimit bounds the number of hops a data packet may take, so a
	// transient forwarding loop cannot circulate a packet forever
	HopLimit int

	// Horizon configures the DV engines (see DVConfig)
	Horizon float64

	// MaxAge configures the LS engines (see LSConfig)
	MaxAge float64

	// Trace activates trace gathering
	Trace bool
}

// simLink is the run-time state of one bidirectional link
type simLink struct {
	a, b  RouterID
	cost  float64
	delay float64
	up    bool
	objID int
}

// linkKey indexes the link table; endpoints are stored in increasing
// order so that either direction finds the same link
type linkKey struct {
	a, b RouterID
}

func mkLinkKey(x, y RouterID) linkKey {
	if y < x {
		x, y = y, x
	}
	return linkKey{a: x, b: y}
}

// simRouter binds a protocol engine to its place in the simulation
type simRouter struct {
	id     RouterID
	objID  int
	engine Router
	rng    *rngstream.RngStream
	sim    *Simulation
}

// Simulation is the driver state for one run
type Simulation struct {
	EvtMgr   *evtm.EventManager
	TraceMgr *TraceManager

	cfg     SimConfig
	topo    *TopoCfg
	routers map[RouterID]*simRouter
	links   map[linkKey]*simLink
	rpt     *Report

	nxtPktID int
	nxtObjID int
}

// nxtID hands out object ids unique within the run, used to key the
// trace dictionary
func (s *Simulation) nxtID() int {
	s.nxtObjID++
	return s.nxtObjID
}

// nextPktID hands out packet ids, which group trace records
func (s *Simulation) nextPktID() int {
	s.nxtPktID++
	return s.nxtPktID
}

// BuildSimulation validates the topology description, creates a protocol
// engine per declared router, seeds each engine with its directly
// connected links, and schedules the described topology changes, data
// traffic, and the per-router heartbeat timers.  The returned simulation
// is ready for Run.
func BuildSimulation(topo *TopoCfg, cfg SimConfig) (*Simulation, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Protocol {
	case ProtocolDV, ProtocolLS:
	default:
		return nil, fmt.Errorf("unrecognized protocol %q", cfg.Protocol)
	}
	if cfg.Heartbeat <= 0.0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.StopTime <= 0.0 {
		cfg.StopTime = DefaultStopTime
	}
	if cfg.HopLimit <= 0 {
		cfg.HopLimit = DefaultHopLimit
	}

	s := new(Simulation)
	s.EvtMgr = evtm.New()
	s.cfg = cfg
	s.topo = topo
	s.routers = make(map[RouterID]*simRouter)
	s.links = make(map[linkKey]*simLink)
	s.TraceMgr = CreateTraceManager(topo.Name, cfg.Trace)
	s.rpt = createReport(topo.Name, cfg.Protocol)

	for _, rd := range topo.Routers {
		id := RouterID(rd.Name)
		rtr := new(simRouter)
		rtr.id = id
		rtr.objID = s.nxtID()
		rtr.sim = s
		rtr.rng = rngstream.New(rd.Name)
		switch cfg.Protocol {
		case ProtocolDV:
			rtr.engine = CreateDVRouter(id, DVConfig{Horizon: cfg.Horizon})
		case ProtocolLS:
			rtr.engine = CreateLSRouter(id, LSConfig{MaxAge: cfg.MaxAge})
		}
		s.routers[id] = rtr
		s.TraceMgr.AddName(rtr.objID, rd.Name, "router")
	}

	for _, ld := range topo.Links {
		delay := ld.Delay
		if delay <= 0.0 {
			delay = DefaultLinkDelay
		}
		lnk := &simLink{a: RouterID(ld.A), b: RouterID(ld.B), cost: ld.Cost, delay: delay, up: true, objID: s.nxtID()}
		s.links[mkLinkKey(lnk.a, lnk.b)] = lnk
		s.TraceMgr.AddName(lnk.objID, ld.A+"-"+ld.B, "link")
	}

	// seed each engine with its directly connected links; the initial
	// advertisements go onto the wire at time zero plus link delay
	for _, id := range sortedIDs(s.routers) {
		rtr := s.routers[id]
		outs := rtr.engine.Init(s.linksOf(id))
		s.transmit(rtr, outs)
	}

	// heartbeats get a per-router phase drawn from the router's own rng
	// stream, so advertisement bursts do not synchronize across routers
	// yet runs stay reproducible
	for _, id := range sortedIDs(s.routers) {
		rtr := s.routers[id]
		phase := cfg.Heartbeat * rtr.rng.RandU01()
		s.EvtMgr.Schedule(rtr, nil, routerHeartbeat, vrtime.SecondsToTime(phase))
	}

	for _, chg := range topo.Changes {
		s.EvtMgr.Schedule(s, chg, applyChange, vrtime.SecondsToTime(chg.Time))
	}

	for _, trf := range topo.Traffic {
		dt := &dataTransit{
			pktID:    s.nextPktID(),
			msg:      DataPacket{Src: RouterID(trf.Src), Dst: RouterID(trf.Dst), Payload: trf.Payload},
			sendTime: trf.Time,
		}
		s.EvtMgr.Schedule(s.routers[dt.msg.Src], dt, dataArrive, vrtime.SecondsToTime(trf.Time))
	}

	return s, nil
}

// Run advances simulated time until the configured stop time, then
// finishes the report with the final forwarding tables.
func (s *Simulation) Run() *Report {
	s.EvtMgr.Run(s.cfg.StopTime)
	s.finishReport()
	return s.rpt
}

// linksOf collects the live links incident to a router, as that router
// sees them
func (s *Simulation) linksOf(id RouterID) []Link {
	links := make([]Link, 0)
	for _, lnk := range s.links {
		if !lnk.up {
			continue
		}
		switch id {
		case lnk.a:
			links = append(links, Link{Neighbor: lnk.b, Cost: lnk.cost})
		case lnk.b:
			links = append(links, Link{Neighbor: lnk.a, Cost: lnk.cost})
		}
	}
	return links
}

// findLink returns the link between two routers, or nil
func (s *Simulation) findLink(x, y RouterID) *simLink {
	return s.links[mkLinkKey(x, y)]
}

// liveEdges lists the currently-up links for the path oracle
func (s *Simulation) liveEdges() []Edge {
	edges := make([]Edge, 0, len(s.links))
	for _, lnk := range s.links {
		if lnk.up {
			edges = append(edges, Edge{A: lnk.a, B: lnk.b, Cost: lnk.cost})
		}
	}
	return edges
}

// routerIDs lists the declared routers
func (s *Simulation) routerIDs() []RouterID {
	return sortedIDs(s.routers)
}

// transmit carries a batch of outbound control packets onto the wire.
// A packet addressed across a link that is missing or down is dropped
// here: the engine that emitted it may be reacting to an event older
// than the topology change.
func (s *Simulation) transmit(from *simRouter, outs []Outbound) {
	for _, out := range outs {
		lnk := s.findLink(from.id, out.To)
		if lnk == nil || !lnk.up {
			continue
		}
		pktID := s.nextPktID()
		AddRouteTrace(s.TraceMgr, s.EvtMgr.CurrentTime(), pktID, from.objID,
			"send", ptToStr[out.Pkt.Type], from.id, out.To)
		cd := &ctrlDelivery{pktID: pktID, from: from.id, pkt: out.Pkt}
		s.EvtMgr.Schedule(s.routers[out.To], cd, deliverControl, vrtime.SecondsToTime(lnk.delay))
	}
}

// ctrlDelivery is the in-flight representation of a control packet
type ctrlDelivery struct {
	pktID int
	from  RouterID
	pkt   ControlPacket
}

// deliverControl hands a control packet that has finished crossing its
// link to the receiving router's engine, then puts whatever the engine
// emitted in response onto the wire.
func deliverControl(evtMgr *evtm.EventManager, context any, data any) any {
	rtr := context.(*simRouter)
	cd := data.(*ctrlDelivery)
	s := rtr.sim

	lnk := s.findLink(cd.from, rtr.id)
	if lnk == nil || !lnk.up {
		// the link went down while the packet was in flight
		AddRouteTrace(s.TraceMgr, evtMgr.CurrentTime(), cd.pktID, rtr.objID,
			"drop", ptToStr[cd.pkt.Type], cd.from, rtr.id)
		return nil
	}
	AddRouteTrace(s.TraceMgr, evtMgr.CurrentTime(), cd.pktID, rtr.objID,
		"recv", ptToStr[cd.pkt.Type], cd.from, rtr.id)

	outs := rtr.engine.HandleControl(cd.from, cd.pkt)
	s.transmit(rtr, outs)
	return nil
}

// routerHeartbeat fires a router's periodic timer and reschedules itself
func routerHeartbeat(evtMgr *evtm.EventManager, context any, data any) any {
	rtr := context.(*simRouter)
	outs := rtr.engine.Tick(evtMgr.CurrentSeconds())
	rtr.sim.transmit(rtr, outs)
	evtMgr.Schedule(rtr, nil, routerHeartbeat, vrtime.SecondsToTime(rtr.sim.cfg.Heartbeat))
	return nil
}

// applyChange injects one topology change.  Each transition is handed to
// the two adjacent routers as an independent event, in arrival order;
// packets already in flight on a removed link are discarded when they
// would have arrived.
func applyChange(evtMgr *evtm.EventManager, context any, data any) any {
	s := context.(*Simulation)
	chg := data.(ChangeDesc)

	a := RouterID(chg.A)
	b := RouterID(chg.B)
	key := mkLinkKey(a, b)
	lnk := s.links[key]

	switch chg.Op {
	case ChangeAdd:
		delay := chg.Delay
		if delay <= 0.0 {
			delay = DefaultLinkDelay
		}
		if lnk == nil {
			lnk = &simLink{a: key.a, b: key.b, objID: s.nxtID()}
			s.links[key] = lnk
			s.TraceMgr.AddName(lnk.objID, chg.A+"-"+chg.B, "link")
		}
		lnk.cost = chg.Cost
		lnk.delay = delay
		lnk.up = true
		s.transmit(s.routers[a], s.routers[a].engine.LinkUp(b, chg.Cost))
		s.transmit(s.routers[b], s.routers[b].engine.LinkUp(a, chg.Cost))

	case ChangeCost:
		if lnk == nil || !lnk.up {
			return nil
		}
		lnk.cost = chg.Cost
		s.transmit(s.routers[a], s.routers[a].engine.LinkUp(b, chg.Cost))
		s.transmit(s.routers[b], s.routers[b].engine.LinkUp(a, chg.Cost))

	case ChangeRemove:
		if lnk == nil || !lnk.up {
			return nil
		}
		lnk.up = false
		s.transmit(s.routers[a], s.routers[a].engine.LinkDown(b))
		s.transmit(s.routers[b], s.routers[b].engine.LinkDown(a))
	}
	return nil
}

// dataTransit is the in-flight representation of a data packet,
// accumulating the hops it has visited
type dataTransit struct {
	pktID    int
	msg      DataPacket
	hops     []RouterID
	sendTime float64
}

// dataArrive runs when a data packet reaches a router: deliver it if
// this is its destination, otherwise look up the next hop and put it
// back on the wire.  An UNREACHABLE answer drops the packet and records
// that in the report, it is never a fatal error.
func dataArrive(evtMgr *evtm.EventManager, context any, data any) any {
	rtr := context.(*simRouter)
	dt := data.(*dataTransit)
	s := rtr.sim
	now := evtMgr.CurrentTime()

	dt.hops = append(dt.hops, rtr.id)

	if rtr.id == dt.msg.Dst {
		AddRouteTrace(s.TraceMgr, now, dt.pktID, rtr.objID, "deliver", "data", dt.msg.Src, dt.msg.Dst)
		s.rpt.recordData(dt, Delivered, now.Seconds())
		return nil
	}
	if len(dt.hops) > s.cfg.HopLimit {
		AddRouteTrace(s.TraceMgr, now, dt.pktID, rtr.objID, "drop", "data", dt.msg.Src, dt.msg.Dst)
		s.rpt.recordData(dt, HopLimitExceeded, now.Seconds())
		return nil
	}

	nh, ok := rtr.engine.NextHop(dt.msg.Dst)
	if !ok {
		AddRouteTrace(s.TraceMgr, now, dt.pktID, rtr.objID, "drop", "data", dt.msg.Src, dt.msg.Dst)
		s.rpt.recordData(dt, Unreachable, now.Seconds())
		return nil
	}

	lnk := s.findLink(rtr.id, nh)
	if lnk == nil || !lnk.up {
		// the table still points at a link that just went away
		AddRouteTrace(s.TraceMgr, now, dt.pktID, rtr.objID, "drop", "data", dt.msg.Src, dt.msg.Dst)
		s.rpt.recordData(dt, LinkLost, now.Seconds())
		return nil
	}

	AddRouteTrace(s.TraceMgr, now, dt.pktID, rtr.objID, "forward", "data", rtr.id, nh)
	evtMgr.Schedule(s.routers[nh], dt, dataArrive, vrtime.SecondsToTime(lnk.delay))
	return nil
}

// NextHopOf answers a forwarding query against a router's current table,
// the way the data plane would ask it
func (s *Simulation) NextHopOf(router, dst RouterID) (RouterID, bool) {
	rtr, ok := s.routers[router]
	if !ok {
		return RouterID(""), false
	}
	return rtr.engine.NextHop(dst)
}

// EngineOf exposes a router's engine, used by the reporter and tests
func (s *Simulation) EngineOf(router RouterID) Router {
	rtr, ok := s.routers[router]
	if !ok {
		return nil
	}
	return rtr.engine
}
