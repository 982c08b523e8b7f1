package routesim

// router.go holds the types shared by the two routing protocol engines:
// router and packet identities, control and data packet formats, and the
// Router interface through which the simulation driver delivers events.

import (
	"golang.org/x/exp/slices"
)

// RouterID names a router.  IDs are opaque to the engines except that
// they are comparable and ordered; the ordering is used to break ties
// between equal cost routes so that repeated runs make identical choices.
type RouterID string

// Link describes one of a router's directly connected links, as the
// router itself sees it.
type Link struct {
	Neighbor RouterID
	Cost     float64
}

// PacketType distinguishes the two control packet formats on the wire.
type PacketType int

const (
	// DVAdvert carries a distance vector
	DVAdvert PacketType = iota

	// LSAdvert carries a link state advertisement
	LSAdvert
)

var ptToStr map[PacketType]string = map[PacketType]string{DVAdvert: "dv", LSAdvert: "lsa"}

// ControlPacket is the unit of protocol traffic exchanged between routers.
// The Type tag selects which fields are meaningful: a DV advertisement
// carries only Vector, an LSA carries Origin, Seq, Links and Stamp.
// The identity of the wire sender is not part of the packet; the driver
// knows which link a packet arrived on and passes that to HandleControl.
type ControlPacket struct {
	Type PacketType

	// Vector maps destination to the sender's believed best cost,
	// with routes poisoned per split horizon where applicable
	Vector map[RouterID]float64

	// Origin is the router whose links the LSA reports.  Unlike the
	// wire sender it survives flooding unmodified.
	Origin RouterID

	// Seq orders LSAs from the same origin; larger is fresher
	Seq int

	// Links maps the origin's neighbors to its link costs
	Links map[RouterID]float64

	// Stamp is the origin's clock when the LSA was generated
	Stamp float64
}

// Outbound pairs a control packet with the neighbor it should be
// delivered to.  Engines never deliver packets themselves; every event
// handler returns the outbound packets it generated and the driver
// carries them across the (simulated) links.
type Outbound struct {
	To  RouterID
	Pkt ControlPacket
}

// DataPacket is payload traffic forwarded hop by hop using the
// routers' forwarding tables.  Routers do not alter it en route.
type DataPacket struct {
	Src     RouterID
	Dst     RouterID
	Payload string
}

// Router is the capability contract every protocol engine implements.
// A router instance is a single threaded state machine: the driver
// delivers one event at a time and the engine mutates its own state
// only inside these handlers.  Each handler returns the control packets
// the event caused the router to emit.
type Router interface {
	// Addr returns the router's identity
	Addr() RouterID

	// Init seeds the engine with the router's directly connected links
	// and emits the engine's first advertisements, at least one per link,
	// so that neighbors learn of this router's existence
	Init(links []Link) []Outbound

	// LinkUp reports that the link to neighbor became usable, or that
	// an existing link's cost changed
	LinkUp(neighbor RouterID, cost float64) []Outbound

	// LinkDown reports that the link to neighbor is no longer usable
	LinkDown(neighbor RouterID) []Outbound

	// HandleControl ingests a control packet that arrived on the link
	// from the named neighbor
	HandleControl(from RouterID, pkt ControlPacket) []Outbound

	// Tick is fired periodically by the driver.  The argument is the
	// current simulation time in seconds.
	Tick(now float64) []Outbound

	// NextHop reads the current forwarding table.  The second return
	// is false when the destination is unreachable.  NextHop never
	// blocks and never mutates engine state.
	NextHop(dst RouterID) (RouterID, bool)

	// Table returns a copy of the current forwarding table,
	// destination to next hop
	Table() map[RouterID]RouterID
}

// sortedIDs returns the keys of a cost map in increasing RouterID order.
// Engines iterate maps through this whenever the visit order can leak
// into route selection, to keep tie breaking reproducible.
func sortedIDs[V any](m map[RouterID]V) []RouterID {
	ids := make([]RouterID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// copyCosts duplicates a destination -> cost map
func copyCosts(m map[RouterID]float64) map[RouterID]float64 {
	dup := make(map[RouterID]float64, len(m))
	for id, c := range m {
		dup[id] = c
	}
	return dup
}
