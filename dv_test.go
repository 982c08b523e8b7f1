package routesim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorTo(t *testing.T, outs []Outbound, nbr RouterID) map[RouterID]float64 {
	t.Helper()
	for _, out := range outs {
		if out.To == nbr {
			require.Equal(t, DVAdvert, out.Pkt.Type)
			return out.Pkt.Vector
		}
	}
	t.Fatalf("no advertisement addressed to %s", nbr)
	return nil
}

func TestDVInitAdvertisesOnEveryLink(t *testing.T) {
	dv := CreateDVRouter("A", DVConfig{})
	outs := dv.Init([]Link{{Neighbor: "B", Cost: 1}, {Neighbor: "C", Cost: 2}})
	require.Len(t, outs, 2)

	// the direct neighbors are one-hop routes, each poisoned back
	// toward itself and advertised truthfully to the other
	vecB := vectorTo(t, outs, "B")
	assert.Equal(t, 0.0, vecB["A"])
	assert.Equal(t, DefaultCostHorizon, vecB["B"])
	assert.Equal(t, 2.0, vecB["C"])

	vecC := vectorTo(t, outs, "C")
	assert.Equal(t, 1.0, vecC["B"])
	assert.Equal(t, DefaultCostHorizon, vecC["C"])
}

func TestDVPoisonReverse(t *testing.T) {
	dv := CreateDVRouter("A", DVConfig{})
	dv.Init([]Link{{Neighbor: "B", Cost: 1}})

	outs := dv.HandleControl("B", ControlPacket{
		Type:   DVAdvert,
		Vector: map[RouterID]float64{"B": 0, "D": 1},
	})
	require.NotEmpty(t, outs, "a new destination must trigger re-advertisement")

	nh, ok := dv.NextHop("D")
	require.True(t, ok)
	assert.Equal(t, RouterID("B"), nh)

	// D is routed via B, so the vector sent to B must poison D
	vecB := vectorTo(t, outs, "B")
	assert.Equal(t, DefaultCostHorizon, vecB["D"])
}

func TestDVWithdrawalOnLinkDown(t *testing.T) {
	dv := CreateDVRouter("A", DVConfig{})
	dv.Init([]Link{{Neighbor: "B", Cost: 1}, {Neighbor: "C", Cost: 5}})
	dv.HandleControl("B", ControlPacket{
		Type:   DVAdvert,
		Vector: map[RouterID]float64{"B": 0, "D": 1},
	})

	nh, ok := dv.NextHop("D")
	require.True(t, ok)
	require.Equal(t, RouterID("B"), nh)

	outs := dv.LinkDown("B")

	_, ok = dv.NextHop("D")
	assert.False(t, ok, "every route through the lost link must be invalidated")
	_, ok = dv.NextHop("B")
	assert.False(t, ok)

	// the withdrawal propagates to the remaining neighbor as horizon entries
	vecC := vectorTo(t, outs, "C")
	assert.Equal(t, DefaultCostHorizon, vecC["D"])
	assert.Equal(t, DefaultCostHorizon, vecC["B"])
}

func TestDVTieBreakLowestNeighbor(t *testing.T) {
	// two equal-cost paths to D; the chosen next hop must be the
	// lower identifier no matter which advertisement arrives first
	build := func(order []RouterID) *DVRouter {
		dv := CreateDVRouter("A", DVConfig{})
		dv.Init([]Link{{Neighbor: "B", Cost: 1}, {Neighbor: "C", Cost: 1}})
		for _, nbr := range order {
			dv.HandleControl(nbr, ControlPacket{
				Type:   DVAdvert,
				Vector: map[RouterID]float64{nbr: 0, "D": 1},
			})
		}
		return dv
	}

	for _, order := range [][]RouterID{{"B", "C"}, {"C", "B"}} {
		dv := build(order)
		nh, ok := dv.NextHop("D")
		require.True(t, ok)
		assert.Equal(t, RouterID("B"), nh)
	}
}

func TestDVCostHorizonBoundsRoutes(t *testing.T) {
	dv := CreateDVRouter("A", DVConfig{})
	dv.Init([]Link{{Neighbor: "B", Cost: 10}})
	dv.HandleControl("B", ControlPacket{
		Type:   DVAdvert,
		Vector: map[RouterID]float64{"B": 0, "D": 7},
	})

	// 10 + 7 crosses the horizon: D is unreachable, not cost 17
	_, ok := dv.NextHop("D")
	assert.False(t, ok)
}

func TestDVLinkCostChangeRefoldsColumn(t *testing.T) {
	dv := CreateDVRouter("A", DVConfig{})
	dv.Init([]Link{{Neighbor: "B", Cost: 1}, {Neighbor: "C", Cost: 1}})
	dv.HandleControl("B", ControlPacket{
		Type:   DVAdvert,
		Vector: map[RouterID]float64{"B": 0, "D": 2},
	})

	// raising the A-B link cost must raise every route learned from B
	outs := dv.LinkUp("B", 5)
	vecC := vectorTo(t, outs, "C")
	assert.Equal(t, 7.0, vecC["D"])
	assert.Equal(t, 5.0, vecC["B"])
}

func TestDVIgnoresUnknownNeighborAndWrongType(t *testing.T) {
	dv := CreateDVRouter("A", DVConfig{})
	dv.Init([]Link{{Neighbor: "B", Cost: 1}})

	assert.Nil(t, dv.HandleControl("Z", ControlPacket{
		Type:   DVAdvert,
		Vector: map[RouterID]float64{"Z": 0},
	}))
	assert.Nil(t, dv.HandleControl("B", ControlPacket{Type: LSAdvert, Origin: "B", Seq: 1}))
}

func TestDVDuplicateVectorIsSilent(t *testing.T) {
	dv := CreateDVRouter("A", DVConfig{})
	dv.Init([]Link{{Neighbor: "B", Cost: 1}})

	vec := map[RouterID]float64{"B": 0, "D": 1}
	first := dv.HandleControl("B", ControlPacket{Type: DVAdvert, Vector: vec})
	require.NotEmpty(t, first)

	// redelivery of the same vector changes nothing and emits nothing
	again := dv.HandleControl("B", ControlPacket{Type: DVAdvert, Vector: vec})
	assert.Empty(t, again)
}

func TestDVTickResendsFullVector(t *testing.T) {
	dv := CreateDVRouter("A", DVConfig{})
	dv.Init([]Link{{Neighbor: "B", Cost: 1}, {Neighbor: "C", Cost: 1}})

	outs := dv.Tick(5.0)
	require.Len(t, outs, 2)
	vecB := vectorTo(t, outs, "B")
	assert.Equal(t, 0.0, vecB["A"])
}
