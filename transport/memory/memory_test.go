package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcprohosting/raft/membership"
	"github.com/mcprohosting/raft/raft"
	"github.com/mcprohosting/raft/transport/memory"
)

func TestBusRoutesBetweenRegisteredNodes(t *testing.T) {
	bus := memory.NewBus()

	mp := membership.NewStatic("a", "b")
	a := raft.New(raft.Options{ID: "a", Membership: mp})
	b := raft.New(raft.Options{ID: "b", Membership: mp})

	bus.Register("a", a)
	bus.Register("b", b)

	ok := a.Write("b", raft.Packet{State: raft.Leader, Term: 0, Name: "a", Type: raft.KindHeartbeat, Data: raft.HeartbeatPayload{}})
	require.True(t, ok)

	// Send dispatches on its own goroutine (see Bus.Send), so delivery is
	// asynchronous from the caller's point of view.
	require.Eventually(t, func() bool {
		leader := b.Leader()
		return leader != nil && *leader == "a"
	}, time.Second, time.Millisecond)
}

func TestBusSendToUnregisteredPeerFails(t *testing.T) {
	bus := memory.NewBus()
	require.False(t, bus.Send("ghost", raft.Packet{Name: "x", Type: raft.KindHeartbeat}))
}

func TestBusDeregisterStopsDelivery(t *testing.T) {
	bus := memory.NewBus()
	mp := membership.NewStatic("a", "b")
	a := raft.New(raft.Options{ID: "a", Membership: mp})
	b := raft.New(raft.Options{ID: "b", Membership: mp})
	bus.Register("a", a)
	bus.Register("b", b)

	bus.Deregister("b")

	ok := a.Write("b", raft.Packet{State: raft.Follower, Name: "a", Type: raft.KindHeartbeat, Data: raft.HeartbeatPayload{}})
	require.False(t, ok)
}

// A real election round trips a vote request and its reply through the
// same broadcast call: Promote broadcasts while holding the candidate's
// lock, and a recipient can answer from inside its own Read, reentering
// the bus on the candidate's behalf. If Send ever delivered synchronously
// on the caller's goroutine, this would deadlock the candidate against
// itself; it must instead complete promptly.
func TestBusCarriesAFullElectionWithoutDeadlock(t *testing.T) {
	bus := memory.NewBus()
	mp := membership.NewStatic("a", "b", "c")

	nodes := make(map[string]*raft.Node, 3)
	for _, name := range []string{"a", "b", "c"} {
		n := raft.New(raft.Options{ID: name, Membership: mp})
		bus.Register(name, n)
		nodes[name] = n
	}

	nodes["a"].Promote()

	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if n.State() == raft.Leader {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)
}
