package raft

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcprohosting/raft/membership"
)

// recordingOutbound captures every packet handed to it, keyed by
// recipient, without delivering anything — enough to assert on a node's
// own outbound behavior in isolation.
type recordingOutbound struct {
	mu   sync.Mutex
	sent map[string][]Packet
}

func newRecordingOutbound() *recordingOutbound {
	return &recordingOutbound{sent: make(map[string][]Packet)}
}

func (r *recordingOutbound) Send(to string, p Packet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[to] = append(r.sent[to], p)
	return true
}

func (r *recordingOutbound) last(to string) (Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.sent[to]
	if len(ps) == 0 {
		return Packet{}, false
	}
	return ps[len(ps)-1], true
}

func fastOptions(fc *fakeClock) Options {
	return Options{
		Clock:        fc,
		ElectionMin:  10 * time.Millisecond,
		ElectionMax:  10 * time.Millisecond,
		HeartbeatMin: 5 * time.Millisecond,
		HeartbeatMax: 5 * time.Millisecond,
	}
}

func TestNodeStartupArmsFollowerWatchdog(t *testing.T) {
	fc := newFakeClock()
	n := New(fastOptions(fc))

	require.Equal(t, Follower, n.State())
	require.True(t, n.timers.active("heartbeat"))
	require.False(t, n.timers.active("election"))
}

func TestNodeElectionTimeoutPromotesWithoutQuorum(t *testing.T) {
	fc := newFakeClock()
	opts := fastOptions(fc)
	opts.ID = "self"
	opts.Membership = membership.NewStatic("self", "p1", "p2")
	n := New(opts)

	var timedOut bool
	n.OnHeartbeatTimeout(func() { timedOut = true })

	fc.Advance(10 * time.Millisecond)

	require.True(t, timedOut)
	require.Equal(t, Candidate, n.State())
	require.EqualValues(t, 1, n.Term())
	require.Equal(t, 1, n.Granted()) // self-vote only, no quorum yet
	require.EqualValues(t, 1, n.ElectionsStarted())
}

func TestNodeCandidateElectionTimeoutReElectsWithoutHeartbeatTimeoutEvent(t *testing.T) {
	fc := newFakeClock()
	opts := fastOptions(fc)
	opts.ID = "self"
	opts.Membership = membership.NewStatic("self", "p1", "p2")
	n := New(opts)

	var timeouts int
	n.OnHeartbeatTimeout(func() { timeouts++ })

	fc.Advance(10 * time.Millisecond) // Follower -> Candidate, term 1
	require.Equal(t, Candidate, n.State())
	require.Equal(t, 1, timeouts)

	startedBefore := n.ElectionsStarted()
	fc.Advance(10 * time.Millisecond) // split vote: election timer fires again
	require.Equal(t, Candidate, n.State())
	require.EqualValues(t, 2, n.Term())
	require.Equal(t, startedBefore+1, n.ElectionsStarted())

	// A Candidate's own election-timer expiry re-promotes silently; it is
	// not a heartbeat-timeout event (SPEC_FULL.md §4.6 vs §4.7).
	require.Equal(t, 1, timeouts)
}

func TestNodeSoloClusterWinsImmediately(t *testing.T) {
	fc := newFakeClock()
	n := New(fastOptions(fc)) // default membership: solo

	fc.Advance(10 * time.Millisecond)

	require.Equal(t, Leader, n.State())
	require.EqualValues(t, 1, n.Term())
}

func TestNodeBecomesLeaderOnQuorumVotes(t *testing.T) {
	fc := newFakeClock()
	opts := fastOptions(fc)
	opts.ID = "self"
	opts.Membership = membership.NewStatic("self", "p1", "p2")
	n := New(opts)

	n.Promote()
	require.Equal(t, Candidate, n.State())

	ok := n.Read(Packet{State: Follower, Term: n.Term(), Name: "p1", Type: KindVoted, Data: VoteResponse{Granted: true}})
	require.True(t, ok)

	require.Equal(t, Leader, n.State())
	leader := n.Leader()
	require.NotNil(t, leader)
	require.Equal(t, "self", *leader)
}

func TestNodeHeartbeatRecordsLeaderAndRearmsWatchdog(t *testing.T) {
	fc := newFakeClock()
	n := New(fastOptions(fc))

	require.Nil(t, n.Leader())
	ok := n.Read(Packet{State: Leader, Term: 0, Name: "leaderX", Type: KindHeartbeat, Data: HeartbeatPayload{}})
	require.True(t, ok)

	leader := n.Leader()
	require.NotNil(t, leader)
	require.Equal(t, "leaderX", *leader)
	require.Equal(t, Follower, n.State())
}

func TestNodeHigherTermDemotesLeaderAndRecordsNewLeader(t *testing.T) {
	fc := newFakeClock()
	n := New(fastOptions(fc)) // solo cluster

	fc.Advance(10 * time.Millisecond)
	require.Equal(t, Leader, n.State())

	ok := n.Read(Packet{State: Leader, Term: 5, Name: "other", Type: KindHeartbeat, Data: HeartbeatPayload{}})
	require.True(t, ok)

	require.Equal(t, Follower, n.State())
	require.EqualValues(t, 5, n.Term())
	leader := n.Leader()
	require.NotNil(t, leader)
	require.Equal(t, "other", *leader)
}

func TestNodeGrantsVoteOnceThenRefusesCompetingCandidate(t *testing.T) {
	fc := newFakeClock()
	out := newRecordingOutbound()
	n := New(fastOptions(fc))
	n.Attach(out)

	require.True(t, n.Read(Packet{State: Follower, Term: 0, Name: "c1", Type: KindVote, Data: VoteRequest{}}))
	reply, ok := out.last("c1")
	require.True(t, ok)
	require.Equal(t, KindVoted, reply.Type)
	require.True(t, reply.Data.(VoteResponse).Granted)

	require.True(t, n.Read(Packet{State: Follower, Term: 0, Name: "c2", Type: KindVote, Data: VoteRequest{}}))
	reply2, ok := out.last("c2")
	require.True(t, ok)
	require.False(t, reply2.Data.(VoteResponse).Granted)

	votedFor := n.VotedFor()
	require.NotNil(t, votedFor)
	require.Equal(t, "c1", *votedFor)
}

func TestNodeInvalidPacketIsDropped(t *testing.T) {
	fc := newFakeClock()
	n := New(fastOptions(fc))

	require.False(t, n.Read(Packet{})) // empty Name
	require.Equal(t, Follower, n.State())
}

func TestNodeEndStopsAndRejectsFurtherTraffic(t *testing.T) {
	fc := newFakeClock()
	n := New(fastOptions(fc))

	require.True(t, n.End())
	require.True(t, n.Stopped())
	require.Equal(t, Stopped, n.State())

	require.False(t, n.End())
	require.False(t, n.Read(Packet{State: Follower, Term: 0, Name: "x", Type: KindHeartbeat}))
	require.False(t, n.Write("x", Packet{}))
	require.False(t, n.Broadcast(KindHeartbeat, HeartbeatPayload{}))
}

func TestNodeEndOnLeaderEmitsGracefulStepDown(t *testing.T) {
	fc := newFakeClock()
	n := New(fastOptions(fc)) // solo cluster
	fc.Advance(10 * time.Millisecond)
	require.Equal(t, Leader, n.State())

	var last LeaderChange
	got := false
	n.OnLeaderChange(func(e LeaderChange) { last = e; got = true })

	n.End()

	require.True(t, got)
	require.Nil(t, last.New)
	require.NotNil(t, last.Old)
	require.Equal(t, n.Name(), *last.Old)
}

func TestNodePreVoteRequestDoesNotMutateReceiverState(t *testing.T) {
	fc := newFakeClock()
	out := newRecordingOutbound()
	n := New(fastOptions(fc))
	n.Attach(out)

	req := VoteRequest{PreVote: true, ProspectiveTerm: 1}
	ok := n.Read(Packet{State: Follower, Term: 0, Name: "cand1", Type: KindVote, Data: req})
	require.True(t, ok)

	require.EqualValues(t, 0, n.Term())
	require.Nil(t, n.VotedFor())

	reply, found := out.last("cand1")
	require.True(t, found)
	vr := reply.Data.(VoteResponse)
	require.True(t, vr.PreVote)
	require.True(t, vr.Granted)
}

func TestNodePreVoteRoundGatesRealPromotion(t *testing.T) {
	fc := newFakeClock()
	opts := fastOptions(fc)
	opts.ID = "self"
	opts.PreVote = true
	opts.Membership = membership.NewStatic("self", "p1", "p2")
	n := New(opts)

	n.Promote()
	require.Equal(t, Follower, n.State()) // still probing, no term bump yet
	require.EqualValues(t, 0, n.Term())

	ok := n.Read(Packet{State: Follower, Term: n.Term(), Name: "p1", Type: KindVoted, Data: VoteResponse{Granted: true, PreVote: true}})
	require.True(t, ok)

	require.Equal(t, Candidate, n.State())
	require.EqualValues(t, 1, n.Term())
}
