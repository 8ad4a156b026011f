// Package raft implements the core of a Raft consensus node: the
// per-node state machine, timer discipline, and message-handling
// protocol that let a cluster elect a single leader and agree on a
// monotonic term number. Log replication, snapshotting, and transport
// are external collaborators (see the membership and transport packages
// and the Outbound/Inbound seam in this package); this package only
// implements the hard, safety-critical part.
package raft

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pingcap/log"

	"github.com/mcprohosting/raft/membership"
)

// Node is a single Raft participant. Every exported method is safe for
// concurrent use; internally all state transitions are serialized behind
// a single mutex so the invariants in SPEC_FULL.md §3 hold at every
// observation point (§5: single-threaded cooperative scheduling model).
type Node struct {
	mu sync.Mutex

	name     string
	state    State
	term     uint64
	leader   *string // nil: absent (construction only); non-nil "": in-flight
	votedFor *string

	granted int

	// preVoting/preVoteGranted back the optional SPEC_FULL.md §12 pre-vote
	// guard (Options.PreVote); both are zero/unused when it is disabled.
	preVoting      bool
	preVoteGranted int

	opts       Options
	membership membership.Provider
	timers     *timerRegistry
	bus        *bus
	out        Outbound
	tracer     opentracing.Tracer

	stopped bool

	termChanges      int64
	electionsStarted int64
	votesGranted     int64
}

// Delta is a partial update over (term, leader, state), applied
// field-by-field in that order by change; see SPEC_FULL.md §4.5. A nil
// field means "leave unchanged".
type Delta struct {
	Term   *uint64
	Leader *string
	State  *State
}

// New constructs a node in the initial FOLLOWER state with term 0 and no
// known leader, and arms its startup watchdog. Invalid options panic,
// mirroring the teacher's newRaft, which panics on a failed
// Config.validate rather than returning a partially-built node.
func New(opts Options) *Node {
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		panic(err.Error())
	}

	mp := o.Membership
	if mp == nil {
		mp = membership.Solo(o.ID)
	}
	tracer := o.Tracer
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}

	n := &Node{
		name:       o.ID,
		state:      Follower,
		opts:       o,
		membership: mp,
		tracer:     tracer,
		bus:        newBus(),
		timers:     newTimerRegistry(o.Clock),
	}

	// Derived reactions (SPEC_FULL.md §4.5 / §9): the node observes its
	// own bus rather than special-casing these effects inside change.
	n.bus.OnTermChange(func(e TermChange) {
		n.votedFor = nil
		n.granted = 0
		atomic.AddInt64(&n.termChanges, 1)
	})
	n.bus.OnStateChange(func(StateChange) {
		n.timers.clear()
		n.rearmWatchdogLocked(nil)
	})
	n.bus.OnVote(func(e VoteEvent) {
		if e.Granted {
			atomic.AddInt64(&n.votesGranted, 1)
		}
	})

	n.rearmWatchdogLocked(nil) // scenario 1 (§8): heartbeat timer armed on startup

	log.Info(fmt.Sprintf("%s constructed at term %d as %s", n.name, n.term, n.state))

	return n
}

// Name returns this node's stable identity.
func (n *Node) Name() string { return n.name }

// State returns the node's current role.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Term returns the node's current term.
func (n *Node) Term() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.term
}

// Leader returns the peer this node currently believes is leader. A nil
// result means "absent": no leader has been recorded since construction;
// a non-nil result pointing at "" means an election is in-flight and no
// leader is known yet.
func (n *Node) Leader() *string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leader
}

// VotedFor returns the candidate this node has voted for in its current
// term, or nil if it has not voted yet.
func (n *Node) VotedFor() *string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.votedFor
}

// Granted returns the number of yes-votes this node has received while a
// candidate. It is only meaningful in CANDIDATE; it is reset to 0 on a
// term change and otherwise keeps its last tally (e.g. after winning).
func (n *Node) Granted() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.granted
}

// Stopped reports whether End has already run.
func (n *Node) Stopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

// TermChanges, ElectionsStarted and VotesGranted are read-only
// instrumentation counters (SPEC_FULL.md §12); they are purely additive
// and never consulted by any state rule.
func (n *Node) TermChanges() int64      { return atomic.LoadInt64(&n.termChanges) }
func (n *Node) ElectionsStarted() int64 { return atomic.LoadInt64(&n.electionsStarted) }
func (n *Node) VotesGranted() int64     { return atomic.LoadInt64(&n.votesGranted) }

// Attach wires the transport's outbound sink. Until it is called, Write
// returns false, matching the source's unwired write stub (SPEC_FULL.md
// §9 open question), and so does Broadcast whenever the membership holds
// at least one peer other than this node (with none, it returns true).
func (n *Node) Attach(out Outbound) {
	n.mu.Lock()
	n.out = out
	n.mu.Unlock()
}

// Event registration. Handlers run synchronously, on whatever goroutine
// triggered the emission, while the node's own mutex is held — do not
// call back into this Node from a handler.
func (n *Node) OnTermChange(fn func(TermChange))       { n.bus.OnTermChange(fn) }
func (n *Node) OnStateChange(fn func(StateChange))     { n.bus.OnStateChange(fn) }
func (n *Node) OnLeaderChange(fn func(LeaderChange))   { n.bus.OnLeaderChange(fn) }
func (n *Node) OnHeartbeatTimeout(fn func())           { n.bus.OnHeartbeatTimeout(fn) }
func (n *Node) OnVote(fn func(VoteEvent))              { n.bus.OnVote(fn) }
func (n *Node) OnData(fn func(Packet))                 { n.bus.OnData(fn) }

// Read ingests a packet produced by the transport. A value that is not a
// well-formed Packet (e.g. an unknown Kind, or a zero-value sender name)
// is silently dropped, per SPEC_FULL.md §4.3 and §7.
func (n *Node) Read(p Packet) bool {
	span := n.tracer.StartSpan("raft.read",
		opentracing.Tag{Key: "raft.node", Value: n.name},
		opentracing.Tag{Key: "raft.term", Value: p.Term},
		opentracing.Tag{Key: "raft.kind", Value: p.Type.String()},
	)
	defer span.Finish()

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.readLocked(p)
}

func (n *Node) readLocked(p Packet) bool {
	if n.stopped {
		return false
	}
	if !p.valid() {
		return false
	}

	n.bus.emitData(p)

	if p.Type == KindVote {
		if vr, ok := p.Data.(VoteRequest); ok && vr.PreVote {
			return n.handlePreVoteRequestLocked(p, vr)
		}
	}
	if p.Type == KindVoted {
		if vres, ok := p.Data.(VoteResponse); ok && vres.PreVote {
			return n.handlePreVoteResponseLocked(p, vres)
		}
	}

	prevState := n.state

	// Rule A: term reconciliation (Raft §5.1).
	switch {
	case p.Term > n.term:
		newTerm := p.Term
		unknown := ""
		n.changeLocked(Delta{Term: &newTerm, State: statePtr(Follower), Leader: &unknown})
	case p.Term < n.term:
		return false // stale sender, drop without further processing
	}

	// Rule B: leader recognition (Raft §5.2). Evaluated against the state
	// the packet arrived in, not whatever Rule A may have just produced,
	// so a higher-term heartbeat from the new leader is still recorded as
	// the leader rather than left merely "unknown".
	if p.State == Leader && prevState != Follower {
		name := p.Name
		n.changeLocked(Delta{State: statePtr(Follower), Leader: &name})
	}

	// Rule C: kind dispatch.
	switch p.Type {
	case KindHeartbeat:
		n.handleHeartbeatLocked(p)
	case KindVote:
		n.handleVoteLocked(p)
	case KindVoted:
		n.handleVotedLocked(p)
	case KindRPC:
		// reserved for a future client-command layer; no-op.
	}
	return true
}

func (n *Node) handleHeartbeatLocked(p Packet) {
	if p.State != Leader {
		return
	}
	if n.leader == nil || *n.leader != p.Name {
		name := p.Name
		n.changeLocked(Delta{Leader: &name})
	}
	var override *time.Duration
	if hp, ok := p.Data.(HeartbeatPayload); ok && hp.Duration > 0 {
		d := time.Duration(hp.Duration) * time.Millisecond
		override = &d
	}
	n.rearmWatchdogLocked(override)
}

func (n *Node) handleVoteLocked(p Packet) {
	// By the time control reaches here Rule A has already guaranteed
	// p.Term == n.term (it dropped lower terms and absorbed higher ones).
	// The branches below transcribe SPEC_FULL.md §4.4's vote rule as
	// written, including the term comparisons Rule A makes unreachable in
	// practice; they are kept for fidelity and as a defensive backstop.
	if p.Term < n.term {
		n.replyLocked(p.Name, KindVoted, VoteResponse{Granted: false})
		n.bus.emitVote(VoteEvent{Packet: p, Granted: false})
		return
	}
	if p.Term > n.term {
		newTerm := p.Term
		n.changeLocked(Delta{Term: &newTerm}) // clears voted-for via the term-change reaction (I2)
	}
	if n.votedFor != nil && *n.votedFor != p.Name {
		n.replyLocked(p.Name, KindVoted, VoteResponse{Granted: false})
		n.bus.emitVote(VoteEvent{Packet: p, Granted: false})
		return
	}
	name := p.Name
	n.votedFor = &name
	n.replyLocked(p.Name, KindVoted, VoteResponse{Granted: true})
	n.bus.emitVote(VoteEvent{Packet: p, Granted: true})
}

func (n *Node) handleVotedLocked(p Packet) {
	if n.state != Candidate {
		return
	}
	if p.Term > n.term {
		newTerm := p.Term
		n.changeLocked(Delta{Term: &newTerm, State: statePtr(Follower)})
		return
	}
	if vr, ok := p.Data.(VoteResponse); ok && vr.Granted && p.Term == n.term {
		n.granted++
		n.maybeBecomeLeaderLocked()
	}
}

// handlePreVoteRequestLocked answers a pre-vote probe without mutating
// term, state, or voted-for: that is the entire point of the guard
// (SPEC_FULL.md §12). The requester's own term/state still passes through
// its envelope fields normally; this branch exits before Rule A/B run so
// a probe can never itself cause a disruptive term bump in the cluster.
func (n *Node) handlePreVoteRequestLocked(p Packet, vr VoteRequest) bool {
	grant := vr.ProspectiveTerm > n.term && n.votedFor == nil
	n.replyLocked(p.Name, KindVoted, VoteResponse{Granted: grant, PreVote: true})
	return true
}

func (n *Node) handlePreVoteResponseLocked(p Packet, vres VoteResponse) bool {
	if !n.preVoting || p.Term != n.term {
		return true // no round in progress, or a reply to a stale round
	}
	if vres.Granted {
		n.preVoteGranted++
		if n.preVoteGranted >= n.quorumLocked() {
			n.preVoting = false
			n.actuallyPromoteLocked()
		}
	}
	return true
}

// change applies a partial update over (term, leader, state) in that
// order, emitting a synchronous "<field> change" event for each field
// that actually differs from its current value (SPEC_FULL.md §4.5).
func (n *Node) changeLocked(d Delta) {
	if d.Term != nil && *d.Term != n.term {
		old := n.term
		n.term = *d.Term
		n.bus.emitTermChange(TermChange{New: *d.Term, Old: old})
	}
	if d.Leader != nil && !leaderEqual(n.leader, d.Leader) {
		old := n.leader
		n.leader = d.Leader
		n.bus.emitLeaderChange(LeaderChange{New: d.Leader, Old: old})
	}
	if d.State != nil && *d.State != n.state {
		old := n.state
		n.state = *d.State
		n.bus.emitStateChange(StateChange{New: *d.State, Old: old})
	}
}

func leaderEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// watchdogTimerName reports which named timer currently backs this
// node's watchdog: CANDIDATEs race the clock under "election" while they
// await a tally; FOLLOWERs and LEADERs share "heartbeat" (waiting for the
// leader's keep-alive, or driving it). At most one is ever armed (I4).
func (n *Node) watchdogTimerName() string {
	if n.state == Candidate {
		return "election"
	}
	return "heartbeat"
}

// rearmWatchdogLocked (re)schedules the node's current watchdog, per
// Heartbeat's contract in SPEC_FULL.md §4.6: adjust it in place if
// already pending, otherwise schedule fresh. explicit overrides the
// generated duration when non-nil (used when a leader's heartbeat
// payload carries one).
func (n *Node) rearmWatchdogLocked(explicit *time.Duration) {
	name := n.watchdogTimerName()

	var d time.Duration
	switch {
	case explicit != nil:
		d = *explicit
	case n.state == Leader:
		d = randomTimeout(n.opts.heartbeatBounds())
	default:
		d = randomTimeout(n.opts.electionBounds())
	}

	if n.timers.active(name) {
		_ = n.timers.adjust(name, d)
		return
	}
	_ = n.timers.set(name, d, func() { n.onWatchdogFire(name) })
}

func (n *Node) onWatchdogFire(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	if name != n.watchdogTimerName() {
		return // stale fire racing a role change that already cleared it
	}
	if n.state == Leader {
		n.broadcastLocked(KindHeartbeat, HeartbeatPayload{})
		n.rearmWatchdogLocked(nil)
		return
	}
	// A Candidate's watchdog is its election timer, not a heartbeat
	// watchdog (§4.6 vs §4.7): its expiry just re-invokes promote, with
	// no heartbeat-timeout event.
	if n.state != Candidate {
		n.bus.emitHeartbeatTimeout()
	}
	n.promoteLocked()
}

// Heartbeat (re)arms the node's watchdog timer. If one is already
// pending it is adjusted in place to the given (or a freshly generated)
// duration and left to fire on its own; otherwise a new one-shot timer is
// scheduled (SPEC_FULL.md §4.6).
func (n *Node) Heartbeat(d ...time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	var explicit *time.Duration
	if len(d) > 0 {
		explicit = &d[0]
	}
	n.rearmWatchdogLocked(explicit)
}

// Promote transitions this node to CANDIDATE, starts a new term, votes
// for itself, and solicits votes from its peers (SPEC_FULL.md §4.7). When
// Options.PreVote is set it first runs a non-disruptive probe round and
// only commits to a real term bump once that probe would plausibly win.
func (n *Node) Promote() {
	n.mu.Lock()
	defer n.mu.Unlock()

	span := n.tracer.StartSpan("raft.promote",
		opentracing.Tag{Key: "raft.node", Value: n.name},
		opentracing.Tag{Key: "raft.term", Value: n.term},
	)
	defer span.Finish()

	n.promoteLocked()
}

func (n *Node) promoteLocked() {
	if n.stopped {
		return
	}
	if n.opts.PreVote {
		n.startPreVoteLocked()
		return
	}
	n.actuallyPromoteLocked()
}

func (n *Node) startPreVoteLocked() {
	n.preVoting = true
	n.preVoteGranted = 1 // counts self
	req := VoteRequest{PreVote: true, ProspectiveTerm: n.term + 1}
	n.broadcastLocked(KindVote, req)
	if n.preVoteGranted >= n.quorumLocked() {
		// Single-member cluster (or a quorum of one): the probe already
		// won against no one but ourselves; proceed immediately.
		n.preVoting = false
		n.actuallyPromoteLocked()
	}
}

func (n *Node) actuallyPromoteLocked() {
	wasCandidate := n.state == Candidate
	newTerm := n.term + 1
	empty := ""
	n.changeLocked(Delta{Term: &newTerm, State: statePtr(Candidate), Leader: &empty})
	if wasCandidate {
		// No state change fired, so re-arm the election timer here.
		n.rearmWatchdogLocked(nil)
	}

	self := n.name
	n.votedFor = &self
	n.granted = 1
	atomic.AddInt64(&n.electionsStarted, 1)

	n.broadcastLocked(KindVote, VoteRequest{})
	n.maybeBecomeLeaderLocked()
}

func (n *Node) maybeBecomeLeaderLocked() {
	if n.state != Candidate {
		return
	}
	if n.granted >= n.quorumLocked() {
		self := n.name
		n.changeLocked(Delta{Leader: &self, State: statePtr(Leader)})
	}
}

// quorumLocked is the canonical Raft majority, floor(N/2)+1.
func (n *Node) quorumLocked() int {
	size := 1
	if n.membership != nil {
		size = n.membership.Size()
	}
	if size < 1 {
		size = 1
	}
	return size/2 + 1
}

func (n *Node) packetLocked(kind Kind, data interface{}) Packet {
	return Packet{State: n.state, Term: n.term, Name: n.name, Type: kind, Data: data}
}

// Write hands a single packet to the transport's outbound sink, addressed
// to a specific peer. It returns false (without panicking) until Attach
// has wired a transport, preserving the source's unwired-stub contract.
func (n *Node) Write(to string, p Packet) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return false
	}
	return n.writeLocked(to, p)
}

func (n *Node) writeLocked(to string, p Packet) bool {
	if n.out == nil {
		return false
	}
	return n.out.Send(to, p)
}

func (n *Node) replyLocked(to string, kind Kind, data interface{}) bool {
	return n.writeLocked(to, n.packetLocked(kind, data))
}

// Broadcast constructs a packet carrying the node's current state/term
// and hands it to the outbound sink once per peer (SPEC_FULL.md §4.8).
// The core never enumerates peers on its own outside this call.
func (n *Node) Broadcast(kind Kind, data interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return false
	}
	return n.broadcastLocked(kind, data)
}

func (n *Node) broadcastLocked(kind Kind, data interface{}) bool {
	p := n.packetLocked(kind, data)
	ok := true
	for _, peer := range n.membership.Peers() {
		if peer == n.name {
			continue
		}
		if !n.writeLocked(peer, p) {
			ok = false
		}
	}
	return ok
}

// End stops the node: every timer is cancelled, every listener is
// unregistered, and the role becomes STOPPED. It returns false if the
// node was already stopped; every subsequent Read/Write/Broadcast/End
// call is then a no-op returning false.
func (n *Node) End() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return false
	}
	if n.state == Leader {
		// A graceful courtesy, not a protocol requirement (SPEC_FULL.md
		// §12): let an attached transport learn the leader is gone before
		// followers have to time it out for themselves.
		self := n.name
		n.bus.emitLeaderChange(LeaderChange{New: nil, Old: &self})
	}
	n.timers.end()
	n.bus.reset()
	n.state = Stopped
	n.stopped = true

	log.Info(fmt.Sprintf("%s stopped", n.name))
	return true
}

func statePtr(s State) *State { return &s }
