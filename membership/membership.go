// Package membership supplies the current set of peer nodes to the raft
// core. The core reads Size() for quorum arithmetic and Peers() in
// Node.Broadcast, which writes one packet to every member except itself.
//
// Membership changes (adding/removing peers at runtime) are out of scope
// for this package, matching the core's Non-goals.
package membership

import "sync"

// Provider reports the current peer set of a cluster.
type Provider interface {
	// Size returns the number of members, including self.
	Size() int
	// Peers returns the names of every member, including self.
	Peers() []string
}

// Static is a fixed peer set supplied at construction, the simplest
// Provider the core can size and enumerate.
type Static struct {
	mu    sync.RWMutex
	peers []string
}

// NewStatic returns a Static provider over the given peer names. The
// caller's own name should be included if it is to count toward quorum.
func NewStatic(peers ...string) *Static {
	cp := make([]string, len(peers))
	copy(cp, peers)
	return &Static{peers: cp}
}

// Solo returns a Static provider for a single-member cluster, used as the
// Node default when no Provider is configured.
func Solo(self string) *Static {
	return NewStatic(self)
}

func (s *Static) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

func (s *Static) Peers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]string, len(s.peers))
	copy(cp, s.peers)
	return cp
}

// Set replaces the peer set. It exists for tests and demos that need to
// grow a cluster; the core never calls it (membership changes are a
// Non-goal of the consensus core itself).
func (s *Static) Set(peers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append(s.peers[:0], peers...)
}
