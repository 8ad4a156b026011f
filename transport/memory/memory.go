// Package memory implements an in-process loopback transport: nodes
// registered on the same Bus can exchange packets without sockets. It
// exists for tests (cmd/raftnode uses transport/tcp), grounded on the teacher's pattern
// of handing a collaborator a narrow channel-like interface and feeding
// it off the caller's goroutine (kv/raftstore/peer.go's `sched chan<-
// worker.Task`, a queue the producer hands work to and never blocks
// waiting on the result of).
package memory

import (
	"sync"

	"github.com/mcprohosting/raft/raft"
)

// Bus is a goroutine-safe loopback registry: Send looks the destination up
// by name and hands it the packet on a new goroutine, never on the
// caller's own. This matters: a node broadcasting while it holds its own
// lock (raft.Node.Promote, mid-election) can have that broadcast answered
// by a recipient in the very same call chain (vote request in, vote
// response out); delivering synchronously would re-enter the sender's
// non-reentrant mutex on its own goroutine and deadlock. Every real
// transport (e.g. transport/tcp) is inherently asynchronous in the same
// way — its reader loop lives on its own goroutine — so this keeps the
// loopback bus's scheduling honest with what a socket would do.
// It satisfies raft.Outbound for every node registered on it.
type Bus struct {
	mu    sync.RWMutex
	nodes map[string]raft.Inbound
}

// NewBus returns an empty loopback bus.
func NewBus() *Bus {
	return &Bus{nodes: make(map[string]raft.Inbound)}
}

// Register adds a node to the bus under name and attaches the bus to it
// as its outbound sink, so Node.Broadcast/Write routes through here.
func (b *Bus) Register(name string, n *raft.Node) {
	b.mu.Lock()
	b.nodes[name] = n
	b.mu.Unlock()
	n.Attach(b)
}

// Deregister removes a node from the bus; subsequent sends to its name
// fail silently, as if the peer were unreachable.
func (b *Bus) Deregister(name string) {
	b.mu.Lock()
	delete(b.nodes, name)
	b.mu.Unlock()
}

// Send implements raft.Outbound: it dispatches p to the named node's Read
// method on a new goroutine if registered, and reports false (never
// panics) otherwise — matching a real transport's "peer unreachable"
// outcome. The bool reports only that the peer was reachable and the
// packet handed off, not what Read did with it, the same contract
// transport/tcp's Send has (it reports encode success, not the remote's
// processing result).
func (b *Bus) Send(to string, p raft.Packet) bool {
	b.mu.RLock()
	dst, ok := b.nodes[to]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	go dst.Read(p)
	return true
}
