package raft

import (
	"math/rand"
	"sync"
	"time"
)

// lockedRand wraps rand.Rand so multiple nodes in the same process can
// safely draw randomized timeouts concurrently.
type lockedRand struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func (r *lockedRand) Int63n(n int64) int64 {
	r.mu.Lock()
	v := r.rand.Int63n(n)
	r.mu.Unlock()
	return v
}

var globalRand = &lockedRand{
	rand: rand.New(rand.NewSource(time.Now().UnixNano())),
}

// bounds is an inclusive [min, max] duration range for a timeout class.
type bounds struct {
	min, max time.Duration
}

// randomTimeout returns a uniformly random duration in [b.min, b.max].
// Cryptographic quality is unnecessary here: randomization exists only to
// stagger election timeouts across peers and prevent split votes
// (Raft §5.2), not to defend against an adversary.
func randomTimeout(b bounds) time.Duration {
	if b.max <= b.min {
		return b.min
	}
	span := int64(b.max - b.min + 1)
	return b.min + time.Duration(globalRand.Int63n(span))
}
