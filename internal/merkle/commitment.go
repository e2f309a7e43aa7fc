package merkle

import (
	"sync"

	"github.com/Voskan/merkle-timestamp/internal/digest"
)

// Commitment is the mutable, atomically-published pointer to the
// last-frozen Tree plus the wall-clock second it was built. Readers always
// see either the previous tree or the new one in full — never a partial
// build — because the write lock is held only while swapping the pointer,
// after the new tree has already been constructed.
type Commitment struct {
	freezeMu  sync.Mutex
	mu        sync.RWMutex
	tree      *Tree
	updatedAt int64
	hasTree   bool
}

// NewCommitment returns a Commitment with no tree published yet.
func NewCommitment() *Commitment {
	return &Commitment{}
}

// Freeze builds a fresh tree over leaves and atomically replaces the
// published tree, recording nowUnix as its update time. Concurrent Freeze
// calls are serialised by freezeMu; readers observe the old tree until the
// swap under mu completes.
func (c *Commitment) Freeze(salt digest.Digest, leaves []digest.Digest, nowUnix int64) {
	c.freezeMu.Lock()
	defer c.freezeMu.Unlock()
	tree := Build(salt, leaves)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = tree
	c.updatedAt = nowUnix
	c.hasTree = true
}

// Root returns the current root, or false if no tree has ever been
// published or the published tree is empty.
func (c *Commitment) Root() (digest.Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasTree {
		return digest.Digest{}, false
	}
	return c.tree.Root()
}

// Size returns the node count of the current tree, 0 if none published.
func (c *Commitment) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasTree {
		return 0
	}
	return c.tree.Size()
}

// LastUpdateUnixSeconds returns the Unix second of the last successful
// Freeze, or false if Freeze has never run.
func (c *Commitment) LastUpdateUnixSeconds() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasTree {
		return 0, false
	}
	return c.updatedAt, true
}

// Prove returns the authentication path for leaf against the currently
// published tree. A digest inserted into the store after the last Freeze
// is not yet a member of any tree and so yields ok=false — proof freshness
// is the caller's responsibility, per the service's Freeze-then-Prove model.
func (c *Commitment) Prove(leaf digest.Digest) (path []ProofPair, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasTree {
		return nil, false
	}
	return c.tree.Prove(leaf)
}
