// Package merkle builds the balanced, salt-bound Merkle tree the
// timestamping service commits to on Freeze, and answers authentication-path
// queries against it. Trees are immutable once built; Commitment (see
// commitment.go) is the mutable, concurrency-safe pointer that publishes them.
//
// © 2025 merkle-timestamp authors. MIT License.
package merkle

import (
	"github.com/Voskan/merkle-timestamp/internal/digest"
)

// ProofPair is one level of an authentication path: the left and right
// sibling at that level. A verifier hashes H(salt || Left || Right) at each
// level from leaf to root and compares the final value to the published root.
type ProofPair struct {
	Left  digest.Digest
	Right digest.Digest
}

// Tree is an immutable, heap-indexed balanced binary Merkle tree.
//
// nodes is laid out exactly as spec'd: for leaf count N, d = ceil(log2 N),
// nodes has 2^(d+1)-1 entries, leaves occupy [2^d-1, 2^d-1+N), the remaining
// leaf slots are the zero digest, and internal node k's children live at
// 2k+1 and 2k+2.
type Tree struct {
	nodes     []digest.Digest
	depth     int
	leafCount int
	// leafIndex maps a leaf's stored value (the salted digest) to its
	// position within the leaf range, so Prove doesn't need a linear scan.
	leafIndex map[digest.Digest]int
}

// Build constructs a Tree over leaves, which must already be the final
// per-leaf value to store (the service salts every digest at insert time,
// the all-zero salt included; Build just hashes what it's given together
// with salt at every internal level).
//
// leaves need not be sorted by the caller for correctness, but the service
// always passes the dispatcher's sorted snapshot so that repeated Freeze
// calls over an unchanged snapshot reproduce the same tree.
func Build(salt digest.Digest, leaves []digest.Digest) *Tree {
	n := len(leaves)
	if n == 0 {
		return &Tree{}
	}

	depth := ceilLog2(n)
	size := (1 << uint(depth+1)) - 1
	nodes := make([]digest.Digest, size)

	leafStart := (1 << uint(depth)) - 1
	copy(nodes[leafStart:leafStart+n], leaves)
	// Remaining leaf slots stay digest.Zero (the Go zero value already).

	leafIndex := make(map[digest.Digest]int, n)
	for i, l := range leaves {
		leafIndex[l] = i
	}

	saltBytes := salt.Bytes()
	for level := depth - 1; level >= 0; level-- {
		levelStart := (1 << uint(level)) - 1
		childStart := (1 << uint(level+1)) - 1
		count := 1 << uint(level)
		for i := 0; i < count; i++ {
			parent := levelStart + i
			left := childStart + 2*i
			right := left + 1
			nodes[parent] = digest.Sum512(saltBytes, nodes[left].Bytes(), nodes[right].Bytes())
		}
	}

	return &Tree{
		nodes:     nodes,
		depth:     depth,
		leafCount: n,
		leafIndex: leafIndex,
	}
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	bits := 0
	v := n - 1
	for v > 0 {
		bits++
		v >>= 1
	}
	return bits
}

// Root returns the tree's root digest, or false for an empty tree.
func (t *Tree) Root() (digest.Digest, bool) {
	if t.leafCount == 0 {
		return digest.Digest{}, false
	}
	return t.nodes[0], true
}

// Size returns the number of nodes in the tree (0 for an empty tree).
func (t *Tree) Size() int {
	return len(t.nodes)
}

// LeafCount returns the number of real (non-padding) leaves.
func (t *Tree) LeafCount() int {
	return t.leafCount
}

// Depth returns ceil(log2(LeafCount())); 0 for empty or single-leaf trees.
func (t *Tree) Depth() int {
	return t.depth
}

// Prove returns the authentication path for leaf, walking from the leaf's
// sibling pair up to (but not including) the root. The path has length
// Depth(); for a single-leaf tree it is empty. ok is false if leaf is not a
// member of this tree.
func (t *Tree) Prove(leaf digest.Digest) (path []ProofPair, ok bool) {
	if t.leafCount == 0 {
		return nil, false
	}
	i, found := t.leafIndex[leaf]
	if !found {
		return nil, false
	}

	leafStart := (1 << uint(t.depth)) - 1
	current := leafStart + i

	path = make([]ProofPair, 0, t.depth)
	for level := t.depth; level > 0; level-- {
		levelStart := (1 << uint(level)) - 1
		offset := current - levelStart
		pairBase := levelStart + (offset &^ 1)
		path = append(path, ProofPair{Left: t.nodes[pairBase], Right: t.nodes[pairBase+1]})
		current = (current - 1) / 2
	}
	return path, true
}
