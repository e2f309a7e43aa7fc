// Package shard implements the prefix-indexed bucket store: a single
// shard's worth of the digest space, held as an array of ordered collision
// chains. A Shard is owned exclusively by one dispatcher worker (see
// internal/dispatcher) — nothing here takes a lock, because nothing else is
// ever allowed to touch it concurrently.
//
// © 2025 merkle-timestamp authors. MIT License.
package shard

import (
	"errors"

	"github.com/Voskan/merkle-timestamp/internal/bitslice"
	"github.com/Voskan/merkle-timestamp/internal/digest"
)

// Result reports what Insert did with a digest.
type Result uint8

const (
	// Duplicate means the digest was already present; the shard is unchanged.
	Duplicate Result = iota
	// Inserted means the digest was absent and has been linked into its chain.
	Inserted
)

// MaxIndexWidth is the largest bucket-array width a shard will allocate.
// 2^28 slots already costs 2 GiB of pointers on a 64-bit machine; wider
// than that is almost certainly a misconfiguration.
const MaxIndexWidth = 28

var (
	// ErrIndexWidth is returned when indexWidth falls outside [1, MaxIndexWidth].
	ErrIndexWidth = errors.New("shard: index width must be in [1, 28]")
	// ErrPrefixRange is returned when prefixWidth+indexWidth exceeds the digest width.
	ErrPrefixRange = errors.New("shard: prefix width + index width exceeds digest width")
)

// node is one link in a bucket's ascending collision chain. Nodes are never
// mutated after linking — only created on insert and freed together with the
// whole shard.
type node struct {
	digest digest.Digest
	next   *node
}

// Shard owns 2^indexWidth buckets, each the head of a sorted digest chain.
type Shard struct {
	indexWidth  int
	prefixWidth int
	buckets     []*node
	count       uint64
	filled      uint64
}

// New allocates an empty shard. indexWidth is the bucket-array width I
// (1 <= I <= 28); prefixWidth is the bit offset P at which bucket indexing
// starts reading the digest (0 <= P, P+I <= 512).
func New(indexWidth, prefixWidth int) (*Shard, error) {
	if indexWidth < 1 || indexWidth > MaxIndexWidth {
		return nil, ErrIndexWidth
	}
	if prefixWidth < 0 || prefixWidth+indexWidth > digest.Size*8 {
		return nil, ErrPrefixRange
	}
	return &Shard{
		indexWidth:  indexWidth,
		prefixWidth: prefixWidth,
		buckets:     make([]*node, 1<<uint(indexWidth)),
	}, nil
}

// bucketIndex extracts the I-bit substring starting at bit offset P and
// packs it little-endian into an int bucket index. Construction already
// validated P+I <= 512 and I <= 28, so Extract cannot fail here.
func (s *Shard) bucketIndex(d digest.Digest) int {
	idx, _ := bitslice.Extract(d, s.prefixWidth, s.indexWidth)
	return int(idx)
}

// Insert links d into its bucket's sorted chain, rejecting duplicates.
func (s *Shard) Insert(d digest.Digest) Result {
	idx := s.bucketIndex(d)
	wasEmpty := s.buckets[idx] == nil

	var prev *node
	cur := s.buckets[idx]
	for cur != nil {
		if cur.digest == d {
			return Duplicate
		}
		if d.Less(cur.digest) {
			break
		}
		prev = cur
		cur = cur.next
	}

	n := &node{digest: d, next: cur}
	if prev == nil {
		s.buckets[idx] = n
	} else {
		prev.next = n
	}

	if wasEmpty {
		s.filled++
	}
	s.count++
	return Inserted
}

// Contains reports whether d has been inserted into this shard. It
// short-circuits once the chain passes the point d would sort at.
func (s *Shard) Contains(d digest.Digest) bool {
	idx := s.bucketIndex(d)
	for cur := s.buckets[idx]; cur != nil; cur = cur.next {
		if cur.digest == d {
			return true
		}
		if d.Less(cur.digest) {
			return false
		}
	}
	return false
}

// Snapshot returns every stored digest in ascending bucket-then-chain order.
// Each chain is sorted, so the result is sorted within each bucket. The
// bucket index packs the extracted bits least-significant-first, so bucket
// order does not follow byte order and the concatenation as a whole is not
// sorted in general; the dispatcher sorts its merged snapshot.
func (s *Shard) Snapshot() []digest.Digest {
	out := make([]digest.Digest, 0, s.count)
	for _, head := range s.buckets {
		for cur := head; cur != nil; cur = cur.next {
			out = append(out, cur.digest)
		}
	}
	return out
}

// Count returns the number of distinct digests stored.
func (s *Shard) Count() uint64 { return s.count }

// Filled returns the number of buckets with a non-empty chain.
func (s *Shard) Filled() uint64 { return s.filled }

// Capacity returns the number of bucket slots this shard was allocated.
func (s *Shard) Capacity() uint64 { return 1 << uint(s.indexWidth) }
