// Package timestamp is the public API of the networked timestamping
// service: an in-memory, sharded digest store committed to a salted Merkle
// tree on demand. Callers Insert digests, optionally Contains-check them,
// call Freeze to publish a new commitment over everything inserted so far,
// and Prove membership of any digest that was present at the last Freeze.
//
// © 2025 merkle-timestamp authors. MIT License.
package timestamp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/merkle-timestamp/internal/digest"
	"github.com/Voskan/merkle-timestamp/internal/dispatcher"
	"github.com/Voskan/merkle-timestamp/internal/merkle"
	"github.com/Voskan/merkle-timestamp/internal/metrics"
)

// ProofPair is one level of a Merkle authentication path: the left and
// right child digests a verifier re-hashes together while climbing toward
// the root.
type ProofPair = merkle.ProofPair

// Stats is a point-in-time snapshot of store and commitment state, the
// payload behind the service's /stats endpoint.
type Stats struct {
	// Count is the number of distinct digests currently stored.
	Count uint64
	// FilledBuckets is the number of non-empty shard buckets across the store.
	FilledBuckets uint64
	// TotalCapacity is the sum of every shard's bucket-array size.
	TotalCapacity uint64
	// TreeSize is the node count of the last-published Merkle tree (0 if none).
	TreeSize int
	// Root is the last-published commitment root, if any.
	Root Digest
	// HasRoot reports whether Root is meaningful (false before the first Freeze).
	HasRoot bool
	// LastUpdateUnixSeconds is the Unix second of the last Freeze, if any.
	LastUpdateUnixSeconds int64
	// HasLastUpdate reports whether LastUpdateUnixSeconds is meaningful.
	HasLastUpdate bool
	// ShardCount is the configured number of shard workers.
	ShardCount int
}

// Service is the store plus its commitment, wired together with the
// configured salt, logger, and metrics sink. The zero value is not usable;
// construct with New.
type Service struct {
	disp       *dispatcher.Dispatcher
	commitment *merkle.Commitment
	salt       Digest
	logger     *zap.Logger
	sink       metrics.Sink
}

// New constructs a Service. Shard workers start immediately; callers must
// eventually call Close to stop them.
func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sink := metrics.New(cfg.registry)

	disp, err := dispatcher.New(dispatcher.Config{
		Shards:     cfg.shards,
		IndexWidth: cfg.indexWidth,
	}, cfg.logger, sink)
	if err != nil {
		return nil, err
	}

	return &Service{
		disp:       disp,
		commitment: merkle.NewCommitment(),
		salt:       cfg.salt,
		logger:     cfg.logger,
		sink:       sink,
	}, nil
}

// Insert adds d to the store. The store indexes and holds the salted value
// L(d) = H(salt‖d), never the raw digest — this is the spec's required
// variant whenever a non-zero salt is configured, because it binds bucket
// placement to the salt and defeats bucket-balance attacks from a party
// that doesn't know it. With the default all-zero salt this degenerates to
// a fixed public transform, not a security property, but the store still
// never special-cases salt==zero: one code path either way.
//
// Insert is idempotent: inserting the same digest twice leaves the store
// unchanged the second time. It does not report whether d was new or a
// duplicate; the returned error only ever reflects a failure to deliver the
// request to its owning shard (a cancelled context or a dead worker).
func (s *Service) Insert(ctx context.Context, d Digest) error {
	return s.disp.Insert(ctx, saltedLeaf(s.salt, d))
}

// Contains reports whether d is currently present in the store. It reflects
// live insertions, independent of whether a Freeze has happened since.
func (s *Service) Contains(ctx context.Context, d Digest) (bool, error) {
	return s.disp.Contains(ctx, saltedLeaf(s.salt, d))
}

// Freeze takes a snapshot of every digest currently stored — already salted
// at Insert time — and builds a fresh Merkle tree directly over it in
// globally sorted order, then publishes the result as the new commitment.
// The previous commitment remains readable to concurrent Root/Prove callers
// until this completes.
func (s *Service) Freeze(ctx context.Context) error {
	leaves, err := s.disp.Snapshot(ctx)
	if err != nil {
		return err
	}

	s.commitment.Freeze(s.salt, leaves, time.Now().Unix())
	s.sink.IncFreeze()
	s.sink.SetTreeSize(s.commitment.Size())
	s.logger.Info("froze commitment", zap.Int("leaves", len(leaves)), zap.Int("tree_size", s.commitment.Size()))
	return nil
}

// Prove returns the authentication path proving leaf's membership in the
// most recently published tree. ok is false if leaf was never salted into
// that tree — either because it was inserted after the last Freeze, or
// because it was never inserted at all.
func (s *Service) Prove(ctx context.Context, leaf Digest) (path []ProofPair, ok bool) {
	path, ok = s.commitment.Prove(saltedLeaf(s.salt, leaf))
	if ok {
		s.sink.IncProveHit()
	} else {
		s.sink.IncProveMiss()
	}
	return path, ok
}

// Root returns the current commitment root, or false if Freeze has never
// been called or the store was empty at the last Freeze.
func (s *Service) Root() (Digest, bool) {
	return s.commitment.Root()
}

// Size returns the node count of the last-published tree, 0 if none.
func (s *Service) Size() int {
	return s.commitment.Size()
}

// LastUpdateUnixSeconds returns the Unix second of the last Freeze, or
// false if Freeze has never been called.
func (s *Service) LastUpdateUnixSeconds() (int64, bool) {
	return s.commitment.LastUpdateUnixSeconds()
}

// Stats aggregates store and commitment state for reporting. It issues a
// fan-out to every shard and so, like Count and FilledBuckets, can fail if
// ctx is cancelled or a shard worker has died.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	count, err := s.disp.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	filled, err := s.disp.FilledBuckets(ctx)
	if err != nil {
		return Stats{}, err
	}

	root, hasRoot := s.commitment.Root()
	updatedAt, hasUpdate := s.commitment.LastUpdateUnixSeconds()

	return Stats{
		Count:                 count,
		FilledBuckets:         filled,
		TotalCapacity:         s.disp.TotalCapacity(),
		TreeSize:              s.commitment.Size(),
		Root:                  root,
		HasRoot:               hasRoot,
		LastUpdateUnixSeconds: updatedAt,
		HasLastUpdate:         hasUpdate,
		ShardCount:            s.disp.ShardCount(),
	}, nil
}

// Close stops every shard worker goroutine. Pending Insert/Contains/Freeze
// operations queued before Close are drained first; anything submitted
// afterward fails.
func (s *Service) Close() {
	s.disp.Close()
}

// saltedLeaf computes L(d) = H(salt || d), the value actually stored,
// indexed, and committed. Insert/Contains/Prove all funnel through this so
// the store, the bucket index, and the tree agree on one value per digest.
func saltedLeaf(salt, d Digest) Digest {
	return digest.Sum512(salt.Bytes(), d.Bytes())
}
