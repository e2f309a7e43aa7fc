package timestamp

// config.go defines the internal configuration object and the functional
// options New() accepts — the same shape as arena-cache's pkg/config.go:
// all fields get sensible defaults in defaultConfig(), options capture plain
// values (index width, shard count, salt) or external collaborators
// (registry, logger), and the struct itself is never exposed so future
// fields stay backward compatible.
//
// © 2025 merkle-timestamp authors. MIT License.

import (
	"crypto/rand"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Voskan/merkle-timestamp/internal/digest"
)

// DefaultIndexWidth matches the reference deployment's bucket-array width.
const DefaultIndexWidth = 28

// DefaultPrefixWidth is the bit offset at which a single-shard
// configuration starts reading for bucket indexing. With more shards the
// offset is ceil(log2(shards)), derived by the dispatcher; this constant is
// not used by New.
const DefaultPrefixWidth = 0

// DefaultShardCount matches the reference deployment's worker count.
const DefaultShardCount = 8

// Option configures a Service at construction time.
type Option func(*config)

type config struct {
	indexWidth int
	shards     int
	salt       Digest
	logger     *zap.Logger
	registry   *prometheus.Registry
}

func defaultConfig() *config {
	return &config{
		indexWidth: DefaultIndexWidth,
		shards:     DefaultShardCount,
		salt:       Digest{}, // deterministic mode: all-zero salt
		logger:     zap.NewNop(),
		registry:   nil, // metrics are opt-in
	}
}

// WithIndexWidth overrides the per-shard bucket-array width I (must be in
// [1, 28]).
func WithIndexWidth(i int) Option {
	return func(c *config) { c.indexWidth = i }
}

// WithShardCount overrides the worker/shard count S (must be a power of two).
func WithShardCount(s int) Option {
	return func(c *config) { c.shards = s }
}

// WithSalt sets an explicit 512-bit salt, binding every leaf and internal
// node hash to this value. Passing the zero digest is deterministic mode.
func WithSalt(salt Digest) Option {
	return func(c *config) { c.salt = salt }
}

// WithRandomSalt generates a cryptographically random salt at construction
// time ("privacy mode"): bucket distribution and the Merkle commitment are
// both bound to a value no external party can predict.
func WithRandomSalt() Option {
	return func(c *config) {
		var s Digest
		if _, err := rand.Read(s[:]); err != nil {
			// crypto/rand.Read only fails if the OS entropy source is
			// unavailable, which is itself a fatal condition for a service
			// whose entire identity is a random salt.
			panic("timestamp: failed to generate random salt: " + err.Error())
		}
		c.salt = s
	}
}

// WithLogger plugs an external zap.Logger. The service never logs on the
// Insert/Contains hot path; only Freeze completion and worker failures do.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection, registered against reg.
// Passing nil (the default) disables metrics entirely — the hot path never
// pays for a metric update it has no sink for.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

var (
	errInvalidIndexWidth = errors.New("timestamp: index width must be in [1, 28]")
	errInvalidShards     = errors.New("timestamp: shard count must be a power of two")
	errPrefixOverflow    = errors.New("timestamp: shard bits + index width must not exceed 512")
)

func (c *config) validate() error {
	if c.indexWidth < 1 || c.indexWidth > 28 {
		return errInvalidIndexWidth
	}
	if c.shards <= 0 || c.shards&(c.shards-1) != 0 {
		return errInvalidShards
	}
	shardBits := ceilLog2(c.shards)
	if shardBits+c.indexWidth > digest.Size*8 {
		return errPrefixOverflow
	}
	return nil
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
