// Package metrics is a thin abstraction over Prometheus so the service can
// run with or without metrics enabled. When the caller supplies a
// *prometheus.Registry, labeled counters/gauges are registered and updated;
// otherwise a no-op sink is used and the hot insert/contains path does not
// pay for metric updates. Modeled directly on arena-cache's pkg/metrics.go,
// generalized from cache hit/miss/eviction counters to the store's own
// ingest/query/freeze counters.
//
// © 2025 merkle-timestamp authors. MIT License.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the interface the Dispatcher and the timestamp Service report
// through. It is intentionally narrow: only the counters those two
// components produce.
type Sink interface {
	IncInsertNew(shard int)
	IncInsertDuplicate(shard int)
	IncContainsHit(shard int)
	IncContainsMiss(shard int)
	IncFreeze()
	IncProveHit()
	IncProveMiss()
	SetTreeSize(size int)
	SetBucketsFilled(shard int, filled uint64)
}

// Noop is a Sink that discards everything; the default when metrics are
// not configured.
type Noop struct{}

func (Noop) IncInsertNew(int)             {}
func (Noop) IncInsertDuplicate(int)       {}
func (Noop) IncContainsHit(int)           {}
func (Noop) IncContainsMiss(int)          {}
func (Noop) IncFreeze()                   {}
func (Noop) IncProveHit()                 {}
func (Noop) IncProveMiss()                {}
func (Noop) SetTreeSize(int)              {}
func (Noop) SetBucketsFilled(int, uint64) {}

// prom is the Prometheus-backed Sink implementation.
type prom struct {
	insertsNew       *prometheus.CounterVec
	insertsDup       *prometheus.CounterVec
	containsHits     *prometheus.CounterVec
	containsMisses   *prometheus.CounterVec
	freezes          prometheus.Counter
	proveHits        prometheus.Counter
	proveMisses      prometheus.Counter
	treeSize         prometheus.Gauge
	bucketsFilled    *prometheus.GaugeVec
}

// New builds a Sink. Passing a nil registry returns Noop{}, matching the
// "metrics are opt-in" rule the rest of the ambient stack follows.
func New(reg *prometheus.Registry) Sink {
	if reg == nil {
		return Noop{}
	}
	shardLabel := []string{"shard"}
	p := &prom{
		insertsNew: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merkle_timestamp",
			Name:      "inserts_new_total",
			Help:      "Digests accepted as new by Insert.",
		}, shardLabel),
		insertsDup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merkle_timestamp",
			Name:      "inserts_duplicate_total",
			Help:      "Digests rejected by Insert as already present.",
		}, shardLabel),
		containsHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merkle_timestamp",
			Name:      "contains_hits_total",
			Help:      "Contains queries that found the digest.",
		}, shardLabel),
		containsMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merkle_timestamp",
			Name:      "contains_misses_total",
			Help:      "Contains queries that did not find the digest.",
		}, shardLabel),
		freezes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merkle_timestamp",
			Name:      "freezes_total",
			Help:      "Completed Freeze calls.",
		}),
		proveHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merkle_timestamp",
			Name:      "prove_hits_total",
			Help:      "Prove calls that returned an authentication path.",
		}),
		proveMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "merkle_timestamp",
			Name:      "prove_misses_total",
			Help:      "Prove calls for a digest absent from the current tree.",
		}),
		treeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "merkle_timestamp",
			Name:      "tree_size_nodes",
			Help:      "Node count of the last-published Merkle tree.",
		}),
		bucketsFilled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "merkle_timestamp",
			Name:      "buckets_filled",
			Help:      "Non-empty buckets per shard.",
		}, shardLabel),
	}
	reg.MustRegister(
		p.insertsNew, p.insertsDup, p.containsHits, p.containsMisses,
		p.freezes, p.proveHits, p.proveMisses, p.treeSize, p.bucketsFilled,
	)
	return p
}

func (p *prom) IncInsertNew(shard int) {
	p.insertsNew.WithLabelValues(strconv.Itoa(shard)).Inc()
}
func (p *prom) IncInsertDuplicate(shard int) {
	p.insertsDup.WithLabelValues(strconv.Itoa(shard)).Inc()
}
func (p *prom) IncContainsHit(shard int) {
	p.containsHits.WithLabelValues(strconv.Itoa(shard)).Inc()
}
func (p *prom) IncContainsMiss(shard int) {
	p.containsMisses.WithLabelValues(strconv.Itoa(shard)).Inc()
}
func (p *prom) IncFreeze()    { p.freezes.Inc() }
func (p *prom) IncProveHit()  { p.proveHits.Inc() }
func (p *prom) IncProveMiss() { p.proveMisses.Inc() }
func (p *prom) SetTreeSize(size int) {
	p.treeSize.Set(float64(size))
}
func (p *prom) SetBucketsFilled(shard int, filled uint64) {
	p.bucketsFilled.WithLabelValues(strconv.Itoa(shard)).Set(float64(filled))
}
