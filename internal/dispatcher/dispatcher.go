// Package dispatcher fans digests out to shard workers by a leading bit
// slice and aggregates their replies. Each shard is owned by exactly one
// goroutine with a single FIFO inbox; no other goroutine ever touches a
// shard's state directly. This is the "message-passed shards with one
// writer each" model spec'd over the alternative of a globally-locked
// store: it eliminates contention on the bucket array and makes the
// count/filled counters trivially consistent per shard, at the cost of a
// fire-and-forget Insert (new/duplicate status does not reach the caller).
//
// © 2025 merkle-timestamp authors. MIT License.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Voskan/merkle-timestamp/internal/bitslice"
	"github.com/Voskan/merkle-timestamp/internal/digest"
	"github.com/Voskan/merkle-timestamp/internal/metrics"
	"github.com/Voskan/merkle-timestamp/internal/shard"
)

// ErrWorkerDead is returned by any operation addressed to a shard whose
// worker goroutine has already exited (panic or Close). The spec treats
// this as an internal error the service process should consider fatal.
var ErrWorkerDead = errors.New("dispatcher: shard worker is no longer running")

// inboxCapacity bounds the per-shard inbox so a runaway producer applies
// backpressure instead of growing memory without limit. The source this
// service is modeled on used an unbounded channel; spec explicitly allows
// bounding for backpressure.
const inboxCapacity = 4096

type insertMsg struct{ d digest.Digest }

type containsMsg struct {
	d     digest.Digest
	reply chan bool
}

type snapshotMsg struct {
	reply chan []digest.Digest
}

type countMsg struct {
	reply chan uint64
}

type filledMsg struct {
	reply chan uint64
}

// stopMsg asks a worker to exit its loop. Close sends this instead of
// closing the inbox channel, because a concurrent sender racing Close
// would otherwise panic trying to send on a closed channel.
type stopMsg struct{}

type worker struct {
	inbox chan any
	dead  chan struct{}
}

// Dispatcher routes Insert/Contains/Snapshot/Count/FilledBuckets to a
// fixed set of shard workers and aggregates their replies.
type Dispatcher struct {
	workers    []*worker
	shardBits  int
	indexWidth int
	logger     *zap.Logger
	sink       metrics.Sink
}

// Config describes how to size the dispatcher and its shards.
type Config struct {
	// Shards is the shard count S; must be a power of two.
	Shards int
	// IndexWidth is the bucket-array width I each shard allocates.
	IndexWidth int
}

var (
	// ErrShardsNotPowerOfTwo is returned when Config.Shards isn't a power of two.
	ErrShardsNotPowerOfTwo = errors.New("dispatcher: shard count must be a power of two")
)

// New spawns one worker goroutine per shard. Each shard is constructed
// with prefixWidth = ceil(log2(Shards)) so that its bucket indexing reads
// the bits immediately after the dispatcher's leading shard-selecting bits.
// Both indices pack their bits least-significant-first, so shard and bucket
// order do not follow byte order; Snapshot sorts the merged result.
func New(cfg Config, logger *zap.Logger, sink metrics.Sink) (*Dispatcher, error) {
	if !bitslice.IsPowerOfTwo(cfg.Shards) {
		return nil, ErrShardsNotPowerOfTwo
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = metrics.Noop{}
	}

	shardBits := bitslice.CeilLog2(cfg.Shards)

	d := &Dispatcher{
		workers:    make([]*worker, cfg.Shards),
		shardBits:  shardBits,
		indexWidth: cfg.IndexWidth,
		logger:     logger,
		sink:       sink,
	}

	for i := 0; i < cfg.Shards; i++ {
		sh, err := shard.New(cfg.IndexWidth, shardBits)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: shard %d: %w", i, err)
		}
		w := &worker{
			inbox: make(chan any, inboxCapacity),
			dead:  make(chan struct{}),
		}
		d.workers[i] = w
		go d.runWorker(i, w, sh)
	}

	return d, nil
}

func (d *Dispatcher) runWorker(idx int, w *worker, sh *shard.Shard) {
	defer close(w.dead)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("shard worker panicked",
				zap.Int("shard", idx), zap.Any("recover", r))
		}
	}()

	for {
		m := <-w.inbox
		switch msg := m.(type) {
		case stopMsg:
			return
		case insertMsg:
			if sh.Insert(msg.d) == shard.Inserted {
				d.sink.IncInsertNew(idx)
			} else {
				d.sink.IncInsertDuplicate(idx)
			}
			d.sink.SetBucketsFilled(idx, sh.Filled())
		case containsMsg:
			found := sh.Contains(msg.d)
			if found {
				d.sink.IncContainsHit(idx)
			} else {
				d.sink.IncContainsMiss(idx)
			}
			msg.reply <- found
		case snapshotMsg:
			msg.reply <- sh.Snapshot()
		case countMsg:
			msg.reply <- sh.Count()
		case filledMsg:
			msg.reply <- sh.Filled()
		}
	}
}

// shardFor returns the owning shard index for d.
func (d *Dispatcher) shardFor(dg digest.Digest) int {
	if d.shardBits == 0 {
		return 0
	}
	idx, _ := bitslice.Extract(dg, 0, d.shardBits)
	return int(idx)
}

func (w *worker) send(ctx context.Context, msg any) error {
	// Check dead first: a select with both cases ready picks at random, and
	// the buffered inbox of an exited worker still accepts sends.
	select {
	case <-w.dead:
		return ErrWorkerDead
	default:
	}
	select {
	case w.inbox <- msg:
		return nil
	case <-w.dead:
		return ErrWorkerDead
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Insert posts d to its owning shard and returns immediately without
// waiting for the worker to process it — new-vs-duplicate status is not
// reported back to the caller (see the package doc comment).
func (d *Dispatcher) Insert(ctx context.Context, dg digest.Digest) error {
	w := d.workers[d.shardFor(dg)]
	return w.send(ctx, insertMsg{d: dg})
}

// Contains blocks until the owning shard replies whether dg is present.
func (d *Dispatcher) Contains(ctx context.Context, dg digest.Digest) (bool, error) {
	w := d.workers[d.shardFor(dg)]
	reply := make(chan bool, 1)
	if err := w.send(ctx, containsMsg{d: dg, reply: reply}); err != nil {
		return false, err
	}
	select {
	case found := <-reply:
		return found, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-w.dead:
		return false, ErrWorkerDead
	}
}

// Snapshot queries every shard, concatenates their replies and sorts the
// result into ascending byte order. Snapshot is not a consistent cut across
// shards: each shard is observed at the moment its own message is processed.
func (d *Dispatcher) Snapshot(ctx context.Context) ([]digest.Digest, error) {
	parts := make([][]digest.Digest, len(d.workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range d.workers {
		i, w := i, w
		g.Go(func() error {
			reply := make(chan []digest.Digest, 1)
			if err := w.send(gctx, snapshotMsg{reply: reply}); err != nil {
				return err
			}
			select {
			case parts[i] = <-reply:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			case <-w.dead:
				return ErrWorkerDead
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]digest.Digest, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// Count sums the per-shard live digest counters.
func (d *Dispatcher) Count(ctx context.Context) (uint64, error) {
	return d.fanOutSum(ctx, func(w *worker, gctx context.Context) (uint64, error) {
		reply := make(chan uint64, 1)
		if err := w.send(gctx, countMsg{reply: reply}); err != nil {
			return 0, err
		}
		select {
		case v := <-reply:
			return v, nil
		case <-gctx.Done():
			return 0, gctx.Err()
		case <-w.dead:
			return 0, ErrWorkerDead
		}
	})
}

// FilledBuckets sums the per-shard occupied-bucket counters.
func (d *Dispatcher) FilledBuckets(ctx context.Context) (uint64, error) {
	return d.fanOutSum(ctx, func(w *worker, gctx context.Context) (uint64, error) {
		reply := make(chan uint64, 1)
		if err := w.send(gctx, filledMsg{reply: reply}); err != nil {
			return 0, err
		}
		select {
		case v := <-reply:
			return v, nil
		case <-gctx.Done():
			return 0, gctx.Err()
		case <-w.dead:
			return 0, ErrWorkerDead
		}
	})
}

// TotalCapacity returns the sum of every shard's bucket-array capacity
// (S * 2^I), used for the /stats endpoint's total_capacity field.
func (d *Dispatcher) TotalCapacity() uint64 {
	return uint64(len(d.workers)) << uint(d.indexWidth)
}

// ShardCount returns the configured number of shards.
func (d *Dispatcher) ShardCount() int { return len(d.workers) }

func (d *Dispatcher) fanOutSum(ctx context.Context, call func(*worker, context.Context) (uint64, error)) (uint64, error) {
	results := make([]uint64, len(d.workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range d.workers {
		i, w := i, w
		g.Go(func() error {
			v, err := call(w, gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	var total uint64
	for _, v := range results {
		total += v
	}
	return total, nil
}

// Close asks every worker goroutine to exit and waits for each to drain its
// backlog and stop. A stop message is queued like any other, so operations
// sent before Close are still processed first (FIFO per inbox); operations
// sent after Close has returned observe a dead worker and fail.
func (d *Dispatcher) Close() {
	for _, w := range d.workers {
		select {
		case w.inbox <- stopMsg{}:
			<-w.dead
		case <-w.dead:
		}
	}
}
