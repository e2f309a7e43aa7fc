package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/Voskan/merkle-timestamp/internal/digest"
)

func digestWithByte(b byte) digest.Digest {
	var d digest.Digest
	d[0] = b
	return d
}

func waitForCount(t *testing.T, d *Dispatcher, want uint64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		n, err := d.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n == want {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for count=%d, last seen %d", want, n)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestInsertThenContains(t *testing.T) {
	d, err := New(Config{Shards: 4, IndexWidth: 4}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()

	dg := digestWithByte(0xAB)
	if err := d.Insert(ctx, dg); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// FIFO per shard inbox guarantees this Contains observes the insert
	// that was sent to the same shard earlier by this goroutine.
	found, err := d.Contains(ctx, dg)
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !found {
		t.Fatal("expected Contains to find the inserted digest")
	}
}

func TestSnapshotGloballySorted(t *testing.T) {
	d, err := New(Config{Shards: 4, IndexWidth: 4}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()

	for b := byte(0); b < 50; b++ {
		if err := d.Insert(ctx, digestWithByte(b)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	waitForCount(t, d, 50)

	snap, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != 50 {
		t.Fatalf("snapshot len = %d, want 50", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if !snap[i-1].Less(snap[i]) {
			t.Fatalf("snapshot not globally sorted at index %d", i)
		}
	}
}

func TestDuplicateInsertDoesNotDoubleCount(t *testing.T) {
	d, err := New(Config{Shards: 2, IndexWidth: 4}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()

	dg := digestWithByte(1)
	d.Insert(ctx, dg)
	d.Insert(ctx, dg)
	waitForCount(t, d, 1)

	filled, err := d.FilledBuckets(ctx)
	if err != nil {
		t.Fatalf("FilledBuckets: %v", err)
	}
	if filled != 1 {
		t.Fatalf("filled = %d, want 1", filled)
	}
}

func TestRejectsNonPowerOfTwoShardCount(t *testing.T) {
	if _, err := New(Config{Shards: 3, IndexWidth: 4}, nil, nil); err == nil {
		t.Fatal("expected error for Shards=3")
	}
}

func TestClosedWorkerFailsFutureOperations(t *testing.T) {
	d, err := New(Config{Shards: 1, IndexWidth: 4}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Insert(ctx, digestWithByte(1)); err == nil {
		t.Fatal("expected Insert against a closed dispatcher to fail")
	}
}
