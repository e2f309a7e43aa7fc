package shard

import (
	"testing"

	"github.com/Voskan/merkle-timestamp/internal/digest"
)

func digestWithFirstByte(b byte) digest.Digest {
	var d digest.Digest
	d[0] = b
	return d
}

func TestNewValidatesParameters(t *testing.T) {
	if _, err := New(0, 0); err == nil {
		t.Fatal("expected error for indexWidth=0")
	}
	if _, err := New(29, 0); err == nil {
		t.Fatal("expected error for indexWidth>28")
	}
	if _, err := New(8, 505); err == nil {
		t.Fatal("expected error for prefix+index > 512")
	}
	if _, err := New(8, 0); err != nil {
		t.Fatalf("expected valid construction, got %v", err)
	}
}

func TestInsertNewThenDuplicate(t *testing.T) {
	s, err := New(4, 0)
	if err != nil {
		t.Fatal(err)
	}
	d := digestWithFirstByte(0x01)

	if got := s.Insert(d); got != Inserted {
		t.Fatalf("first insert: want Inserted, got %v", got)
	}
	if got := s.Insert(d); got != Duplicate {
		t.Fatalf("second insert: want Duplicate, got %v", got)
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1", s.Count())
	}
	if s.Filled() != 1 {
		t.Fatalf("filled = %d, want 1", s.Filled())
	}
}

func TestContains(t *testing.T) {
	s, err := New(4, 0)
	if err != nil {
		t.Fatal(err)
	}
	present := digestWithFirstByte(0x01)
	absent := digestWithFirstByte(0x02)

	s.Insert(present)
	if !s.Contains(present) {
		t.Fatal("expected Contains(present) to be true")
	}
	if s.Contains(absent) {
		t.Fatal("expected Contains(absent) to be false")
	}
}

func TestSnapshotSortedOrder(t *testing.T) {
	s, err := New(1, 0) // two buckets keyed by the top bit; these digests all share bucket 0
	if err != nil {
		t.Fatal(err)
	}
	a := digestWithFirstByte(0x03)
	b := digestWithFirstByte(0x01)
	c := digestWithFirstByte(0x02)

	for _, d := range []digest.Digest{a, b, c} {
		if got := s.Insert(d); got != Inserted {
			t.Fatalf("insert %v: want Inserted, got %v", d, got)
		}
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if !snap[i-1].Less(snap[i]) {
			t.Fatalf("snapshot not strictly ascending at %d: %v >= %v", i, snap[i-1], snap[i])
		}
	}
	if snap[0][0] != 0x01 || snap[1][0] != 0x02 || snap[2][0] != 0x03 {
		t.Fatalf("unexpected snapshot order: %v", snap)
	}
}

func TestInsertIdempotentOnCounters(t *testing.T) {
	s, err := New(4, 0)
	if err != nil {
		t.Fatal(err)
	}
	d := digestWithFirstByte(0x01)
	s.Insert(d)
	s.Insert(d)
	s.Insert(d)
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1 after repeated inserts", s.Count())
	}
}

func TestBucketIndexWithPrefix(t *testing.T) {
	// With prefixWidth=4 and indexWidth=4, the index comes from the second
	// nibble of byte 0.
	s, err := New(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	var d digest.Digest
	d[0] = 0b1111_0101 // high nibble ignored, low nibble 0101 -> bits packed LSB-first
	idx := s.bucketIndex(d)
	if idx < 0 || idx >= int(s.Capacity()) {
		t.Fatalf("bucket index %d out of range [0,%d)", idx, s.Capacity())
	}
}
