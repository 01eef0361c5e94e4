package market

import "testing"

func TestChunkSet_MarkHas(t *testing.T) {
	cs := Empty(10)
	if cs.Has(3) {
		t.Fatal("expected bit 3 unset initially")
	}
	cs.Mark(3)
	if !cs.Has(3) {
		t.Fatal("expected bit 3 set after Mark")
	}
	if cs.Has(4) {
		t.Fatal("expected bit 4 to remain unset")
	}
}

func TestChunkSet_Full_HasAll(t *testing.T) {
	cs := Full(100)
	if !cs.HasAll() {
		t.Fatal("Full set should report HasAll")
	}
	if cs.Count() != 100 {
		t.Fatalf("expected 100 bits set, got %d", cs.Count())
	}
}

func TestChunkSet_MergeIdempotent(t *testing.T) {
	a := Empty(64)
	a.Mark(1)
	a.Mark(5)

	merged := a.Merge(a)
	if merged.Count() != a.Count() {
		t.Fatalf("merge with self should be idempotent: got %d want %d", merged.Count(), a.Count())
	}
}

func TestChunkSet_MergeCommutativeAssociative(t *testing.T) {
	a := Empty(64)
	a.Mark(1)
	b := Empty(64)
	b.Mark(2)
	c := Empty(64)
	c.Mark(3)

	ab := a.Merge(b)
	ba := b.Merge(a)
	if ab.Count() != ba.Count() || ab.Bytes() == nil {
		t.Fatal("merge should be commutative")
	}
	for i := 0; i < 64; i++ {
		if ab.Has(i) != ba.Has(i) {
			t.Fatalf("merge commutativity violated at bit %d", i)
		}
	}

	left := a.Merge(b).Merge(c)
	right := a.Merge(b.Merge(c))
	for i := 0; i < 64; i++ {
		if left.Has(i) != right.Has(i) {
			t.Fatalf("merge associativity violated at bit %d", i)
		}
	}
}

func TestChunkSet_Diff(t *testing.T) {
	a := Empty(8)
	a.Mark(0)
	a.Mark(1)
	a.Mark(2)

	b := Empty(8)
	b.Mark(1)

	d := a.Diff(b)
	if !d.Has(0) || d.Has(1) || !d.Has(2) {
		t.Fatalf("unexpected diff result")
	}
}

func TestChunkSet_BytesRoundTrip(t *testing.T) {
	a := Empty(200)
	a.Mark(0)
	a.Mark(199)
	a.Mark(64)

	restored := FromBytes(200, a.Bytes())
	for i := 0; i < 200; i++ {
		if a.Has(i) != restored.Has(i) {
			t.Fatalf("round trip mismatch at bit %d", i)
		}
	}
}

func TestChunkSet_PickRandomOnlyFromSetBits(t *testing.T) {
	a := Empty(16)
	a.Mark(3)
	a.Mark(9)

	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		pos, ok := a.PickRandom(nil)
		if !ok {
			t.Fatal("expected a set bit to be found")
		}
		if pos != 3 && pos != 9 {
			t.Fatalf("PickRandom returned unset bit %d", pos)
		}
		seen[pos] = true
	}

	empty := Empty(16)
	if _, ok := empty.PickRandom(nil); ok {
		t.Fatal("PickRandom on empty set should report false")
	}
}
