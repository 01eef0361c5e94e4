package market

import "testing"

func TestMarket_SetGetRoundTrip(t *testing.T) {
	m := New(10)
	cs := Empty(10)
	cs.Mark(2)
	m.Set("device-a", cs)

	got := m.Get("device-a")
	if !got.Has(2) {
		t.Fatal("expected bit 2 set for device-a")
	}
	if m.Get("unknown").Count() != 0 {
		t.Fatal("unknown peer should report an empty set")
	}
}

func TestMarket_MergeUnionsPeers(t *testing.T) {
	a := New(8)
	csA := Empty(8)
	csA.Mark(0)
	a.Set("x", csA)

	b := New(8)
	csB := Empty(8)
	csB.Mark(1)
	b.Set("y", csB)

	a.Merge(b)

	if !a.Get("x").Has(0) {
		t.Fatal("expected existing peer x to survive merge")
	}
	if !a.Get("y").Has(1) {
		t.Fatal("expected new peer y to be adopted by merge")
	}
}

func TestMarket_MergeUnionsSamePeerBitmaps(t *testing.T) {
	a := New(8)
	csA := Empty(8)
	csA.Mark(0)
	a.Set("x", csA)

	b := New(8)
	csB := Empty(8)
	csB.Mark(1)
	b.Set("x", csB)

	a.Merge(b)

	merged := a.Get("x")
	if !merged.Has(0) || !merged.Has(1) {
		t.Fatalf("expected merged bitmap to have both bits for shared peer x")
	}
}

func TestMarket_RecordRoundTrip(t *testing.T) {
	m := New(20)
	cs1 := Empty(20)
	cs1.Mark(3)
	cs1.Mark(19)
	m.Set("device-a", cs1)

	cs2 := Full(20)
	m.Set("device-b", cs2)

	data := m.AsRecord()
	restored, err := FromRecord(data)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}

	if !restored.Get("device-a").Has(3) || !restored.Get("device-a").Has(19) {
		t.Fatal("device-a bitmap not preserved across record round trip")
	}
	if !restored.Get("device-b").HasAll() {
		t.Fatal("device-b bitmap not preserved across record round trip")
	}
}

func TestForFileProviderAndConsumer(t *testing.T) {
	provider := ForFileProvider("p1", 5)
	if !provider.Get("p1").HasAll() {
		t.Fatal("provider should start with a full chunk set")
	}

	consumer := ForFileConsumer("c1", 5)
	if consumer.Get("c1").Count() != 0 {
		t.Fatal("consumer should start with an empty chunk set")
	}
}
