package clientpool

import "testing"

type fakeClient struct{ closed bool }

func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestPool_AcquireRespectsLimit(t *testing.T) {
	dials := 0
	pool := New(2, func(deviceID string) (Client, error) {
		dials++
		return &fakeClient{}, nil
	})

	c1, err := pool.Acquire("peer1")
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	c2, err := pool.Acquire("peer1")
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	if _, err := pool.Acquire("peer1"); err != ErrPeerBusy {
		t.Fatalf("expected ErrPeerBusy at the limit, got %v", err)
	}

	pool.Release("peer1", c1)
	c3, err := pool.Acquire("peer1")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if dials != 2 {
		t.Fatalf("expected releasing then reacquiring to reuse a client, dials=%d", dials)
	}
	_ = c2
	_ = c3
}

func TestPool_RemoveClosesClient(t *testing.T) {
	pool := New(1, func(deviceID string) (Client, error) { return &fakeClient{}, nil })
	c, err := pool.Acquire("peer1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	fc := c.(*fakeClient)
	pool.Remove("peer1", c)
	if !fc.closed {
		t.Fatal("expected Remove to close the client")
	}
	if pool.InUse("peer1") != 0 {
		t.Fatalf("expected in-use count to drop after Remove, got %d", pool.InUse("peer1"))
	}
}

func TestPool_TryAcquirePeersPicksFirstAvailable(t *testing.T) {
	pool := New(1, func(deviceID string) (Client, error) {
		return &fakeClient{}, nil
	})

	// Exhaust "busy" peer's single slot first.
	if _, err := pool.Acquire("busy"); err != nil {
		t.Fatalf("Acquire busy: %v", err)
	}
	if _, err := pool.Acquire("busy"); err != ErrPeerBusy {
		t.Fatalf("expected busy peer at limit, got %v", err)
	}

	id, _, err := pool.TryAcquirePeers([]string{"busy", "free"})
	if err != nil {
		t.Fatalf("TryAcquirePeers: %v", err)
	}
	if id != "free" {
		t.Fatalf("expected to fall back to 'free', got %q", id)
	}
}
