package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/YAtOff/lansync/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "lansync.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoredNodeRoundTrip(t *testing.T) {
	s := openTestStore(t)

	n := model.StoredNode{
		Namespace:  "ns",
		RootFolder: "root",
		Key:        "key1",
		Path:       "a/b.txt",
		Checksum:   "abc123",
		Parts: []model.NodeChunk{
			{Offset: 0, Size: 4, Hash: "h0"},
			{Offset: 4, Size: 4, Hash: "h1"},
		},
		LocalModifiedTime: time.Now().Truncate(time.Second),
		LocalCreatedTime:  time.Now().Truncate(time.Second),
		Ready:             true,
	}

	if err := s.SaveStoredNode(n); err != nil {
		t.Fatalf("SaveStoredNode: %v", err)
	}

	got, err := s.GetStoredNode("ns", "root", "key1")
	if err != nil {
		t.Fatalf("GetStoredNode: %v", err)
	}
	if got.Checksum != n.Checksum || len(got.Parts) != 2 {
		t.Fatalf("unexpected stored node: %+v", got)
	}

	path, offset, ok, err := s.FindChunkPath("ns", "h0")
	if err != nil || !ok {
		t.Fatalf("FindChunkPath: ok=%v err=%v", ok, err)
	}
	if path != n.Path || offset != 0 {
		t.Fatalf("unexpected chunk location: path=%s offset=%d", path, offset)
	}

	if err := s.DeleteStoredNode("ns", "root", "key1"); err != nil {
		t.Fatalf("DeleteStoredNode: %v", err)
	}
	if _, err := s.GetStoredNode("ns", "root", "key1"); err != ErrNodeNotFound {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestRemoteNodeRoundTrip(t *testing.T) {
	s := openTestStore(t)

	n := model.RemoteNode{
		Namespace:      "ns",
		Key:            "key1",
		SequenceNumber: 5,
		Path:           "a/b.txt",
		Timestamp:      time.Now().Truncate(time.Second),
		Checksum:       "xyz",
		Parts:          []model.NodeChunk{{Offset: 0, Size: 4, Hash: "h0"}},
	}

	if err := s.UpsertRemoteNode(n); err != nil {
		t.Fatalf("UpsertRemoteNode: %v", err)
	}

	got, err := s.GetRemoteNode("ns", "key1")
	if err != nil {
		t.Fatalf("GetRemoteNode: %v", err)
	}
	if got.SequenceNumber != 5 {
		t.Fatalf("expected sequence number 5, got %d", got.SequenceNumber)
	}

	max, err := s.MaxSequenceNumber("ns")
	if err != nil || max != 5 {
		t.Fatalf("MaxSequenceNumber: max=%d err=%v", max, err)
	}

	keys, err := s.AllNodeKeys("ns")
	if err != nil || len(keys) != 1 || keys[0] != "key1" {
		t.Fatalf("AllNodeKeys: keys=%v err=%v", keys, err)
	}
}

func TestGCLedgerSweep(t *testing.T) {
	dir := t.TempDir()
	ledger, err := OpenGCLedger(filepath.Join(dir, "gc.db"))
	if err != nil {
		t.Fatalf("OpenGCLedger: %v", err)
	}
	defer ledger.Close()

	if err := ledger.Touch("h0"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	removed, err := ledger.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected nothing swept yet, got %v", removed)
	}

	removed, err = ledger.Sweep(-time.Second)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(removed) != 1 || removed[0] != "h0" {
		t.Fatalf("expected h0 to be swept, got %v", removed)
	}
}
