package eventlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "lansync.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHandleNewEventsAppliesCreateAndDelete(t *testing.T) {
	events := []model.NodeEvent{
		{Key: "k1", Operation: model.OpCreate, Path: "a.txt", Timestamp: time.Now(), Checksum: "c1", SequenceNumber: 1},
		{Key: "k2", Operation: model.OpCreate, Path: "b.txt", Timestamp: time.Now(), Checksum: "c2", SequenceNumber: 2},
		{Key: "k1", Operation: model.OpDelete, Path: "a.txt", Timestamp: time.Now(), SequenceNumber: 3},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("min_sequence_number") != "1" {
			t.Fatalf("unexpected min_sequence_number: %s", r.URL.Query().Get("min_sequence_number"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fetchResponse{LastSequenceNumber: 3, Events: events})
	}))
	defer srv.Close()

	st := openTestStore(t)
	h := NewHandler(NewClient(srv.URL, 5*time.Second), st)

	n, err := h.HandleNewEvents(context.TODO(), "ns")
	if err != nil {
		t.Fatalf("HandleNewEvents: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 events applied, got %d", n)
	}

	if _, err := st.GetRemoteNode("ns", "k1"); err != store.ErrNodeNotFound {
		t.Fatalf("expected k1 deleted, got err=%v", err)
	}
	got, err := st.GetRemoteNode("ns", "k2")
	if err != nil {
		t.Fatalf("GetRemoteNode k2: %v", err)
	}
	if got.Checksum != "c2" {
		t.Fatalf("unexpected checksum: %s", got.Checksum)
	}
}

func TestPushCreateReturnsSequenceNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var events []model.NodeEvent
		json.NewDecoder(r.Body).Decode(&events)
		if len(events) != 1 || events[0].Key != "k1" {
			t.Fatalf("unexpected push body: %+v", events)
		}
		json.NewEncoder(w).Encode(pushResponse{LastSequenceNumber: 7})
	}))
	defer srv.Close()

	st := openTestStore(t)
	h := NewHandler(NewClient(srv.URL, 5*time.Second), st)

	seq, err := h.PushCreate(context.TODO(), "ns", model.StoredNode{Key: "k1", Path: "a.txt", Checksum: "c1"})
	if err != nil {
		t.Fatalf("PushCreate: %v", err)
	}
	if seq != 7 {
		t.Fatalf("expected sequence 7, got %d", seq)
	}
}
