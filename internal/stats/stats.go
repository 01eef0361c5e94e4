// Package stats implements the analytics sink spec.md section 6 requires:
// a newline-delimited JSON log at log/stats-{device_id}.json recording
// download_chunk and exchange_market events. Grounded on the original's
// lansync/util/file.get_stats helper and the donor's texture of treating
// metrics as an appendable event trail in addition to (not instead of) the
// Prometheus counters in internal/observability — Prometheus answers "what
// is the current rate", this answers "what exactly happened, in order".
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is one line of the stats log.
type Event struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Checksum  string    `json:"checksum,omitempty"`
	Event     string    `json:"event"`
	FromPeer  string    `json:"from_peer,omitempty"`
	ToPeer    string    `json:"to_peer,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink appends Events to a per-device NDJSON file, one JSON object per
// line, flushed immediately so a crash doesn't lose the tail of the log.
type Sink struct {
	mu sync.Mutex
	f  *os.File
}

// Open creates (or appends to) log/stats-{deviceID}.json under dir.
func Open(dir, deviceID string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("stats: create log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("stats-%s.json", deviceID))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("stats: open log file: %w", err)
	}
	return &Sink{f: f}, nil
}

// Close closes the underlying log file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Record appends one Event as a JSON line. A write failure is returned but
// never wraps the caller's real work — stats are an observability nicety,
// not a correctness requirement.
func (s *Sink) Record(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("stats: marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.f.Write(line)
	return err
}

// DownloadChunk records a chunk fetched from a peer and written locally.
func (s *Sink) DownloadChunk(namespace, key, checksum, fromPeer string, size int64) error {
	return s.Record(Event{
		Namespace: namespace,
		Key:       key,
		Checksum:  checksum,
		Event:     "download_chunk",
		FromPeer:  fromPeer,
		Size:      size,
	})
}

// ExchangeMarket records a gossip round initiated with a peer.
func (s *Sink) ExchangeMarket(namespace, key, toPeer string) error {
	return s.Record(Event{
		Namespace: namespace,
		Key:       key,
		Event:     "exchange_market",
		ToPeer:    toPeer,
	})
}
