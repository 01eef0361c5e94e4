package stats

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSinkAppendsNDJSONLines(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "device-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.DownloadChunk("ns", "key1", "cksum", "peer-a", 1024); err != nil {
		t.Fatalf("DownloadChunk: %v", err)
	}
	if err := s.ExchangeMarket("ns", "key1", "peer-b"); err != nil {
		t.Fatalf("ExchangeMarket: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "stats-device-1.json"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Event != "download_chunk" || lines[0].FromPeer != "peer-a" || lines[0].Size != 1024 {
		t.Fatalf("unexpected first event: %+v", lines[0])
	}
	if lines[1].Event != "exchange_market" || lines[1].ToPeer != "peer-b" {
		t.Fatalf("unexpected second event: %+v", lines[1])
	}
}
