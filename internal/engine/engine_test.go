package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/YAtOff/lansync/internal/chunker"
	"github.com/YAtOff/lansync/internal/clientpool"
	"github.com/YAtOff/lansync/internal/discovery"
	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/nodemarket"
	"github.com/YAtOff/lansync/internal/observability"
	"github.com/YAtOff/lansync/internal/store"
	"github.com/YAtOff/lansync/internal/tasklist"
)

// fakePeerClient answers FetchChunk/ExchangeMarket from in-memory maps
// instead of going over HTTP, so engine tests exercise the scheduling logic
// without a transport round trip.
type fakePeerClient struct {
	deviceID string
	chunks   map[string][]byte
	market   []byte
	closed   bool
}

func (c *fakePeerClient) Close() error { c.closed = true; return nil }

func (c *fakePeerClient) FetchChunk(ctx context.Context, namespace, hash string) ([]byte, error) {
	data, ok := c.chunks[hash]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (c *fakePeerClient) ExchangeMarket(ctx context.Context, namespace, key string, record []byte) ([]byte, error) {
	return c.market, nil
}

func newTestSession(t *testing.T, deviceID string, clients map[string]*fakePeerClient) (*Session, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "lansync.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rootPath := filepath.Join(dir, "root")
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}

	pool := clientpool.New(4, func(id string) (clientpool.Client, error) {
		c, ok := clients[id]
		if !ok {
			return nil, os.ErrNotExist
		}
		return c, nil
	})

	registry := discovery.NewPeerRegistry(time.Minute)

	return NewSession(
		"ns", "root", rootPath, deviceID,
		st, pool, registry, tasklist.New(4),
		nil, nil,
		observability.NewMetrics(), observability.NewLogger("lansync-test", "test", nil),
		nil,
		1024, 1024,
	), st
}

func TestSendChunksAndPublishesAsProvider(t *testing.T) {
	sess, st := newTestSession(t, "device-a", nil)

	content := []byte("hello lansync, this is a small test file")
	localPath := filepath.Join(sess.RootPath, "a.txt")
	if err := os.WriteFile(localPath, content, 0644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	node, err := sess.Send(context.Background(), SendParams{
		Key:       model.KeyForPath("a.txt"),
		RelPath:   "a.txt",
		LocalPath: localPath,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(node.Parts) == 0 {
		t.Fatalf("expected at least one chunk")
	}

	stored, err := st.GetStoredNode("ns", "root", node.Key)
	if err != nil {
		t.Fatalf("GetStoredNode: %v", err)
	}
	if stored.Checksum != node.Checksum {
		t.Fatalf("checksum mismatch: %s vs %s", stored.Checksum, node.Checksum)
	}

	marketKey := marketKeyFor(node.Key, node.Checksum)
	m, err := st.LoadMarket("ns", marketKey)
	if err != nil {
		t.Fatalf("LoadMarket: %v", err)
	}
	if m == nil {
		t.Fatalf("expected market to be persisted")
	}
	if !m.Get("device-a").HasAll() {
		t.Fatalf("expected provider's own bitmap to be full")
	}
}

func TestReceiveFetchesChunksFromLivePeer(t *testing.T) {
	content := []byte("content that the consumer does not have yet")
	parts, err := fixedChunksFromBytes(content, 16)
	if err != nil {
		t.Fatalf("fixedChunksFromBytes: %v", err)
	}

	chunkBytes := make(map[string][]byte, len(parts))
	for _, c := range parts {
		chunkBytes[c.Hash] = content[c.Offset : c.Offset+int64(c.Size)]
	}

	provider := &fakePeerClient{deviceID: "device-provider", chunks: chunkBytes}
	sess, st := newTestSession(t, "device-consumer", map[string]*fakePeerClient{
		"device-provider": provider,
	})
	sess.Registry.Observe("device-provider", "127.0.0.1", 9443)

	remote := model.RemoteNode{
		Key:       "k1",
		Path:      "a.txt",
		Timestamp: time.Now(),
		Checksum:  "whatever",
		Parts:     parts,
	}

	marketKey := marketKeyFor(remote.Key, remote.Checksum)
	hashes := chunkHashes(parts)
	nm := nodemarket.ForFileProvider("device-provider", marketKey, hashes)
	if err := nm.ExchangeWithDB(st, "ns"); err != nil {
		t.Fatalf("seed market: %v", err)
	}

	if err := sess.Receive(context.Background(), remote); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	finalPath := filepath.Join(sess.RootPath, "a.txt")
	got, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("read final file: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("final content mismatch: got %q want %q", got, content)
	}

	stored, err := st.GetStoredNode("ns", "root", "k1")
	if err != nil {
		t.Fatalf("GetStoredNode: %v", err)
	}
	if !stored.Ready {
		t.Fatalf("expected stored node to be ready")
	}
}

func fixedChunksFromBytes(data []byte, chunkSize int) ([]model.NodeChunk, error) {
	dir, err := os.MkdirTemp("", "lansync-chunk-src")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "src")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	return chunker.FixedNodeChunks(path, chunkSize)
}
