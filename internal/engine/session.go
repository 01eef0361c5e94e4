// Package engine implements lansync's component H: the send/receive engine
// that turns a sync decision (internal/decision) into chunk transfers. Send
// publishes a locally-changed file as a new node; Receive materializes a
// remote node by scheduling chunk downloads across whichever peers the
// market (internal/nodemarket) says have them, the way the original
// implementation's ReceiveWorker/SendWorker drove downloads off
// TaskList.wait_any instead of a fixed worker-per-chunk model.
package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/YAtOff/lansync/internal/chunker"
	"github.com/YAtOff/lansync/internal/clientpool"
	"github.com/YAtOff/lansync/internal/discovery"
	"github.com/YAtOff/lansync/internal/eventlog"
	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/observability"
	"github.com/YAtOff/lansync/internal/ratelimit"
	"github.com/YAtOff/lansync/internal/stats"
	"github.com/YAtOff/lansync/internal/store"
	"github.com/YAtOff/lansync/internal/tasklist"
)

// PeerClient is the transport surface a pool-acquired handle must expose for
// the engine's tasks to use it, beyond the bare Close every clientpool.Client
// needs. internal/transport.Client satisfies this.
type PeerClient interface {
	clientpool.Client
	FetchChunk(ctx context.Context, namespace, hash string) ([]byte, error)
	ExchangeMarket(ctx context.Context, namespace, key string, record []byte) ([]byte, error)
}

// Session bundles one namespace's worth of collaborators the send/receive
// engine needs: the local index, the peer pool and registry, the task
// scheduler, and the observability/side-channel sinks every transfer reports
// to. One Session is built per namespace a daemon serves.
type Session struct {
	Namespace  string
	RootFolder string
	RootPath   string
	DeviceID   string

	Store    *store.Store
	Pool     *clientpool.Pool
	Registry *discovery.PeerRegistry
	Tasks    *tasklist.TaskList
	Events   *eventlog.Handler
	Stats    *stats.Sink
	Metrics  *observability.Metrics
	Logger   *observability.Logger
	Gossip   *ratelimit.TokenBucket

	ChunkSize          int
	SignatureBlockSize int
}

// NewSession builds a Session. ChunkSize defaults to
// chunker.DefaultChunkOptions()'s 1 MiB when zero, and SignatureBlockSize
// defaults to the resulting ChunkSize when zero.
func NewSession(namespace, rootFolder, rootPath, deviceID string, st *store.Store, pool *clientpool.Pool, registry *discovery.PeerRegistry, tasks *tasklist.TaskList, events *eventlog.Handler, sink *stats.Sink, metrics *observability.Metrics, logger *observability.Logger, gossip *ratelimit.TokenBucket, chunkSize, signatureBlockSize int) *Session {
	if chunkSize <= 0 {
		chunkSize = chunker.DefaultChunkOptions().ChunkSize
	}
	if signatureBlockSize <= 0 {
		signatureBlockSize = chunkSize
	}
	return &Session{
		Namespace:          namespace,
		RootFolder:         rootFolder,
		RootPath:           rootPath,
		DeviceID:           deviceID,
		Store:              st,
		Pool:               pool,
		Registry:           registry,
		Tasks:              tasks,
		Events:             events,
		Stats:              sink,
		Metrics:            metrics,
		Logger:             logger,
		Gossip:             gossip,
		ChunkSize:          chunkSize,
		SignatureBlockSize: signatureBlockSize,
	}
}

func chunkHashes(parts []model.NodeChunk) []string {
	hashes := make([]string, len(parts))
	for i, c := range parts {
		hashes[i] = c.Hash
	}
	return hashes
}

func groupByHash(parts []model.NodeChunk) map[string][]model.NodeChunk {
	out := make(map[string][]model.NodeChunk, len(parts))
	for _, c := range parts {
		out[c.Hash] = append(out[c.Hash], c)
	}
	return out
}

func marketKeyFor(nodeKey, checksum string) string {
	return nodeKey + ":" + checksum
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
