package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/YAtOff/lansync/internal/market"
	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/observability"
)

// downloadResult is a downloadChunkTask's Execute result, carried through
// tasklist.Outcome so the scheduling loop (which owns needed/inFlight/market
// state) can react without re-deriving which chunk or peer was involved.
type downloadResult struct {
	hash   string
	peerID string
	size   int
}

// downloadChunkTask fetches one chunk from a peer and writes it to every
// offset in the placeholder that shares its hash. Execute runs on a
// tasklist worker goroutine; it touches only the client and the on-disk
// placeholder, never nm or the needed/inFlight maps — those are mutated by
// the scheduling loop after WaitAny, keeping market mutation single-threaded
// per spec.md's concurrency model.
type downloadChunkTask struct {
	sess      *Session
	ctx       context.Context
	client    PeerClient
	peerID    string
	namespace string
	nodeKey   string
	hash      string
	chunks    []model.NodeChunk
	tempPath  string
}

func (t *downloadChunkTask) Execute() (any, error) {
	ctx, span := observability.StartSpan(t.ctx, "chunk.download")
	defer span.End()

	data, err := t.client.FetchChunk(ctx, t.namespace, t.hash)
	if err != nil {
		return downloadResult{hash: t.hash, peerID: t.peerID}, err
	}
	for _, c := range t.chunks {
		if err := t.sess.Store.WriteChunk(t.tempPath, c, data); err != nil {
			return downloadResult{hash: t.hash, peerID: t.peerID}, err
		}
	}
	return downloadResult{hash: t.hash, peerID: t.peerID, size: len(data)}, nil
}

func (t *downloadChunkTask) OnDone(result any) {
	res, _ := result.(downloadResult)
	t.sess.Metrics.RecordChunkReceived(res.size)
	if t.sess.Stats != nil {
		t.sess.Stats.DownloadChunk(t.namespace, t.nodeKey, t.hash, t.peerID, int64(res.size))
	}
}

func (t *downloadChunkTask) OnError(err error) {
	reason := "network"
	if errors.Is(err, model.ErrChunkIntegrity) {
		reason = "integrity"
		t.sess.Metrics.RecordChunkIntegrityFailure()
		t.sess.Logger.ChunkIntegrityFailed(t.namespace, t.hash, t.peerID, 0)
	} else {
		t.sess.Logger.Error(err, "chunk download failed")
	}
	t.sess.Metrics.RecordChunkRetry(reason)
}

func (t *downloadChunkTask) Cleanup() {
	t.sess.Pool.Release(t.peerID, t.client)
}

// exchangeResult is an exchangeMarketTask's Execute result.
type exchangeResult struct {
	peerID string
	remote *market.Market
}

// exchangeMarketTask gossips our Market record for one node to a peer and
// folds back whatever they merge in return. Errors are swallowed by the
// scheduling loop (spec.md 4.D: "errors during market exchange are silently
// dropped, the next round will retry") rather than here, so OnError only
// records the failure for observability.
type exchangeMarketTask struct {
	sess      *Session
	ctx       context.Context
	client    PeerClient
	peerID    string
	namespace string
	marketKey string
	record    []byte
}

func (t *exchangeMarketTask) Execute() (any, error) {
	ctx, span := observability.StartSpan(t.ctx, "market.exchange")
	defer span.End()

	merged, err := t.client.ExchangeMarket(ctx, t.namespace, t.marketKey, t.record)
	if err != nil {
		return exchangeResult{peerID: t.peerID}, fmt.Errorf("engine: exchange market with %s: %w", t.peerID, err)
	}
	m, err := market.FromRecord(merged)
	if err != nil {
		return exchangeResult{peerID: t.peerID}, fmt.Errorf("engine: parse merged market from %s: %w", t.peerID, err)
	}
	return exchangeResult{peerID: t.peerID, remote: m}, nil
}

func (t *exchangeMarketTask) OnDone(any) {
	t.sess.Metrics.RecordMarketExchange(true)
	t.sess.Logger.GossipSent(t.namespace, t.marketKey, t.peerID)
	if t.sess.Stats != nil {
		t.sess.Stats.ExchangeMarket(t.namespace, t.marketKey, t.peerID)
	}
}

func (t *exchangeMarketTask) OnError(error) {
	t.sess.Metrics.RecordMarketExchange(false)
}

func (t *exchangeMarketTask) Cleanup() {
	t.sess.Pool.Release(t.peerID, t.client)
}
