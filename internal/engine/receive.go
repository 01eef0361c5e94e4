package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/YAtOff/lansync/internal/discovery"
	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/nodemarket"
	"github.com/YAtOff/lansync/internal/tasklist"
)

// gossipIdleBackoff is how long the scheduling loop sleeps when it can
// neither submit a download nor gossip for more providers — every live peer
// is either saturated or already in flight. A short sleep keeps the loop
// from spinning while a pool client frees up.
const gossipIdleBackoff = 100 * time.Millisecond

// Receive materializes a RemoteNode locally: creates a sparse placeholder
// reusing whatever chunks this device already has on disk, then drives
// pick_next_chunks/wait_any in a loop until every chunk is present, per
// spec.md 4.H's Receive steps 1-7.
func (s *Session) Receive(ctx context.Context, remote model.RemoteNode) error {
	live := s.Registry.Live()
	if len(live) == 0 {
		return nil
	}
	liveSet := make(map[string]discovery.Peer, len(live))
	for _, p := range live {
		liveSet[p.DeviceID] = p
	}

	tempPath, needed, err := s.Store.CreatePlaceholder(s.Namespace, s.RootPath, remote)
	if err != nil {
		return fmt.Errorf("engine: receive %s: create placeholder: %w", remote.Key, err)
	}

	hashes := chunkHashes(remote.Parts)
	marketKey := marketKeyFor(remote.Key, remote.Checksum)
	nm, err := nodemarket.LoadOrNew(s.Store, s.Namespace, s.DeviceID, marketKey, hashes)
	if err != nil {
		return fmt.Errorf("engine: receive %s: load market: %w", remote.Key, err)
	}

	neededHashes := make(map[string]bool, len(needed))
	for _, c := range needed {
		neededHashes[c.Hash] = true
	}
	for _, c := range remote.Parts {
		if !neededHashes[c.Hash] {
			nm.ProvideChunk(s.DeviceID, c.Hash)
		}
	}
	if err := nm.ExchangeWithDB(s.Store, s.Namespace); err != nil {
		return fmt.Errorf("engine: receive %s: persist initial market: %w", remote.Key, err)
	}

	chunksByHash := groupByHash(remote.Parts)
	inFlight := make(map[string]bool)
	rng := newRand()

	start := time.Now()
	s.Metrics.RecordDownloadStart()
	s.Logger.SyncStarted(s.Namespace, remote.Key, remote.Path, partsSize(remote.Parts), len(hashes))

	for len(neededHashes) > 0 || len(inFlight) > 0 {
		s.logProgress(remote.Key, hashes, neededHashes, inFlight)

		submitted := s.submitDownloads(ctx, nm, liveSet, neededHashes, inFlight, chunksByHash, tempPath, remote.Key)

		if submitted == 0 && len(inFlight) == 0 {
			gossiped := s.fanOutExchangeMarket(ctx, nm, marketKey, live, rng)
			if gossiped == 0 {
				time.Sleep(gossipIdleBackoff)
				continue
			}
		}

		for _, out := range s.Tasks.WaitAny() {
			s.applyOutcome(ctx, out, marketKey, nm, neededHashes, inFlight)
			if err := nm.ExchangeWithDB(s.Store, s.Namespace); err != nil {
				s.Logger.Error(err, "persist market after outcome")
			}
		}
	}

	final := model.StoredNode{
		Namespace:         s.Namespace,
		RootFolder:        s.RootFolder,
		Key:               remote.Key,
		Path:              remote.Path,
		Checksum:          remote.Checksum,
		Parts:             remote.Parts,
		Signature:         remote.Signature,
		LocalModifiedTime: time.Now(),
		LocalCreatedTime:  time.Now(),
		Ready:             true,
	}
	if err := s.Store.FinalizePlaceholder(tempPath, final); err != nil {
		return fmt.Errorf("engine: receive %s: finalize placeholder: %w", remote.Key, err)
	}

	s.Metrics.RecordDownloadComplete(time.Since(start).Seconds())
	s.Logger.SyncCompleted(s.Namespace, remote.Key, partsSize(remote.Parts), time.Since(start))
	return nil
}

// pickNextChunks implements spec.md 4.H's pick_next_chunks: for each needed
// hash (shuffled so repeated rounds fan out rather than hammering the same
// chunk), try every live provider the market knows about until one yields a
// pool client. The matched hash is removed from needed on success.
func (s *Session) pickNextChunks(nm *nodemarket.NodeMarket, live map[string]discovery.Peer, needed map[string]bool) (peerID string, client PeerClient, hash string, ok bool) {
	candidates := make([]string, 0, len(needed))
	for h := range needed {
		candidates = append(candidates, h)
	}

	for _, h := range candidates {
		for _, providerID := range nm.FindProviders(h) {
			if _, alive := live[providerID]; !alive {
				continue
			}
			c, err := s.Pool.Acquire(providerID)
			if err != nil {
				s.Metrics.RecordClientPoolSaturation(providerID)
				continue
			}
			pc, isPeerClient := c.(PeerClient)
			if !isPeerClient {
				s.Pool.Release(providerID, c)
				continue
			}
			delete(needed, h)
			return providerID, pc, h, true
		}
	}
	return "", nil, "", false
}

func (s *Session) submitDownloads(ctx context.Context, nm *nodemarket.NodeMarket, live map[string]discovery.Peer, needed map[string]bool, inFlight map[string]bool, chunksByHash map[string][]model.NodeChunk, tempPath, nodeKey string) int {
	submitted := 0
	for {
		peerID, client, hash, ok := s.pickNextChunks(nm, live, needed)
		if !ok {
			break
		}
		inFlight[hash] = true
		t := &downloadChunkTask{
			sess:      s,
			ctx:       ctx,
			client:    client,
			peerID:    peerID,
			namespace: s.Namespace,
			nodeKey:   nodeKey,
			hash:      hash,
			chunks:    chunksByHash[hash],
			tempPath:  tempPath,
		}
		if _, err := s.Tasks.Submit(t); err != nil {
			s.Pool.Release(peerID, client)
			needed[hash] = true
			delete(inFlight, hash)
			break
		}
		submitted++
	}
	return submitted
}

// fanOutExchangeMarket submits an ExchangeMarketTask to every live peer, used
// when no provider is currently reachable for any needed chunk — gossip is
// the only way to learn about new providers.
func (s *Session) fanOutExchangeMarket(ctx context.Context, nm *nodemarket.NodeMarket, marketKey string, live []discovery.Peer, rng *rand.Rand) int {
	order := append([]discovery.Peer{}, live...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	submitted := 0
	for _, peer := range order {
		if s.Gossip != nil && !s.Gossip.Allow(1) {
			continue
		}
		c, err := s.Pool.Acquire(peer.DeviceID)
		if err != nil {
			continue
		}
		pc, ok := c.(PeerClient)
		if !ok {
			s.Pool.Release(peer.DeviceID, c)
			continue
		}
		t := &exchangeMarketTask{
			sess:      s,
			ctx:       ctx,
			client:    pc,
			peerID:    peer.DeviceID,
			namespace: s.Namespace,
			marketKey: marketKey,
			record:    nm.Market.AsRecord(),
		}
		if _, err := s.Tasks.Submit(t); err != nil {
			s.Pool.Release(peer.DeviceID, pc)
			continue
		}
		submitted++
	}
	return submitted
}

// gossipToOneConsumer tells one peer missing hash that we now have it,
// rate-limited by s.Gossip so a download burst doesn't trigger a gossip
// storm.
func (s *Session) gossipToOneConsumer(ctx context.Context, nm *nodemarket.NodeMarket, marketKey, hash string) {
	if s.Gossip != nil && !s.Gossip.Allow(1) {
		return
	}
	for _, consumerID := range nm.FindConsumers(hash) {
		c, err := s.Pool.Acquire(consumerID)
		if err != nil {
			continue
		}
		pc, ok := c.(PeerClient)
		if !ok {
			s.Pool.Release(consumerID, c)
			continue
		}
		t := &exchangeMarketTask{
			sess:      s,
			ctx:       ctx,
			client:    pc,
			peerID:    consumerID,
			namespace: s.Namespace,
			marketKey: marketKey,
			record:    nm.Market.AsRecord(),
		}
		if _, err := s.Tasks.Submit(t); err != nil {
			s.Pool.Release(consumerID, pc)
		}
		return
	}
}

// applyOutcome folds one tasklist.Outcome back into the scheduling loop's
// state: a successful download marks the chunk present in the market and
// gossips it onward; a failed one goes back into needed for the next round.
// This runs on the main loop after WaitAny, so nm mutation stays
// single-threaded even though downloadChunkTask.Execute ran concurrently.
func (s *Session) applyOutcome(ctx context.Context, out tasklist.Outcome, marketKey string, nm *nodemarket.NodeMarket, needed map[string]bool, inFlight map[string]bool) {
	switch res := out.Result.(type) {
	case downloadResult:
		delete(inFlight, res.hash)
		if out.Err != nil {
			needed[res.hash] = true
			return
		}
		nm.ProvideChunk(s.DeviceID, res.hash)
		s.gossipToOneConsumer(ctx, nm, marketKey, res.hash)
	case exchangeResult:
		if out.Err == nil && res.remote != nil {
			nm.Market.Merge(res.remote)
		}
	}
}

func partsSize(parts []model.NodeChunk) int64 {
	var total int64
	for _, p := range parts {
		if end := p.Offset + int64(p.Size); end > total {
			total = end
		}
	}
	return total
}

func (s *Session) logProgress(nodeKey string, hashes []string, needed map[string]bool, inFlight map[string]bool) {
	var icons strings.Builder
	for _, h := range hashes {
		switch {
		case inFlight[h]:
			icons.WriteRune('⌛')
		case needed[h]:
			icons.WriteRune('✖')
		default:
			icons.WriteRune('✔')
		}
	}
	available := len(hashes) - len(needed) - len(inFlight)
	s.Logger.SyncProgress(s.Namespace, nodeKey, available, len(needed), len(inFlight), icons.String())
}
