// Package nodemarket implements lansync's component D: it binds a Market
// (internal/market) to a specific node's ordered, deduplicated chunk-hash
// list, so "bit i of the bitmap" has a concrete chunk hash behind it.
package nodemarket

import (
	"math/rand"
	"sort"

	"github.com/YAtOff/lansync/internal/market"
)

// NodeMarket is a Market scoped to one node's chunk list.
type NodeMarket struct {
	NodeKey string
	Hashes  []string // sorted, deduplicated
	Market  *market.Market
}

// dedupSorted returns a sorted copy of hashes with duplicates removed.
func dedupSorted(hashes []string) []string {
	out := append([]string{}, hashes...)
	sort.Strings(out)
	j := 0
	for i := 1; i < len(out); i++ {
		if out[i] != out[j] {
			j++
			out[j] = out[i]
		}
	}
	if len(out) > 0 {
		out = out[:j+1]
	}
	return out
}

// ForFileProvider builds a NodeMarket for a device that already has every
// chunk of nodeKey (e.g. the node's original owner).
func ForFileProvider(deviceID, nodeKey string, hashes []string) *NodeMarket {
	h := dedupSorted(hashes)
	return &NodeMarket{NodeKey: nodeKey, Hashes: h, Market: market.ForFileProvider(deviceID, len(h))}
}

// ForFileConsumer builds a NodeMarket for a device that wants nodeKey but
// has none of its chunks yet.
func ForFileConsumer(deviceID, nodeKey string, hashes []string) *NodeMarket {
	h := dedupSorted(hashes)
	return &NodeMarket{NodeKey: nodeKey, Hashes: h, Market: market.ForFileConsumer(deviceID, len(h))}
}

// indexOf returns the bitmap index of chunkHash, or -1 if it's not part of
// this node.
func (nm *NodeMarket) indexOf(chunkHash string) int {
	i := sort.SearchStrings(nm.Hashes, chunkHash)
	if i < len(nm.Hashes) && nm.Hashes[i] == chunkHash {
		return i
	}
	return -1
}

// FindProviders returns every known peer that has chunkHash.
func (nm *NodeMarket) FindProviders(chunkHash string) []string {
	idx := nm.indexOf(chunkHash)
	if idx < 0 {
		return nil
	}
	var providers []string
	for _, peer := range nm.Market.Peers() {
		if nm.Market.Get(peer).Has(idx) {
			providers = append(providers, peer)
		}
	}
	return providers
}

// FindConsumers returns every known peer that is missing chunkHash, the
// gossip target list for "who should I tell I just got this chunk".
func (nm *NodeMarket) FindConsumers(chunkHash string) []string {
	idx := nm.indexOf(chunkHash)
	if idx < 0 {
		return nil
	}
	var consumers []string
	for _, peer := range nm.Market.Peers() {
		if !nm.Market.Get(peer).Has(idx) {
			consumers = append(consumers, peer)
		}
	}
	return consumers
}

// ProvideChunk records that deviceID now has chunkHash, e.g. immediately
// after writing it to our own placeholder, so our own bitmap entry in the
// market reflects reality before we gossip it to anyone else.
func (nm *NodeMarket) ProvideChunk(deviceID, chunkHash string) {
	idx := nm.indexOf(chunkHash)
	if idx < 0 {
		return
	}
	nm.Market.MarkHave(deviceID, idx)
}

// NeededChunks returns, from deviceID's point of view, the chunk hashes it
// doesn't have yet, in random order so repeated scheduling rounds fan out
// requests rather than hammering the same chunk first every time.
func (nm *NodeMarket) NeededChunks(deviceID string, rng *rand.Rand) []string {
	have := nm.Market.Get(deviceID)
	var needed []string
	for i, h := range nm.Hashes {
		if !have.Has(i) {
			needed = append(needed, h)
		}
	}
	if rng != nil {
		rng.Shuffle(len(needed), func(i, j int) { needed[i], needed[j] = needed[j], needed[i] })
	}
	return needed
}

// Exchange merges another peer's NodeMarket state into ours for the same
// node; it is a no-op when other is nil or describes a different node.
func (nm *NodeMarket) Exchange(other *NodeMarket) {
	if other == nil || other.NodeKey != nm.NodeKey {
		return
	}
	nm.Market.Merge(other.Market)
}

// Complete reports whether deviceID's bitmap shows every chunk present.
func (nm *NodeMarket) Complete(deviceID string) bool {
	return nm.Market.Get(deviceID).HasAll()
}
