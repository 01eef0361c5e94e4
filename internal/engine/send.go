package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/YAtOff/lansync/internal/chunker"
	"github.com/YAtOff/lansync/internal/model"
	"github.com/YAtOff/lansync/internal/nodemarket"
)

// SendParams describes the file Send is about to publish.
type SendParams struct {
	Key     string // node key, model.KeyForPath(RelPath)
	RelPath string // path relative to the namespace's root folder
	// LocalPath is the absolute path of the file's current content.
	LocalPath string
	// BasisPath, if non-empty, is the absolute path of the content this file
	// held the last time it was synced — the basis delta re-chunking diffs
	// against. When empty (first send, or the caller has no prior copy kept
	// around), Send falls back to fixed-size chunking.
	BasisPath string
	// Stored is the node's previous StoredNode record, or nil on first send.
	Stored *model.StoredNode
}

// Send implements spec.md 4.H's Send: chunk the file (delta re-chunking
// against BasisPath when a prior signature is available, fixed-size
// otherwise), persist it as a StoredNode, publish a CREATE event, seed this
// device's market entry as a full provider, and gossip it to every live
// peer so they learn a new node exists.
func (s *Session) Send(ctx context.Context, p SendParams) (model.StoredNode, error) {
	info, err := os.Stat(p.LocalPath)
	if err != nil {
		return model.StoredNode{}, fmt.Errorf("engine: send %s: stat local file: %w", p.Key, err)
	}

	parts, err := s.chunkForSend(p)
	if err != nil {
		return model.StoredNode{}, fmt.Errorf("engine: send %s: chunk file: %w", p.Key, err)
	}

	sigFile, err := os.Open(p.LocalPath)
	if err != nil {
		return model.StoredNode{}, fmt.Errorf("engine: send %s: open for signature: %w", p.Key, err)
	}
	newSig, err := chunker.ComputeSignature(sigFile, s.SignatureBlockSize)
	sigFile.Close()
	if err != nil {
		return model.StoredNode{}, fmt.Errorf("engine: send %s: compute signature: %w", p.Key, err)
	}

	checksum, err := model.FileChecksum(p.LocalPath)
	if err != nil {
		return model.StoredNode{}, fmt.Errorf("engine: send %s: checksum: %w", p.Key, err)
	}

	node := model.StoredNode{
		Namespace:         s.Namespace,
		RootFolder:        s.RootFolder,
		Key:               p.Key,
		Path:              p.RelPath,
		Checksum:          checksum,
		Parts:             parts,
		Signature:         newSig.Serialize(),
		LocalModifiedTime: info.ModTime(),
		LocalCreatedTime:  info.ModTime(),
		Ready:             true,
	}

	if err := s.Store.SaveStoredNode(node); err != nil {
		return model.StoredNode{}, fmt.Errorf("engine: send %s: save stored node: %w", p.Key, err)
	}

	if s.Events != nil {
		if _, err := s.Events.PushCreate(ctx, s.Namespace, node); err != nil {
			s.Logger.Error(err, "publish create event")
		} else if _, err := s.Events.HandleNewEvents(ctx, s.Namespace); err != nil {
			s.Logger.Error(err, "fetch events after publish")
		}
	}

	hashes := chunkHashes(parts)
	marketKey := marketKeyFor(node.Key, node.Checksum)
	nm := nodemarket.ForFileProvider(s.DeviceID, marketKey, hashes)
	if err := nm.ExchangeWithDB(s.Store, s.Namespace); err != nil {
		return model.StoredNode{}, fmt.Errorf("engine: send %s: persist market: %w", p.Key, err)
	}

	live := s.Registry.Live()
	rng := newRand()
	s.fanOutExchangeMarket(ctx, nm, marketKey, live, rng)
	s.Tasks.WaitAll()

	s.Metrics.RecordSyncAction("upload")
	return node, nil
}

// chunkForSend picks delta re-chunking against p.BasisPath when a previous
// signature and basis are both available, falling back to fixed-size
// chunking otherwise (first send, or no basis kept around). See
// internal/chunker.DeltaNodeChunks: it reads matched blocks back out of
// basis, so a confirmed match's bytes are correct regardless of whether they
// come from the old file or the new one.
func (s *Session) chunkForSend(p SendParams) ([]model.NodeChunk, error) {
	if p.Stored == nil || len(p.Stored.Signature) == 0 || p.BasisPath == "" {
		return chunker.FixedNodeChunks(p.LocalPath, s.ChunkSize)
	}

	sig, err := chunker.DeserializeSignature(p.Stored.Signature)
	if err != nil {
		return chunker.FixedNodeChunks(p.LocalPath, s.ChunkSize)
	}

	newFile, err := os.Open(p.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("open new content: %w", err)
	}
	ops, err := chunker.ComputeDelta(newFile, sig)
	newFile.Close()
	if err != nil {
		return nil, fmt.Errorf("compute delta: %w", err)
	}

	basis, err := os.Open(p.BasisPath)
	if err != nil {
		return chunker.FixedNodeChunks(p.LocalPath, s.ChunkSize)
	}
	defer basis.Close()

	return chunker.DeltaNodeChunks(basis, sig.BlockSize, ops)
}
