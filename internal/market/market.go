package market

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Market is a node's gossip state: for every peer it has heard from, the
// ChunkSet describing which of that node's chunks the peer has. Merging two
// Markets for the same node is pointwise ChunkSet.Merge per peer, so the
// whole structure inherits the same CRDT guarantees (commutative,
// associative, idempotent) as ChunkSet itself.
type Market struct {
	mu         sync.RWMutex
	chunkCount int
	peers      map[string]ChunkSet
}

// New creates an empty Market over chunkCount positions.
func New(chunkCount int) *Market {
	return &Market{chunkCount: chunkCount, peers: make(map[string]ChunkSet)}
}

// ForFileProvider seeds a Market as a provider would: this device has every
// chunk, so its own entry starts Full.
func ForFileProvider(deviceID string, chunkCount int) *Market {
	m := New(chunkCount)
	m.peers[deviceID] = Full(chunkCount)
	return m
}

// ForFileConsumer seeds a Market as a consumer would: this device has
// nothing yet, so its own entry starts Empty.
func ForFileConsumer(deviceID string, chunkCount int) *Market {
	m := New(chunkCount)
	m.peers[deviceID] = Empty(chunkCount)
	return m
}

// Set replaces (or creates) the ChunkSet for peer deviceID.
func (m *Market) Set(deviceID string, cs ChunkSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[deviceID] = cs
}

// Get returns the ChunkSet for deviceID, or an Empty one if unknown.
func (m *Market) Get(deviceID string) ChunkSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cs, ok := m.peers[deviceID]; ok {
		return cs
	}
	return Empty(m.chunkCount)
}

// MarkHave records that deviceID now has chunk index i, e.g. after
// receiving it. If deviceID is unknown to this Market yet, it is added with
// an empty set first.
func (m *Market) MarkHave(deviceID string, i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.peers[deviceID]
	if !ok {
		cs = Empty(m.chunkCount)
	}
	cs.Mark(i)
	m.peers[deviceID] = cs
}

// Peers returns the device IDs this Market has an entry for.
func (m *Market) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// Merge folds other's peer entries into m: for peers present in both,
// ChunkSet.Merge; for peers only in other, they're adopted as-is. This is
// the operation driving gossip: two Markets for the same node, merged,
// produce a Market at least as informed as either input.
func (m *Market) Merge(other *Market) {
	other.mu.RLock()
	snapshot := make(map[string]ChunkSet, len(other.peers))
	for id, cs := range other.peers {
		snapshot[id] = cs
	}
	other.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cs := range snapshot {
		if existing, ok := m.peers[id]; ok {
			m.peers[id] = existing.Merge(cs)
		} else {
			m.peers[id] = cs
		}
	}
}

// AsRecord serializes the Market to a simple length-prefixed wire format:
// chunkCount, peer count, then per peer a length-prefixed device ID
// followed by its bitmap bytes. There's no pack library better suited to
// "serialize a map of bitmaps" than stdlib encoding/binary for a format this
// small and internal to lansync's own wire protocol.
func (m *Market) AsRecord() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf := make([]byte, 0, 64)
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(m.chunkCount))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(m.peers)))
	buf = append(buf, header...)

	for id, cs := range m.peers {
		idBytes := []byte(id)
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(idBytes)))
		buf = append(buf, lenBuf...)
		buf = append(buf, idBytes...)
		buf = append(buf, cs.Bytes()...)
	}
	return buf
}

// FromRecord parses AsRecord's wire format back into a Market.
func FromRecord(data []byte) (*Market, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("market: record too short")
	}
	chunkCount := int(binary.BigEndian.Uint32(data[0:4]))
	peerCount := int(binary.BigEndian.Uint32(data[4:8]))
	m := New(chunkCount)

	pos := 8
	bitmapLen := wordCount(chunkCount) * 8
	for i := 0; i < peerCount; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("market: truncated record at peer %d", i)
		}
		idLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+idLen+bitmapLen > len(data) {
			return nil, fmt.Errorf("market: truncated record body at peer %d", i)
		}
		id := string(data[pos : pos+idLen])
		pos += idLen
		cs := FromBytes(chunkCount, data[pos:pos+bitmapLen])
		pos += bitmapLen
		m.peers[id] = cs
	}
	return m, nil
}
