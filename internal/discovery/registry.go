// Package discovery implements the peer-discovery side of lansync that
// spec.md scopes out of its core components but the send/receive engine
// depends on to have anyone to talk to: a PeerRegistry tracking who's alive,
// fed by one of two pluggable backends (UDP broadcast or a centralized
// registry), grounded on the original's lansync/discovery.py,
// broadcast_discovery.py and centralized_discovery.py.
package discovery

import (
	"sync"
	"time"
)

// Peer is a device seen by discovery: its last known address/port and the
// time it was last heard from, used to compute liveness.
type Peer struct {
	DeviceID string
	Address  string
	Port     int
	LastSeen time.Time
}

// PeerRegistry tracks discovered peers for one namespace under a single
// lock, as spec.md's concurrency model requires (PeerRegistry sits between
// ClientPool and DB in the lock order).
type PeerRegistry struct {
	mu       sync.RWMutex
	liveness time.Duration
	peers    map[string]Peer
}

// NewPeerRegistry creates an empty registry. liveness is the window (3x the
// discovery ping interval, per spec.md's Open Question 1) within which a
// peer is still considered live.
func NewPeerRegistry(liveness time.Duration) *PeerRegistry {
	return &PeerRegistry{liveness: liveness, peers: make(map[string]Peer)}
}

// Observe records that deviceID was seen at address:port just now, updating
// its LastSeen. Mirrors BroadcastPeerRegistry.handle_discovery_message.
func (r *PeerRegistry) Observe(deviceID, address string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[deviceID] = Peer{DeviceID: deviceID, Address: address, Port: port, LastSeen: time.Now()}
}

// Remove drops a peer entirely, used when the client pool reports it
// unreachable.
func (r *PeerRegistry) Remove(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, deviceID)
}

// Live returns every peer seen within the liveness window, the set the
// send/receive engine treats as "currently live peers".
func (r *PeerRegistry) Live() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := time.Now().Add(-r.liveness)
	var live []Peer
	for _, p := range r.peers {
		if p.LastSeen.After(cutoff) {
			live = append(live, p)
		}
	}
	return live
}

// Choose returns one live peer, preferring deviceID if it's live, otherwise
// an arbitrary live peer. Mirrors PeerRegistry.choose from the original,
// generalized to the liveness-window check the centralized backend lacked.
func (r *PeerRegistry) Choose(deviceID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := time.Now().Add(-r.liveness)
	if p, ok := r.peers[deviceID]; ok && p.LastSeen.After(cutoff) {
		return p, true
	}
	for _, p := range r.peers {
		if p.LastSeen.After(cutoff) {
			return p, true
		}
	}
	return Peer{}, false
}

// Get returns the registry's current record for deviceID regardless of
// liveness, or false if it has never been observed.
func (r *PeerRegistry) Get(deviceID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[deviceID]
	return p, ok
}
