// Package clientpool implements lansync's component E: a bounded pool of
// per-peer transport handles, so the send/receive engine never opens more
// than a configured number of concurrent connections to the same peer.
package clientpool

import (
	"errors"
	"sync"
)

// ErrPeerBusy is returned by Acquire (and passed on by TryAcquirePeers) when
// a peer is already at its concurrency limit.
var ErrPeerBusy = errors.New("clientpool: peer at concurrency limit")

// Client is whatever transport handle the send/receive engine uses to talk
// to a peer (internal/transport.Client implements this).
type Client interface {
	Close() error
}

// Factory creates a new Client for deviceID, dialing the peer's address.
type Factory func(deviceID string) (Client, error)

type entry struct {
	idle  []Client
	inUse int
}

// Pool is a bounded, per-peer pool of Client handles. All pool state is
// guarded by a single mutex; per spec.md's concurrency model no network
// call is ever made while mu is held — dialing happens outside the lock,
// and only bookkeeping (in-use counts, idle lists) happens inside it.
type Pool struct {
	mu      sync.Mutex
	perPeer int
	dial    Factory
	peers   map[string]*entry
}

// New creates a Pool allowing up to perPeer concurrent clients per device.
func New(perPeer int, dial Factory) *Pool {
	return &Pool{perPeer: perPeer, dial: dial, peers: make(map[string]*entry)}
}

// Acquire returns a Client for deviceID, reusing an idle one if available,
// dialing a new one if the peer is under its concurrency limit, or
// returning ErrPeerBusy.
func (p *Pool) Acquire(deviceID string) (Client, error) {
	p.mu.Lock()
	e, ok := p.peers[deviceID]
	if !ok {
		e = &entry{}
		p.peers[deviceID] = e
	}

	if len(e.idle) > 0 {
		c := e.idle[len(e.idle)-1]
		e.idle = e.idle[:len(e.idle)-1]
		e.inUse++
		p.mu.Unlock()
		return c, nil
	}

	if e.inUse >= p.perPeer {
		p.mu.Unlock()
		return nil, ErrPeerBusy
	}
	e.inUse++
	p.mu.Unlock()

	c, err := p.dial(deviceID)
	if err != nil {
		p.mu.Lock()
		e.inUse--
		p.mu.Unlock()
		return nil, err
	}
	return c, nil
}

// TryAcquirePeers attempts Acquire against each of the given device IDs in
// order, returning the first one that succeeds. Used by the send/receive
// engine's scheduling loop when any live provider will do.
func (p *Pool) TryAcquirePeers(deviceIDs []string) (string, Client, error) {
	var lastErr error
	for _, id := range deviceIDs {
		c, err := p.Acquire(id)
		if err == nil {
			return id, c, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrPeerBusy
	}
	return "", nil, lastErr
}

// Release returns a Client to the idle pool for reuse.
func (p *Pool) Release(deviceID string, c Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.peers[deviceID]
	if !ok {
		c.Close()
		return
	}
	e.inUse--
	e.idle = append(e.idle, c)
}

// Remove closes and discards a Client instead of returning it to the idle
// pool, used when a transport error suggests the connection is bad.
func (p *Pool) Remove(deviceID string, c Client) {
	p.mu.Lock()
	e, ok := p.peers[deviceID]
	if ok {
		e.inUse--
	}
	p.mu.Unlock()
	c.Close()
}

// InUse returns the number of clients currently checked out for deviceID,
// mostly useful for tests and metrics.
func (p *Pool) InUse(deviceID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.peers[deviceID]; ok {
		return e.inUse
	}
	return 0
}
