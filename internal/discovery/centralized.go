package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boltdb/bolt"
)

var peerCacheBucket = []byte("last_known_peers")

// CentralizedRegistryDiscovery is the "coordinator present" discovery
// backend: it periodically announces this device to a coordinator HTTP
// endpoint and polls the same endpoint for the namespace's live peer list.
// Grounded on the original's centralized_discovery.py, with the redis
// backing store replaced by a plain HTTP registry endpoint (spec.md's only
// sanctioned centralized component is the event server) and a boltdb cache
// so a just-restarted daemon has candidates to dial before the first poll
// completes.
type CentralizedRegistryDiscovery struct {
	DeviceID     string
	Namespace    string
	Port         int
	RegistryURL  string
	PingInterval time.Duration
	Registry     *PeerRegistry
	Cache        *bolt.DB // optional; nil disables the last-known cache

	client *http.Client
}

type registryAnnouncement struct {
	DeviceID  string `json:"device_id"`
	Namespace string `json:"namespace"`
	Address   string `json:"address"`
	Port      int    `json:"port"`
}

type registryPeerList struct {
	Peers []registryAnnouncement `json:"peers"`
}

// Run announces this device and polls for peers on PingInterval, blocking
// until ctx is cancelled.
func (d *CentralizedRegistryDiscovery) Run(ctx context.Context) error {
	if d.client == nil {
		d.client = &http.Client{Timeout: 5 * time.Second}
	}
	if err := d.loadCache(); err != nil {
		// A cold or corrupt cache shouldn't block discovery from starting.
		_ = err
	}

	ticker := time.NewTicker(d.PingInterval)
	defer ticker.Stop()

	for {
		d.announce(ctx)
		d.poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *CentralizedRegistryDiscovery) announce(ctx context.Context) {
	body, err := json.Marshal(registryAnnouncement{
		DeviceID: d.DeviceID, Namespace: d.Namespace, Port: d.Port,
	})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.RegistryURL+"/announce", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (d *CentralizedRegistryDiscovery) poll(ctx context.Context) {
	url := fmt.Sprintf("%s/namespace/%s/peers", d.RegistryURL, d.Namespace)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var list registryPeerList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return
	}
	for _, p := range list.Peers {
		if p.DeviceID == d.DeviceID {
			continue
		}
		d.Registry.Observe(p.DeviceID, p.Address, p.Port)
		d.saveCache(p)
	}
}

func (d *CentralizedRegistryDiscovery) loadCache() error {
	if d.Cache == nil {
		return nil
	}
	return d.Cache.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(peerCacheBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var p registryAnnouncement
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			d.Registry.Observe(p.DeviceID, p.Address, p.Port)
			return nil
		})
	})
}

func (d *CentralizedRegistryDiscovery) saveCache(p registryAnnouncement) {
	if d.Cache == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = d.Cache.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(peerCacheBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.DeviceID), data)
	})
}
