package store

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

var bucketChunkGC = []byte("chunk_gc")

// GCLedger tracks the last time each on-disk chunk was referenced by a
// StoredNode, so a background task can reclaim chunks nothing points to
// anymore (spec's Open Question 3: storage GC is a background task, left
// unspecified in detail). Adapted from the donor's content-addressed-store
// bolt ledger (BoltCAS): same bucket-of-hash-to-timestamp shape, repurposed
// here as a reference-liveness ledger instead of a presence cache.
type GCLedger struct {
	db *bolt.DB
}

// OpenGCLedger opens (creating if necessary) the bolt-backed GC ledger file.
func OpenGCLedger(path string) (*GCLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketChunkGC)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &GCLedger{db: db}, nil
}

func (l *GCLedger) Close() error { return l.db.Close() }

// Touch records that chunkHash was just referenced, resetting its age.
func (l *GCLedger) Touch(chunkHash string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunkGC)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(time.Now().Unix()))
		return b.Put([]byte(chunkHash), buf)
	})
}

// Forget removes a chunk from the ledger outright, used when a node that
// referenced it is deleted and no replacement reference is expected.
func (l *GCLedger) Forget(chunkHash string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChunkGC).Delete([]byte(chunkHash))
	})
}

// Sweep deletes ledger entries older than maxAge and returns the hashes
// removed, so the caller can also unlink the corresponding on-disk chunk
// files and `chunk`/`node_chunk` rows.
func (l *GCLedger) Sweep(maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	var removed []string

	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunkGC)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) < 8 {
				continue
			}
			ts := int64(binary.BigEndian.Uint64(v))
			if ts < cutoff {
				hash := string(k)
				if err := c.Delete(); err != nil {
					return err
				}
				removed = append(removed, hash)
			}
		}
		return nil
	})
	return removed, err
}

// RunGC runs Sweep on a ticker until ctx-like stop channel is closed,
// deleting orphaned chunk rows and their on-disk bytes from store along the
// way. The caller supplies chunkPath so the ledger itself stays agnostic of
// on-disk layout.
func RunGC(ledger *GCLedger, s *Store, namespace string, interval, maxAge time.Duration, chunkPath func(hash string) string, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hashes, err := ledger.Sweep(maxAge)
			if err != nil {
				continue
			}
			for _, hash := range hashes {
				if referenced, _ := s.ChunkReferenced(namespace, hash); referenced {
					_ = ledger.Touch(hash)
					continue
				}
				_ = os.Remove(chunkPath(hash))
				_ = s.DeleteChunkRow(namespace, hash)
			}
		}
	}
}
