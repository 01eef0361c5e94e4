package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/YAtOff/lansync/internal/model"
)

// SaveStoredNode upserts a StoredNode and its chunk index, replacing any
// chunk rows previously recorded for this node. Mirrors the original's
// store_new_node: one atomic transaction, dedup via the node_chunk table.
func (s *Store) SaveStoredNode(n model.StoredNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partsJSON, err := marshalParts(n.Parts)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO stored_node
			(namespace, root_folder, key, path, checksum, parts, signature, local_modified_time, local_created_time, ready)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Namespace, n.RootFolder, n.Key, n.Path, n.Checksum, partsJSON, n.Signature,
		n.LocalModifiedTime, n.LocalCreatedTime, boolToInt(n.Ready),
	)
	if err != nil {
		return fmt.Errorf("store: upsert stored node: %w", err)
	}

	if _, err := tx.Exec(
		"DELETE FROM node_chunk WHERE namespace = ? AND node_key = ?",
		n.Namespace, n.Key,
	); err != nil {
		return fmt.Errorf("store: clear node chunks: %w", err)
	}

	for _, c := range n.Parts {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO chunk (namespace, hash, size) VALUES (?, ?, ?)",
			n.Namespace, c.Hash, c.Size,
		); err != nil {
			return fmt.Errorf("store: insert chunk: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO node_chunk (namespace, node_key, chunk_hash, offset, path) VALUES (?, ?, ?, ?, ?)",
			n.Namespace, n.Key, c.Hash, c.Offset, n.Path,
		); err != nil {
			return fmt.Errorf("store: insert node chunk: %w", err)
		}
	}

	return tx.Commit()
}

// GetStoredNode fetches a node's local record, or ErrNodeNotFound.
func (s *Store) GetStoredNode(namespace, rootFolder, key string) (*model.StoredNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n model.StoredNode
	n.Namespace, n.RootFolder, n.Key = namespace, rootFolder, key
	var partsJSON string
	var ready int

	err := s.db.QueryRow(
		`SELECT path, checksum, parts, signature, local_modified_time, local_created_time, ready
		 FROM stored_node WHERE namespace = ? AND root_folder = ? AND key = ?`,
		namespace, rootFolder, key,
	).Scan(&n.Path, &n.Checksum, &partsJSON, &n.Signature, &n.LocalModifiedTime, &n.LocalCreatedTime, &ready)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: query stored node: %w", err)
	}

	parts, err := unmarshalParts(partsJSON)
	if err != nil {
		return nil, err
	}
	n.Parts = parts
	n.Ready = ready != 0
	return &n, nil
}

// DeleteStoredNode removes a node's record and its chunk index rows. The
// underlying chunk rows in the `chunk` table are left for the GC task to
// reclaim once no node references them (spec's Open Question 3).
func (s *Store) DeleteStoredNode(namespace, rootFolder, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM node_chunk WHERE namespace = ? AND node_key = ?",
		namespace, key,
	); err != nil {
		return fmt.Errorf("store: delete node chunks: %w", err)
	}

	result, err := tx.Exec(
		"DELETE FROM stored_node WHERE namespace = ? AND root_folder = ? AND key = ?",
		namespace, rootFolder, key,
	)
	if err != nil {
		return fmt.Errorf("store: delete stored node: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNodeNotFound
	}
	return tx.Commit()
}

// FindChunkPath returns the path of a node already on disk that contains
// chunkHash, so a placeholder can reuse those bytes instead of downloading
// them again (mirrors NodeChunkModel.find in the original's node.py).
func (s *Store) FindChunkPath(namespace, chunkHash string) (path string, offset int64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRow(
		"SELECT path, offset FROM node_chunk WHERE namespace = ? AND chunk_hash = ? LIMIT 1",
		namespace, chunkHash,
	).Scan(&path, &offset)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("store: find chunk: %w", err)
	}
	return path, offset, true, nil
}

// UpsertRemoteNode records the event log's view of a node, keyed by
// (namespace, key) as spec.md's data model requires.
func (s *Store) UpsertRemoteNode(n model.RemoteNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partsJSON, err := marshalParts(n.Parts)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO remote_node
			(namespace, key, sequence_number, path, timestamp, checksum, parts, signature, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Namespace, n.Key, n.SequenceNumber, n.Path, n.Timestamp, n.Checksum, partsJSON, n.Signature, boolToInt(n.Deleted),
	)
	if err != nil {
		return fmt.Errorf("store: upsert remote node: %w", err)
	}
	return nil
}

// GetRemoteNode fetches the event log's view of a node, or ErrNodeNotFound.
func (s *Store) GetRemoteNode(namespace, key string) (*model.RemoteNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n model.RemoteNode
	n.Namespace, n.Key = namespace, key
	var partsJSON string
	var deleted int

	err := s.db.QueryRow(
		`SELECT sequence_number, path, timestamp, checksum, parts, signature, deleted
		 FROM remote_node WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&n.SequenceNumber, &n.Path, &n.Timestamp, &n.Checksum, &partsJSON, &n.Signature, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: query remote node: %w", err)
	}

	parts, err := unmarshalParts(partsJSON)
	if err != nil {
		return nil, err
	}
	n.Parts = parts
	n.Deleted = deleted != 0
	return &n, nil
}

// DeleteRemoteNode removes a node from the event log cache, used when a
// delete NodeEvent is applied by the event handler (component I).
func (s *Store) DeleteRemoteNode(namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM remote_node WHERE namespace = ? AND key = ?", namespace, key)
	if err != nil {
		return fmt.Errorf("store: delete remote node: %w", err)
	}
	return nil
}

// MaxSequenceNumber returns the highest sequence number seen for namespace,
// used by the event handler to resume fetching from the right offset.
func (s *Store) MaxSequenceNumber(namespace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max sql.NullInt64
	err := s.db.QueryRow(
		"SELECT MAX(sequence_number) FROM remote_node WHERE namespace = ?",
		namespace,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: query max sequence number: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// AllNodeKeys returns the union of node keys known either locally or
// through the event log for a namespace — the driving set for a sync round.
func (s *Store) AllNodeKeys(namespace string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var keys []string

	rows, err := s.db.Query("SELECT DISTINCT key FROM stored_node WHERE namespace = ?", namespace)
	if err != nil {
		return nil, fmt.Errorf("store: query stored node keys: %w", err)
	}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, err
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	rows.Close()

	rows, err = s.db.Query("SELECT DISTINCT key FROM remote_node WHERE namespace = ?", namespace)
	if err != nil {
		return nil, fmt.Errorf("store: query remote node keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	return keys, nil
}

// ChunkReferenced reports whether any node_chunk row still references
// chunkHash, the liveness check the GC sweep uses before deleting a chunk.
func (s *Store) ChunkReferenced(namespace, chunkHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM node_chunk WHERE namespace = ? AND chunk_hash = ?",
		namespace, chunkHash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: query chunk references: %w", err)
	}
	return count > 0, nil
}

// DeleteChunkRow removes a chunk's row from the chunk table once the GC
// sweep has confirmed it is unreferenced and deleted its on-disk bytes.
func (s *Store) DeleteChunkRow(namespace, chunkHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM chunk WHERE namespace = ? AND hash = ?", namespace, chunkHash)
	if err != nil {
		return fmt.Errorf("store: delete chunk row: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
