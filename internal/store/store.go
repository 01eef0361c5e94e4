// Package store implements lansync's component B: the local SQL-backed
// chunk index. It tracks which files this device has materialized
// (StoredNode), what the event log says about every node (RemoteNode), and
// which chunks are on disk and for which nodes, so the sync decision and
// send/receive engine never have to touch the filesystem to ask "do I have
// this already".
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/YAtOff/lansync/internal/model"
)

var (
	ErrNodeNotFound  = errors.New("store: node not found")
	ErrChunkNotFound = errors.New("store: chunk not found")
)

// Store is the SQLite-backed local chunk index for one device. A single
// Store instance serves every namespace rooted on this device; rows are
// scoped by namespace the way the original per-session SQLite file was
// scoped by device.
type Store struct {
	db *sql.DB
	// mu is the DB transaction lock from spec.md's concurrency model: it is
	// re-entrant-by-convention (callers take it once per logical operation,
	// never nest calls that also lock it) and sits below ClientPool and
	// PeerRegistry in the lock order.
	mu sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema is current.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite + our own mutex: one writer at a time
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS namespace (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS root_folder (
	namespace TEXT NOT NULL REFERENCES namespace(name) ON DELETE CASCADE,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (namespace, name)
);

CREATE TABLE IF NOT EXISTS device (
	namespace TEXT NOT NULL REFERENCES namespace(name) ON DELETE CASCADE,
	device_id TEXT NOT NULL,
	PRIMARY KEY (namespace, device_id)
);

CREATE TABLE IF NOT EXISTS stored_node (
	namespace TEXT NOT NULL,
	root_folder TEXT NOT NULL,
	key TEXT NOT NULL,
	path TEXT NOT NULL,
	checksum TEXT NOT NULL,
	parts TEXT NOT NULL,
	signature BLOB,
	local_modified_time TIMESTAMP NOT NULL,
	local_created_time TIMESTAMP NOT NULL,
	ready INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, root_folder, key)
);

CREATE TABLE IF NOT EXISTS remote_node (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	path TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	checksum TEXT NOT NULL,
	parts TEXT NOT NULL,
	signature BLOB,
	deleted INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, key)
);

CREATE TABLE IF NOT EXISTS chunk (
	namespace TEXT NOT NULL,
	hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	PRIMARY KEY (namespace, hash)
);

CREATE TABLE IF NOT EXISTS node_chunk (
	namespace TEXT NOT NULL,
	node_key TEXT NOT NULL,
	chunk_hash TEXT NOT NULL,
	offset INTEGER NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (namespace, node_key, chunk_hash, offset)
);

CREATE TABLE IF NOT EXISTS market (
	namespace TEXT NOT NULL,
	node_key TEXT NOT NULL,
	record BLOB NOT NULL,
	PRIMARY KEY (namespace, node_key)
);

CREATE INDEX IF NOT EXISTS idx_node_chunk_hash ON node_chunk(namespace, chunk_hash);
CREATE INDEX IF NOT EXISTS idx_remote_node_seq ON remote_node(namespace, sequence_number);
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("store: set schema version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("store: query schema version: %w", err)
	}
	return nil
}

func marshalParts(parts []model.NodeChunk) (string, error) {
	b, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("store: marshal parts: %w", err)
	}
	return string(b), nil
}

func unmarshalParts(data string) ([]model.NodeChunk, error) {
	var parts []model.NodeChunk
	if data == "" {
		return parts, nil
	}
	if err := json.Unmarshal([]byte(data), &parts); err != nil {
		return nil, fmt.Errorf("store: unmarshal parts: %w", err)
	}
	return parts, nil
}

// EnsureNamespace registers a namespace and its root folder if not already
// present, the same upsert-on-first-use shape as the original's
// Namespace.by_name/RootFolder helpers.
func (s *Store) EnsureNamespace(namespace, rootFolder, rootPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT OR IGNORE INTO namespace (name) VALUES (?)", namespace); err != nil {
		return fmt.Errorf("store: insert namespace: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO root_folder (namespace, name, path) VALUES (?, ?, ?)",
		namespace, rootFolder, rootPath,
	); err != nil {
		return fmt.Errorf("store: insert root folder: %w", err)
	}
	return tx.Commit()
}

// RegisterDevice records that deviceID has been seen in namespace.
func (s *Store) RegisterDevice(namespace, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO device (namespace, device_id) VALUES (?, ?)",
		namespace, deviceID,
	)
	if err != nil {
		return fmt.Errorf("store: register device: %w", err)
	}
	return nil
}
