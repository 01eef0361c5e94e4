package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/YAtOff/lansync/internal/market"
)

// ExchangeWithDB implements spec.md's exchange_with_db: inside the DB lock,
// read the stored Market for (namespace, key); if there is none, persist m
// as-is; otherwise merge the stored value into m in place and write the
// merged record back. Returns m, now reflecting whatever the store already
// knew. This is what gives Market updates from concurrent goroutines (the
// engine's own writes and a peer's POST /market handler) a linearizable
// per-key history despite Market.Merge itself only locking in memory.
func (s *Store) ExchangeWithDB(namespace, nodeKey string, m *market.Market) (*market.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var record []byte
	err = tx.QueryRow(
		"SELECT record FROM market WHERE namespace = ? AND node_key = ?",
		namespace, nodeKey,
	).Scan(&record)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// nothing stored yet for this key
	case err != nil:
		return nil, fmt.Errorf("store: query market: %w", err)
	default:
		stored, err := market.FromRecord(record)
		if err != nil {
			return nil, fmt.Errorf("store: decode stored market: %w", err)
		}
		m.Merge(stored)
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO market (namespace, node_key, record) VALUES (?, ?, ?)",
		namespace, nodeKey, m.AsRecord(),
	); err != nil {
		return nil, fmt.Errorf("store: upsert market: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit market exchange: %w", err)
	}
	return m, nil
}

// LoadMarket returns the persisted Market for (namespace, nodeKey), or nil if
// none has been stored yet.
func (s *Store) LoadMarket(namespace, nodeKey string) (*market.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record []byte
	err := s.db.QueryRow(
		"SELECT record FROM market WHERE namespace = ? AND node_key = ?",
		namespace, nodeKey,
	).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query market: %w", err)
	}
	return market.FromRecord(record)
}
