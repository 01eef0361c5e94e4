package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// FindChunk resolves chunkHash within namespace to a byte range on disk,
// joining node_chunk (for the path/offset) against chunk (for the size) —
// the lookup the transport server's GET /chunk handler uses to serve
// exactly the bytes a requesting peer needs.
func (s *Store) FindChunk(namespace, chunkHash string) (path string, offset int64, size int, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRow(
		`SELECT nc.path, nc.offset, c.size
		 FROM node_chunk nc
		 JOIN chunk c ON c.namespace = nc.namespace AND c.hash = nc.chunk_hash
		 WHERE nc.namespace = ? AND nc.chunk_hash = ? LIMIT 1`,
		namespace, chunkHash,
	).Scan(&path, &offset, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, 0, false, nil
	}
	if err != nil {
		return "", 0, 0, false, fmt.Errorf("store: find chunk: %w", err)
	}
	return path, offset, size, true, nil
}

// ReadChunkBytes reads exactly the bytes chunkHash describes within
// namespace, or ErrChunkNotFound if no node_chunk row references it.
func (s *Store) ReadChunkBytes(namespace, chunkHash string) ([]byte, error) {
	path, offset, size, ok, err := s.FindChunk(namespace, chunkHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrChunkNotFound
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open chunk source: %w", err)
	}
	defer f.Close()

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("store: read chunk bytes: %w", err)
	}
	return buf, nil
}
