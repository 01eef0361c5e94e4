package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/YAtOff/lansync/internal/model"
)

// CreatePlaceholder materializes a sparse file for a RemoteNode at a
// temporary path, reusing any chunk bytes this device already has on disk
// for another node, and reports which chunks still need to be fetched from
// a peer. Mirrors the original's create_node_placeholder: write what we can
// immediately, let the send/receive engine fetch the rest.
func (s *Store) CreatePlaceholder(namespace, rootPath string, n model.RemoteNode) (tempPath string, needed []model.NodeChunk, err error) {
	if err := os.MkdirAll(filepath.Dir(filepath.Join(rootPath, n.Path)), 0755); err != nil {
		return "", nil, fmt.Errorf("store: create parent dir: %w", err)
	}

	tempPath = filepath.Join(rootPath, ".lansync-tmp-"+n.Key)
	f, err := os.Create(tempPath)
	if err != nil {
		return "", nil, fmt.Errorf("store: create placeholder: %w", err)
	}
	defer f.Close()

	var size int64
	for _, c := range n.Parts {
		if end := c.Offset + int64(c.Size); end > size {
			size = end
		}
	}
	if err := f.Truncate(size); err != nil {
		return "", nil, fmt.Errorf("store: truncate placeholder: %w", err)
	}

	for _, c := range n.Parts {
		path, offset, ok, err := s.FindChunkPath(namespace, c.Hash)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			needed = append(needed, c)
			continue
		}
		data, err := readChunkAt(path, offset, c.Size)
		if err != nil {
			// Source chunk vanished or is unreadable; fall back to fetching
			// it from a peer rather than failing placeholder creation.
			needed = append(needed, c)
			continue
		}
		if err := c.Check(data); err != nil {
			needed = append(needed, c)
			continue
		}
		if _, err := f.WriteAt(data, c.Offset); err != nil {
			return "", nil, fmt.Errorf("store: write reused chunk: %w", err)
		}
	}

	return tempPath, needed, nil
}

// WriteChunk writes chunk data into a placeholder file at its offset after
// checking it matches the expected hash and size.
func (s *Store) WriteChunk(tempPath string, c model.NodeChunk, data []byte) error {
	if err := c.Check(data); err != nil {
		return err
	}
	f, err := os.OpenFile(tempPath, os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("store: open placeholder: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, c.Offset); err != nil {
		return fmt.Errorf("store: write chunk: %w", err)
	}
	return nil
}

// FinalizePlaceholder atomically moves a completed placeholder into place
// and records it as a StoredNode.
func (s *Store) FinalizePlaceholder(tempPath string, n model.StoredNode) error {
	finalPath := filepath.Clean(filepath.Join(filepath.Dir(tempPath), n.Path))
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return fmt.Errorf("store: create destination dir: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("store: move placeholder into place: %w", err)
	}
	n.Ready = true
	return s.SaveStoredNode(n)
}

func readChunkAt(path string, offset int64, size int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}
