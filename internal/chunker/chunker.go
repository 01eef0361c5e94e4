// Package chunker implements lansync's component A: it carves a file into
// fixed-size chunks for a first transfer, and computes rsync-style
// signatures and deltas so that re-syncing a changed file only moves the
// bytes that actually changed (see signature.go, delta.go).
package chunker

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ComputeManifest chunks filePath into fixed-size pieces and hashes each one.
func ComputeManifest(filePath string, options ChunkOptions) (*Manifest, error) {
	if options.ChunkSize <= 0 {
		options = DefaultChunkOptions()
	}
	options.HashAlgo = normalizeAlgo(options.HashAlgo)

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("chunker: open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("chunker: stat file: %w", err)
	}

	fileSize := info.Size()
	sessionID := uuid.New().String()

	if fileSize == 0 {
		h, err := newHasher(options.HashAlgo)
		if err != nil {
			return nil, err
		}
		emptyHash := base64.StdEncoding.EncodeToString(h.Sum(nil))
		chunks := []ChunkDescriptor{{Index: 0, Hash: emptyHash, Offset: 0, Length: 0}}
		root, err := ComputeMerkleRoot([]string{emptyHash}, options.HashAlgo)
		if err != nil {
			return nil, err
		}
		return &Manifest{
			SessionID:  sessionID,
			FileName:   filepath.Base(filePath),
			FileSize:   0,
			ChunkSize:  options.ChunkSize,
			ChunkCount: 1,
			HashAlgo:   options.HashAlgo,
			Chunks:     chunks,
			MerkleRoot: root,
			CreatedAt:  time.Now(),
		}, nil
	}

	var chunks []ChunkDescriptor
	var chunkHashes []string
	buffer := make([]byte, options.ChunkSize)

	for i := 0; ; i++ {
		offset := int64(i) * int64(options.ChunkSize)
		n, err := io.ReadFull(file, buffer)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("chunker: read chunk %d: %w", i, err)
		}
		if n == 0 {
			break
		}

		h, err := newHasher(options.HashAlgo)
		if err != nil {
			return nil, err
		}
		h.Write(buffer[:n])
		hashB64 := base64.StdEncoding.EncodeToString(h.Sum(nil))

		chunks = append(chunks, ChunkDescriptor{Index: i, Hash: hashB64, Offset: offset, Length: n})
		chunkHashes = append(chunkHashes, hashB64)

		if n < options.ChunkSize {
			break
		}
	}

	root, err := ComputeMerkleRoot(chunkHashes, options.HashAlgo)
	if err != nil {
		return nil, fmt.Errorf("chunker: compute merkle root: %w", err)
	}

	return &Manifest{
		SessionID:  sessionID,
		FileName:   filepath.Base(filePath),
		FileSize:   fileSize,
		ChunkSize:  options.ChunkSize,
		ChunkCount: len(chunks),
		HashAlgo:   options.HashAlgo,
		Chunks:     chunks,
		MerkleRoot: root,
		CreatedAt:  time.Now(),
	}, nil
}

// Chunker streams fixed-size chunks out of an io.Reader, for callers that
// don't have (or don't want) the whole file on disk to compute a manifest
// up front — e.g. hashing while writing a placeholder's reused bytes.
type Chunker struct {
	reader    io.Reader
	chunkSize int
	buffer    []byte
}

// NewChunker creates a streaming chunker reading chunkSize-byte pieces from r.
func NewChunker(r io.Reader, chunkSize int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive")
	}
	return &Chunker{reader: r, chunkSize: chunkSize, buffer: make([]byte, chunkSize)}, nil
}

// Next returns the next chunk, or io.EOF once the reader is exhausted.
func (c *Chunker) Next() ([]byte, error) {
	n, err := io.ReadFull(c.reader, c.buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}
	return c.buffer[:n], nil
}

// ReadChunk reads a single fixed-size chunk by index directly from disk.
// The transport's GET /chunk handler does not use it; it serves bytes via
// store.ReadChunkBytes.
func ReadChunk(filePath string, chunkIndex int, chunkSize int) ([]byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("chunker: open file: %w", err)
	}
	defer file.Close()

	offset := int64(chunkIndex) * int64(chunkSize)
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("chunker: seek to offset %d: %w", offset, err)
	}

	buffer := make([]byte, chunkSize)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("chunker: read chunk: %w", err)
	}
	return buffer[:n], nil
}
