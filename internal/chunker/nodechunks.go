package chunker

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"

	"github.com/YAtOff/lansync/internal/model"
)

// FixedNodeChunks implements spec.md 4.A's fixed-size initial chunking
// directly in terms of model.NodeChunk: read filePath sequentially in
// chunkSize blocks, emitting one NodeChunk per block in offset order. The
// hash is always MD5, hex-encoded, matching model.NodeChunk.Check and the
// data model's "Hash is MD5 of the chunk's bytes" invariant — the BLAKE3
// option ComputeManifest exposes is a newer, opt-in manifest format used
// for whole-session integrity, not the synced NodeChunk wire hash.
func FixedNodeChunks(filePath string, chunkSize int) ([]model.NodeChunk, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkOptions().ChunkSize
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("chunker: open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("chunker: stat file: %w", err)
	}

	if info.Size() == 0 {
		sum := md5.Sum(nil)
		return []model.NodeChunk{{Offset: 0, Size: 0, Hash: fmt.Sprintf("%x", sum)}}, nil
	}

	var chunks []model.NodeChunk
	buf := make([]byte, chunkSize)
	for offset := int64(0); ; offset += int64(chunkSize) {
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("chunker: read chunk at offset %d: %w", offset, err)
		}
		if n == 0 {
			break
		}
		sum := md5.Sum(buf[:n])
		chunks = append(chunks, model.NodeChunk{
			Offset: offset,
			Size:   n,
			Hash:   fmt.Sprintf("%x", sum),
		})
		if n < chunkSize {
			break
		}
	}
	return chunks, nil
}

// DeltaNodeChunks turns a delta's ops (see ComputeDelta) into the list of
// NodeChunks spec.md 4.A requires: "each command yields one NodeChunk whose
// hash is MD5 of the bytes it represents in the new file". OpCopy blocks are
// read back out of basis to compute that hash; OpData already carries its
// bytes. Offsets accumulate in the order ops appear, which is the order the
// new file's bytes are produced by ApplyDelta.
func DeltaNodeChunks(basis io.ReaderAt, blockSize int, ops []Op) ([]model.NodeChunk, error) {
	var chunks []model.NodeChunk
	var offset int64

	readBasisBlock := func(blockIndex int) ([]byte, error) {
		buf := make([]byte, blockSize)
		n, err := basis.ReadAt(buf, int64(blockIndex)*int64(blockSize))
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("chunker: read basis block %d: %w", blockIndex, err)
		}
		return buf[:n], nil
	}

	for _, op := range ops {
		var data []byte
		switch op.Kind {
		case OpCopy:
			b, err := readBasisBlock(op.BlockIndex)
			if err != nil {
				return nil, err
			}
			data = b
		case OpData:
			data = op.Data
		}
		sum := md5.Sum(data)
		chunks = append(chunks, model.NodeChunk{
			Offset: offset,
			Size:   len(data),
			Hash:   fmt.Sprintf("%x", sum),
		})
		offset += int64(len(data))
	}
	return chunks, nil
}
