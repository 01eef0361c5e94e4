package chunker

import (
	"crypto/md5"
	"fmt"
	"io"
)

// OpKind distinguishes a delta operation that copies a basis block from one
// that carries new literal bytes.
type OpKind int

const (
	OpCopy OpKind = iota
	OpData
)

// Op is one instruction in a delta: either "copy basis block N" or "write
// these literal bytes", applied in order to reconstruct the new file from
// the basis file plus the bytes the sender actually had to transmit.
type Op struct {
	Kind       OpKind
	BlockIndex int    // valid when Kind == OpCopy
	Data       []byte // valid when Kind == OpData
}

// ComputeDelta scans newData against sig (the basis file's signature) and
// produces the minimal sequence of copy/literal operations needed to turn
// the basis file into newData. This is the classic rsync algorithm: a
// byte-at-a-time rolling window whose weak checksum is looked up in sig's
// index; a weak hit is confirmed with the block's strong (MD5) checksum
// before being trusted, since weak-checksum collisions are common by design.
func ComputeDelta(newData io.Reader, sig *Signature) ([]Op, error) {
	if sig.BlockSize <= 0 {
		return nil, fmt.Errorf("chunker: invalid signature block size")
	}

	data, err := io.ReadAll(newData)
	if err != nil {
		return nil, fmt.Errorf("chunker: read new data: %w", err)
	}

	var ops []Op
	var literal []byte
	flushLiteral := func() {
		if len(literal) > 0 {
			ops = append(ops, Op{Kind: OpData, Data: literal})
			literal = nil
		}
	}

	n := len(data)
	blockSize := sig.BlockSize

	if n == 0 {
		return ops, nil
	}

	windowLen := blockSize
	if windowLen > n {
		windowLen = n
	}

	pos := 0
	rc := newRollingChecksum(data[pos : pos+windowLen])

	for pos < n {
		end := pos + windowLen
		if end > n {
			end = n
		}
		matched := false

		for _, idx := range sig.candidates(rc.value()) {
			if idx >= len(sig.Blocks) {
				continue
			}
			block := sig.Blocks[idx]
			window := data[pos:end]
			if len(window) != blockSize && idx != len(sig.Blocks)-1 {
				// a short window can only ever match the basis file's own
				// trailing short block.
				continue
			}
			if md5.Sum(window) == block.Strong {
				flushLiteral()
				ops = append(ops, Op{Kind: OpCopy, BlockIndex: idx})
				pos = end
				matched = true
				break
			}
		}

		if matched {
			if pos >= n {
				break
			}
			newWindowLen := blockSize
			if pos+newWindowLen > n {
				newWindowLen = n - pos
			}
			rc = newRollingChecksum(data[pos : pos+newWindowLen])
			windowLen = newWindowLen
			continue
		}

		literal = append(literal, data[pos])
		pos++
		if pos >= n {
			break
		}
		if pos+windowLen > n {
			newWindowLen := n - pos
			rc = newRollingChecksum(data[pos : pos+newWindowLen])
			windowLen = newWindowLen
		} else {
			rc.roll(data[pos-1], data[pos+windowLen-1])
		}
	}

	flushLiteral()
	return ops, nil
}

// ApplyDelta reconstructs the new file by applying ops against basis,
// writing the result to w.
func ApplyDelta(basis io.ReaderAt, blockSize int, ops []Op, w io.Writer) error {
	buf := make([]byte, blockSize)
	for _, op := range ops {
		switch op.Kind {
		case OpCopy:
			offset := int64(op.BlockIndex) * int64(blockSize)
			n, err := basis.ReadAt(buf, offset)
			if err != nil && err != io.EOF {
				return fmt.Errorf("chunker: read basis block %d: %w", op.BlockIndex, err)
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("chunker: write copied block: %w", err)
			}
		case OpData:
			if _, err := w.Write(op.Data); err != nil {
				return fmt.Errorf("chunker: write literal data: %w", err)
			}
		}
	}
	return nil
}

// DeltaSize reports the number of literal bytes a delta carries, i.e. the
// bytes that could not be matched against the basis signature.
func DeltaSize(ops []Op) int {
	total := 0
	for _, op := range ops {
		if op.Kind == OpData {
			total += len(op.Data)
		}
	}
	return total
}

