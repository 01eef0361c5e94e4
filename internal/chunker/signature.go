package chunker

import (
	"bufio"
	"crypto/md5"
	"fmt"
	"io"
)

// rollMod is the modulus used by the weak rolling checksum. Using 2^16
// (the same choice rsync's rollsum makes, rather than a prime Adler-32
// modulus) lets a and b be carried as plain uint32s and reduced with a
// bitmask: unsigned wraparound on subtraction is automatically correct mod
// 2^16, so the roll step never needs a branch for "went negative".
const rollMod = 1 << 16
const rollMask = rollMod - 1

// BlockSignature is one basis-file block's pair of checksums: a cheap
// rolling "weak" checksum used to find candidate matches while scanning the
// new data, and an MD5 "strong" checksum used to confirm them.
type BlockSignature struct {
	Index  int
	Weak   uint32
	Strong [md5.Size]byte
}

// Signature is the basis file's block-checksum table, computed by the side
// that already holds a (possibly stale) copy of the file and sent to the
// side about to send a new version, so that sender can avoid resending
// blocks the receiver already has.
type Signature struct {
	BlockSize int
	Blocks    []BlockSignature
	// weakIndex maps a weak checksum to candidate block indices, built
	// lazily by index() so ComputeSignature stays a pure streaming pass.
	weakIndex map[uint32][]int
}

// ComputeSignature computes a block signature table for r, using fixed
// blockSize blocks (the last block may be short).
func ComputeSignature(r io.Reader, blockSize int) (*Signature, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("chunker: signature block size must be positive")
	}

	sig := &Signature{BlockSize: blockSize}
	buf := make([]byte, blockSize)
	br := bufio.NewReader(r)

	for i := 0; ; i++ {
		n, err := io.ReadFull(br, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("chunker: read signature block %d: %w", i, err)
		}
		if n == 0 {
			break
		}
		block := buf[:n]
		sig.Blocks = append(sig.Blocks, BlockSignature{
			Index:  i,
			Weak:   weakChecksum(block),
			Strong: md5.Sum(block),
		})
		if n < blockSize {
			break
		}
	}
	return sig, nil
}

func (s *Signature) index() map[uint32][]int {
	if s.weakIndex == nil {
		s.weakIndex = make(map[uint32][]int, len(s.Blocks))
		for _, b := range s.Blocks {
			s.weakIndex[b.Weak] = append(s.weakIndex[b.Weak], b.Index)
		}
	}
	return s.weakIndex
}

// candidates returns basis block indices whose weak checksum matches weak.
// Callers still need to confirm with the strong checksum before trusting a
// match — weak-checksum collisions are expected and cheap to get wrong.
func (s *Signature) candidates(weak uint32) []int {
	return s.index()[weak]
}

// weakChecksum computes the rsync-style rolling checksum of data.
func weakChecksum(data []byte) uint32 {
	var a, b uint32
	for i, c := range data {
		a += uint32(c)
		b += uint32(len(data)-i) * uint32(c)
	}
	a &= rollMask
	b &= rollMask
	return a | (b << 16)
}

// rollingChecksum maintains a and b incrementally as a fixed-size window
// slides forward one byte at a time, avoiding an O(blockSize) recompute per
// byte during delta scanning.
type rollingChecksum struct {
	a, b      uint32
	blockSize uint32
}

func newRollingChecksum(window []byte) *rollingChecksum {
	rc := &rollingChecksum{blockSize: uint32(len(window))}
	var a, b uint32
	n := len(window)
	for i, c := range window {
		a += uint32(c)
		b += uint32(n-i) * uint32(c)
	}
	rc.a = a & rollMask
	rc.b = b & rollMask
	return rc
}

func (rc *rollingChecksum) value() uint32 {
	return rc.a | (rc.b << 16)
}

// roll removes outByte from the back of the window and appends inByte at
// the front, updating a and b in O(1). Subtraction relies on uint32
// wraparound being correct modulo 2^16 after masking.
func (rc *rollingChecksum) roll(outByte, inByte byte) {
	rc.a = (rc.a - uint32(outByte) + uint32(inByte)) & rollMask
	rc.b = (rc.b - rc.blockSize*uint32(outByte) + rc.a) & rollMask
}
