package chunker

import (
	"encoding/binary"
	"fmt"
)

// Serialize packs a Signature into the bytes persisted as a StoredNode's
// signature field and shipped on a NodeEvent: block size, block count, then
// each block's weak checksum and strong (MD5) digest in order.
func (s *Signature) Serialize() []byte {
	buf := make([]byte, 0, 8+len(s.Blocks)*(4+16))
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(s.BlockSize))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(s.Blocks)))
	buf = append(buf, header...)

	for _, b := range s.Blocks {
		weak := make([]byte, 4)
		binary.BigEndian.PutUint32(weak, b.Weak)
		buf = append(buf, weak...)
		buf = append(buf, b.Strong[:]...)
	}
	return buf
}

// DeserializeSignature parses Serialize's output back into a Signature.
func DeserializeSignature(data []byte) (*Signature, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("chunker: signature record too short")
	}
	blockSize := int(binary.BigEndian.Uint32(data[0:4]))
	count := int(binary.BigEndian.Uint32(data[4:8]))

	sig := &Signature{BlockSize: blockSize}
	pos := 8
	for i := 0; i < count; i++ {
		if pos+4+16 > len(data) {
			return nil, fmt.Errorf("chunker: truncated signature at block %d", i)
		}
		weak := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		var strong [16]byte
		copy(strong[:], data[pos:pos+16])
		pos += 16
		sig.Blocks = append(sig.Blocks, BlockSignature{Index: i, Weak: weak, Strong: strong})
	}
	return sig, nil
}
