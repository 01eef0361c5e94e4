package chunker

import "encoding/base64"

// ComputeMerkleRoot folds a list of base64-encoded chunk hashes into a
// single root digest, giving the sync engine a cheap whole-file integrity
// check independent of re-downloading every chunk hash individually.
func ComputeMerkleRoot(chunkHashes []string, algo string) (string, error) {
	if len(chunkHashes) == 0 {
		return "", nil
	}

	hashes := make([][]byte, len(chunkHashes))
	for i, s := range chunkHashes {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		hashes[i] = decoded
	}

	for len(hashes) > 1 {
		var next [][]byte
		for i := 0; i < len(hashes); i += 2 {
			var combined []byte
			if i+1 < len(hashes) {
				combined = append(append([]byte{}, hashes[i]...), hashes[i+1]...)
			} else {
				combined = append(append([]byte{}, hashes[i]...), hashes[i]...)
			}
			h, err := newHasher(algo)
			if err != nil {
				return "", err
			}
			h.Write(combined)
			next = append(next, h.Sum(nil))
		}
		hashes = next
	}

	return base64.StdEncoding.EncodeToString(hashes[0]), nil
}
