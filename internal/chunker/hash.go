package chunker

import (
	"crypto/md5"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// newHasher returns the digest implementation named by algo. Empty algo
// means MD5, matching DefaultChunkOptions.
func newHasher(algo string) (hash.Hash, error) {
	switch algo {
	case "", "MD5":
		return md5.New(), nil
	case "BLAKE3":
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("chunker: unknown hash algorithm %q", algo)
	}
}

func normalizeAlgo(algo string) string {
	if algo == "" {
		return "MD5"
	}
	return algo
}
