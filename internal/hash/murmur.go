package hash

import "github.com/spaolacci/murmur3"

// Sum128 returns the two 64-bit words of the MurmurHash3 x64 128 hash of data
// computed with seed 0.
func Sum128(data []byte) (h1, h2 uint64) {
	return murmur3.Sum128(data)
}
