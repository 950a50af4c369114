// Package hash provides the hashing primitives used by the percolator.
//
// # Field-name hashing
//
// The range codec needs a 128-bit, non-cryptographic hash of a field name to give
// every logical field its own namespace inside the single binary range field:
//
//	h1, h2 := hash.Sum128([]byte("price"))
//
// Sum128 is MurmurHash3 x64 128 with seed 0, so encodings are stable across
// processes and releases.
//
// # CRC32-Castagnoli (CRC32C)
//
// Snapshots carry a CRC32C trailer to detect torn or corrupted blobs:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
