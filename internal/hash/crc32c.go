package hash

import (
	"hash"
	"hash/crc32"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
// S3 uses it for the x-amz-checksum-crc32c header.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a new CRC32-Castagnoli hash.Hash32.
// Uses hardware acceleration when available.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}
