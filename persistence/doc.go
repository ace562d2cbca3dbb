// Package persistence implements the single-file record format of a sequence.
//
// A record holds the shape, compression parameters, slice index and the
// concatenated compressed payload of one in-memory sequence or one shard
// of a multi-file sequence. All integers are little-endian:
//
//	magic "SZFP" (4) | version u32
//	dtype u8 | ndims u8 | dims[ndims] i32 | timeCount i32
//	tolerance f32 | precision f32 | rate i64
//	indexCount i64 | heads[indexCount] i64 | tails[indexCount] i64
//	payloadLength i64 | payload[payloadLength]
//	crc32 u32 (IEEE, over every preceding byte)
//
// Readers are all-or-nothing: any malformed, inconsistent or truncated
// record fails with model.ErrFormat and nothing is returned.
//
// Files are written with SaveToFile: a temporary file in the target
// directory is filled, synced and renamed over the target, so a previous
// record at that path is never partially overwritten.
package persistence
