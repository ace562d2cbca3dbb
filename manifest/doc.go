// Package manifest describes a saved multi-file sequence.
//
// A manifest ties together the shard records written by a multi-file
// sequence: it repeats the shared shape and compression parameters, lists
// the shard record files in shard order, and stores the global ordering
// table so that logical index i resolves to the same slice after reload.
//
// # Binary Format
//
//	Magic (4 bytes, "SZFM")
//	Version (4 bytes)
//	Checksum (4 bytes) - CRC32 of payload
//	PayloadLength (4 bytes)
//	Payload:
//	  DType (1 byte)
//	  NDims (1 byte)
//	  Dims (4 bytes each)
//	  Tolerance (4 bytes), Precision (4 bytes), Rate (8 bytes)
//	  Codec (string)
//	  NumShards (4 bytes)
//	  Shards...
//	    Path (string) - relative to the manifest's directory
//	    Count (8 bytes)
//	    Bytes (8 bytes)
//	  NumSlots (8 bytes)
//	  Slots...
//	    Shard (4 bytes)
//	    Local (8 bytes)
//
// Strings are a 2-byte length followed by the bytes.
//
// The manifest is always written after every shard record it references,
// through an atomic rename, so a crash during save never leaves a manifest
// pointing at missing records.
package manifest
