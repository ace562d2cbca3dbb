// Package model defines the core types shared by every seqcomp package.
//
// # Descriptors
//
//   - DType: element type tag (Float32, Float64), stored as one byte on disk
//   - Shape: 1 to 4 positive spatial dimensions plus a DType
//   - Params: compression knobs (tolerance, precision, rate), fixed at construction
//
// # Data
//
//   - Array: one uncompressed snapshot, flat data plus dims
//
// # Errors
//
// The error kinds (ErrShapeMismatch, ErrIndexOutOfRange, ErrConfigConflict,
// ErrIO, ErrFormat, ErrCodec) live here so that every layer can wrap them
// and callers can test them with errors.Is.
package model
