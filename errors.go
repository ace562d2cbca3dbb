package seqcomp

import (
	"github.com/hupe1980/seqcomp/model"
	"github.com/hupe1980/seqcomp/resource"
)

var (
	// ErrShapeMismatch is returned when an array does not match the sequence shape or element type.
	ErrShapeMismatch = model.ErrShapeMismatch

	// ErrIndexOutOfRange is returned for slice or shard indexes outside the valid range.
	ErrIndexOutOfRange = model.ErrIndexOutOfRange

	// ErrConfigConflict is returned for contradictory or malformed options.
	ErrConfigConflict = model.ErrConfigConflict

	// ErrIO matches every *IOError.
	ErrIO = model.ErrIO

	// ErrFormat is returned when a saved file is malformed, truncated or inconsistent.
	ErrFormat = model.ErrFormat

	// ErrCodec is returned when compression or decompression fails.
	ErrCodec = model.ErrCodec

	// ErrClosed is returned by operations on a closed sequence.
	ErrClosed = model.ErrClosed

	// ErrMemoryLimitExceeded is returned when an in-memory append would exceed
	// the budget of the configured resource controller.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded
)

// IOError annotates a filesystem or object store failure with the shard and
// slice it affected.
//
// The original underlying error can be accessed via errors.Unwrap.
type IOError = model.IOError

// IndexError reports an index outside [0, Count).
type IndexError = model.IndexError

// NoSlice is the IOError.Slice value of failures not tied to one slice.
const NoSlice = model.NoSlice

func ioError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Shard: -1, Slice: NoSlice, Err: err}
}
