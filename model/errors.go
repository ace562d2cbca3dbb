package model

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when an array does not match the sequence shape or dtype.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrIndexOutOfRange is returned for slice or shard indexes outside the valid range.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrConfigConflict is returned for contradictory or malformed configuration.
	ErrConfigConflict = errors.New("configuration conflict")

	// ErrIO classifies filesystem failures. See IOError.
	ErrIO = errors.New("i/o error")

	// ErrFormat is returned when persisted data is malformed, truncated or inconsistent.
	ErrFormat = errors.New("invalid format")

	// ErrCodec is returned when compression or decompression fails.
	ErrCodec = errors.New("codec error")

	// ErrClosed is returned by operations on a closed sequence.
	ErrClosed = errors.New("sequence is closed")
)

// NoSlice marks an IOError that is not tied to a particular slice.
const NoSlice = -1

// IOError annotates a filesystem failure with the shard and slice it affected.
//
// errors.Is(err, ErrIO) reports true for every IOError; the original
// error can be accessed via errors.Unwrap.
type IOError struct {
	Op    string
	Path  string
	Shard int
	Slice int
	Err   error
}

func (e *IOError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Path)
	if e.Shard >= 0 {
		msg += fmt.Sprintf(" (shard %d", e.Shard)
		if e.Slice != NoSlice {
			msg += fmt.Sprintf(", slice %d", e.Slice)
		}
		msg += ")"
	}
	return fmt.Sprintf("%s: %s: %v", ErrIO, msg, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes every IOError match ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// IndexError reports an index outside [0, Count).
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: %d not in [0, %d)", ErrIndexOutOfRange, e.Index, e.Count)
}

// Is makes every IndexError match ErrIndexOutOfRange.
func (e *IndexError) Is(target error) bool { return target == ErrIndexOutOfRange }
