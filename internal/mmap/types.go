package mmap

import "errors"

// AccessPattern is a madvise hint for a mapping.
type AccessPattern int

const (
	// AccessDefault gives no hint.
	AccessDefault AccessPattern = iota
	// AccessSequential suits one front-to-back pass, such as copying a record payload.
	AccessSequential
	// AccessRandom suits scattered block reads.
	AccessRandom
)

var (
	// ErrClosed is returned when attempting to access a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for files that do not fit in the address space.
	ErrInvalidSize = errors.New("mmap: invalid file size")
	// ErrInvalidOffset is returned for negative read offsets.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)
