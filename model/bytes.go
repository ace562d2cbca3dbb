package model

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// All persisted element bytes are little-endian.
var littleEndianHost = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// AsBytes returns the little-endian byte representation of data.
// On little-endian hosts the result aliases data.
func AsBytes[T Float](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(data[0]))
	if littleEndianHost {
		return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*size)
	}
	out := make([]byte, len(data)*size)
	for i, v := range data {
		if size == 4 {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(float64(v)))
		}
	}
	return out
}

// FromBytes decodes little-endian element bytes into a freshly allocated slice.
// len(b) must be a multiple of the element size.
func FromBytes[T Float](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	n := len(b) / size
	out := make([]T, n)
	if n == 0 {
		return out
	}
	if littleEndianHost {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), n*size), b)
		return out
	}
	for i := range out {
		if size == 4 {
			out[i] = T(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
		} else {
			out[i] = T(math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:])))
		}
	}
	return out
}
