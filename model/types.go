package model

import (
	"fmt"
	"math"
	"slices"
	"unsafe"
)

// MaxSpatialDims is the largest supported number of spatial dimensions.
const MaxSpatialDims = 4

// DType tags the floating-point kind of the stored elements.
// The numeric values are part of the on-disk format.
type DType uint8

const (
	// DTypeInvalid is the zero value and never valid on disk.
	DTypeInvalid DType = 0
	// Float32 is IEEE-754 binary32.
	Float32 DType = 1
	// Float64 is IEEE-754 binary64.
	Float64 DType = 2
)

// String returns the Go name of the element type.
func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Size returns the element size in bytes, or 0 for unknown tags.
func (d DType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether d is a supported element type.
func (d DType) Valid() bool { return d.Size() != 0 }

// Float is the set of element types a sequence can hold.
type Float interface {
	~float32 | ~float64
}

// DTypeOf returns the tag for the element type T.
func DTypeOf[T Float]() DType {
	var zero T
	if unsafe.Sizeof(zero) == 4 {
		return Float32
	}
	return Float64
}

// Shape is the immutable descriptor every appended array must match.
type Shape struct {
	dims  []int
	dtype DType
}

// NewShape validates and builds a Shape.
func NewShape(dtype DType, dims ...int) (Shape, error) {
	if !dtype.Valid() {
		return Shape{}, fmt.Errorf("%w: unsupported element type %s", ErrConfigConflict, dtype)
	}
	if len(dims) == 0 || len(dims) > MaxSpatialDims {
		return Shape{}, fmt.Errorf("%w: need 1 to %d spatial dimensions, got %d", ErrConfigConflict, MaxSpatialDims, len(dims))
	}
	size := dtype.Size()
	for i, d := range dims {
		if d <= 0 || d > math.MaxInt32 {
			return Shape{}, fmt.Errorf("%w: dimension %d must be positive, got %d", ErrConfigConflict, i, d)
		}
		if size > math.MaxInt/d {
			return Shape{}, fmt.Errorf("%w: %s array of dimensions %v does not fit in memory", ErrConfigConflict, dtype, dims)
		}
		size *= d
	}
	return Shape{dims: slices.Clone(dims), dtype: dtype}, nil
}

// Dims returns a copy of the spatial dimensions.
func (s Shape) Dims() []int { return slices.Clone(s.dims) }

// DType returns the element type.
func (s Shape) DType() DType { return s.dtype }

// NDims returns the number of spatial dimensions.
func (s Shape) NDims() int { return len(s.dims) }

// Len returns the number of elements in one array.
func (s Shape) Len() int {
	n := 1
	for _, d := range s.dims {
		n *= d
	}
	return n
}

// ByteLen returns the uncompressed size of one array in bytes.
func (s Shape) ByteLen() int { return s.Len() * s.dtype.Size() }

// Matches reports whether dims equal the shape's spatial dimensions.
func (s Shape) Matches(dims []int) bool { return slices.Equal(s.dims, dims) }

// Equal reports whether two shapes have identical dims and dtype.
func (s Shape) Equal(o Shape) bool { return s.dtype == o.dtype && slices.Equal(s.dims, o.dims) }

// String implements fmt.Stringer.
func (s Shape) String() string { return fmt.Sprintf("%s%v", s.dtype, s.dims) }

// Params holds the compression knobs fixed at construction.
// At most one field may be non-zero; all zero selects lossless mode.
type Params struct {
	// Tolerance bounds the absolute error of every element.
	Tolerance float32
	// Precision is the number of leading mantissa bits kept per element.
	Precision float32
	// Rate fixes the number of bits stored per element.
	Rate int64
}

// Lossless reports whether no lossy knob is set.
func (p Params) Lossless() bool {
	return p.Tolerance == 0 && p.Precision == 0 && p.Rate == 0
}

// Validate rejects negative knobs and more than one active knob.
func (p Params) Validate() error {
	if p.Tolerance < 0 || p.Precision < 0 || p.Rate < 0 {
		return fmt.Errorf("%w: compression parameters must be non-negative: %+v", ErrConfigConflict, p)
	}
	if math.IsNaN(float64(p.Tolerance)) || math.IsNaN(float64(p.Precision)) {
		return fmt.Errorf("%w: compression parameters must not be NaN", ErrConfigConflict)
	}
	set := 0
	if p.Tolerance > 0 {
		set++
	}
	if p.Precision > 0 {
		set++
	}
	if p.Rate > 0 {
		set++
	}
	if set > 1 {
		return fmt.Errorf("%w: at most one of tolerance, precision and rate may be set: %+v", ErrConfigConflict, p)
	}
	return nil
}

// Array is one uncompressed snapshot: flat data plus spatial dimensions.
type Array[T Float] struct {
	Dims []int
	Data []T
}

// NewArray allocates a zeroed array with the given dims.
func NewArray[T Float](dims ...int) *Array[T] {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return &Array[T]{Dims: slices.Clone(dims), Data: make([]T, n)}
}

// Full allocates an array with every element set to v.
func Full[T Float](v T, dims ...int) *Array[T] {
	a := NewArray[T](dims...)
	for i := range a.Data {
		a.Data[i] = v
	}
	return a
}

// Len returns the number of elements.
func (a *Array[T]) Len() int { return len(a.Data) }

// Equal reports whether both arrays have identical dims and element values.
func (a *Array[T]) Equal(o *Array[T]) bool {
	if a == nil || o == nil {
		return a == o
	}
	return slices.Equal(a.Dims, o.Dims) && slices.Equal(a.Data, o.Data)
}
