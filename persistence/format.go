package persistence

import (
	"fmt"
	"math"

	"github.com/hupe1980/seqcomp/model"
)

const (
	// Magic identifies record files.
	Magic = "SZFP"
	// Version is the current record format version.
	Version uint32 = 1

	// MaxCount is the largest slice count a record can describe.
	MaxCount = math.MaxInt32

	// fixedHeaderSize covers magic, version, dtype and ndims.
	fixedHeaderSize = 4 + 4 + 1 + 1
	trailerSize     = 4
)

// Record is the decoded header of a record file.
type Record struct {
	Shape  model.Shape
	Params model.Params
	Heads  []int64
	Tails  []int64
}

// Count returns the number of slices in the record.
func (r *Record) Count() int { return len(r.Heads) }

// PayloadLen returns the payload size implied by the index.
func (r *Record) PayloadLen() int64 {
	if len(r.Tails) == 0 {
		return 0
	}
	return r.Tails[len(r.Tails)-1]
}

// headerSize returns the encoded size of everything before the payload.
func (r *Record) headerSize() int {
	return fixedHeaderSize + 4*r.Shape.NDims() + 4 + 4 + 4 + 8 + 8 + 16*len(r.Heads) + 8
}

func (r *Record) validate() error {
	if !r.Shape.DType().Valid() || r.Shape.NDims() == 0 {
		return fmt.Errorf("persistence: record has no valid shape")
	}
	if len(r.Heads) != len(r.Tails) {
		return fmt.Errorf("persistence: %d heads but %d tails", len(r.Heads), len(r.Tails))
	}
	if len(r.Heads) > MaxCount {
		return fmt.Errorf("persistence: %d slices exceed the format limit", len(r.Heads))
	}
	return r.Params.Validate()
}

func formatErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrFormat, fmt.Sprintf(format, args...))
}
