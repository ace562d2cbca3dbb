package seqindex

import (
	"fmt"
	"slices"

	"github.com/hupe1980/seqcomp/model"
)

// Index is an append-only list of contiguous byte ranges.
type Index struct {
	heads []int64
	tails []int64
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// FromOffsets rebuilds an index from persisted offsets.
// The input is validated in full and copied.
func FromOffsets(heads, tails []int64) (*Index, error) {
	if len(heads) != len(tails) {
		return nil, fmt.Errorf("%w: %d heads but %d tails", model.ErrFormat, len(heads), len(tails))
	}
	var prev int64
	for i := range heads {
		if heads[i] != prev {
			return nil, fmt.Errorf("%w: entry %d starts at %d, want %d", model.ErrFormat, i, heads[i], prev)
		}
		if tails[i] <= heads[i] {
			return nil, fmt.Errorf("%w: entry %d has non-positive size [%d, %d)", model.ErrFormat, i, heads[i], tails[i])
		}
		prev = tails[i]
	}
	return &Index{heads: slices.Clone(heads), tails: slices.Clone(tails)}, nil
}

// Append records a new entry of size bytes starting at the current tail
// and returns its logical number.
func (x *Index) Append(size int64) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("seqindex: entry size must be positive, got %d", size)
	}
	head := x.Tail()
	x.heads = append(x.heads, head)
	x.tails = append(x.tails, head+size)
	return len(x.heads) - 1, nil
}

// Range returns the byte range of entry i.
func (x *Index) Range(i int) (head, tail int64, err error) {
	if i < 0 || i >= len(x.heads) {
		return 0, 0, &model.IndexError{Index: i, Count: len(x.heads)}
	}
	return x.heads[i], x.tails[i], nil
}

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.heads) }

// Tail returns the end of the last entry, or 0 for an empty index.
func (x *Index) Tail() int64 {
	if len(x.tails) == 0 {
		return 0
	}
	return x.tails[len(x.tails)-1]
}

// Total returns the sum of all entry sizes.
// Entries are contiguous from 0, so it equals Tail.
func (x *Index) Total() int64 { return x.Tail() }

// Offsets returns copies of the head and tail arrays.
func (x *Index) Offsets() (heads, tails []int64) {
	return slices.Clone(x.heads), slices.Clone(x.tails)
}
