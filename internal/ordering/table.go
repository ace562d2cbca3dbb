package ordering

import (
	"fmt"
	"math"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/seqcomp/model"
)

// Slot locates one slice.
type Slot struct {
	Shard uint32
	Local uint64
}

// Table is the global ordering table.
type Table struct {
	mu      sync.RWMutex
	slots   []Slot
	members []*roaring.Bitmap
}

// New returns an empty table for the given number of shards.
func New(shards int) *Table {
	t := &Table{members: make([]*roaring.Bitmap, shards)}
	for k := range t.members {
		t.members[k] = roaring.New()
	}
	return t
}

// FromSlots rebuilds a table from persisted slots.
// counts[k] is the number of slices held by shard k; every local slot of
// every shard must appear exactly once.
func FromSlots(slots []Slot, counts []int) (*Table, error) {
	if len(slots) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d slots exceed the logical index range", model.ErrFormat, len(slots))
	}
	t := New(len(counts))
	locals := make([]*roaring.Bitmap, len(counts))
	for k := range locals {
		locals[k] = roaring.New()
	}

	for i, s := range slots {
		k := int(s.Shard)
		if k >= len(counts) {
			return nil, fmt.Errorf("%w: slot %d refers to shard %d of %d", model.ErrFormat, i, s.Shard, len(counts))
		}
		if s.Local >= uint64(counts[k]) {
			return nil, fmt.Errorf("%w: slot %d refers to local %d but shard %d holds %d", model.ErrFormat, i, s.Local, k, counts[k])
		}
		if !locals[k].CheckedAdd(uint32(s.Local)) {
			return nil, fmt.Errorf("%w: shard %d local %d listed twice", model.ErrFormat, k, s.Local)
		}
		t.members[k].Add(uint32(i))
	}
	for k, c := range counts {
		if got := locals[k].GetCardinality(); got != uint64(c) {
			return nil, fmt.Errorf("%w: shard %d holds %d slices but %d are ordered", model.ErrFormat, k, c, got)
		}
	}
	t.slots = append([]Slot(nil), slots...)
	return t, nil
}

// Append records that the next logical slice lives at (shard, local) and
// returns its logical index.
func (t *Table) Append(shard int, local int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if shard < 0 || shard >= len(t.members) {
		return 0, &model.IndexError{Index: shard, Count: len(t.members)}
	}
	i := len(t.slots)
	if i >= math.MaxInt32 {
		return 0, fmt.Errorf("ordering: table is full at %d slices", i)
	}
	t.slots = append(t.slots, Slot{Shard: uint32(shard), Local: uint64(local)})
	t.members[shard].Add(uint32(i))
	return i, nil
}

// Lookup returns the slot of logical slice i.
func (t *Table) Lookup(i int) (Slot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if i < 0 || i >= len(t.slots) {
		return Slot{}, &model.IndexError{Index: i, Count: len(t.slots)}
	}
	return t.slots[i], nil
}

// Len returns the number of ordered slices.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots)
}

// Shards returns the shard count.
func (t *Table) Shards() int { return len(t.members) }

// Slots returns a copy of all slots in logical order.
func (t *Table) Slots() []Slot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Slot(nil), t.slots...)
}

// ShardIndices returns the logical indices held by shard.
// The result is a copy owned by the caller.
func (t *Table) ShardIndices(shard int) (*roaring.Bitmap, error) {
	if shard < 0 || shard >= len(t.members) {
		return nil, &model.IndexError{Index: shard, Count: len(t.members)}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.members[shard].Clone(), nil
}
