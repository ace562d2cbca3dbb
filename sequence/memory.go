package sequence

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/seqcomp/internal/arena"
	"github.com/hupe1980/seqcomp/internal/mmap"
	"github.com/hupe1980/seqcomp/internal/seqindex"
	"github.com/hupe1980/seqcomp/model"
	"github.com/hupe1980/seqcomp/persistence"
)

// Memory keeps all compressed slices in one growable arena.
//
// Appends must come from a single goroutine at a time; Get, GetMany and
// Save may run concurrently with them. Compression and decompression run
// outside the lock.
type Memory[T model.Float] struct {
	shape  model.Shape
	params model.Params
	opts   Options

	mu     sync.RWMutex
	arena  *arena.Arena
	index  *seqindex.Index
	closed bool
}

var _ Sequence[float64] = (*Memory[float64])(nil)

// NewMemory creates an empty in-memory sequence.
func NewMemory[T model.Float](shape model.Shape, params model.Params, opts Options) (*Memory[T], error) {
	if err := checkType[T](shape); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	var aopts []arena.Option
	if opts.Resource != nil {
		aopts = append(aopts, arena.WithMemoryAcquirer(opts.Resource))
	}
	return &Memory[T]{
		shape:  shape,
		params: params,
		opts:   opts,
		arena:  arena.New(aopts...),
		index:  seqindex.New(),
	}, nil
}

// LoadMemory reads a record file into a new in-memory sequence.
func LoadMemory[T model.Float](path string, opts Options) (*Memory[T], error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, ioErr("open", path, -1, model.NoSlice, err)
	}
	defer m.Close()
	_ = m.Advise(mmap.AccessSequential)

	rec, payload, err := persistence.ParseRecord(m.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	mem, err := NewMemory[T](rec.Shape, rec.Params, opts)
	if err != nil {
		return nil, err
	}
	idx, err := seqindex.FromOffsets(rec.Heads, rec.Tails)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		// The payload is copied out of the mapping before it is unmapped.
		if _, err := mem.arena.Append(payload); err != nil {
			mem.arena.Free()
			return nil, err
		}
	}
	mem.index = idx
	return mem, nil
}

// Append implements Sequence.
func (m *Memory[T]) Append(ctx context.Context, a *model.Array[T]) (int, error) {
	if err := checkArray(m.shape, a); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	block, err := compress(m.opts.Codec, m.shape, m.params, a)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, model.ErrClosed
	}
	if _, err := m.arena.Append(block); err != nil {
		return 0, err
	}
	return m.index.Append(int64(len(block)))
}

// AppendShard implements Sequence. The in-memory backend has the single shard 0.
func (m *Memory[T]) AppendShard(ctx context.Context, shard int, a *model.Array[T]) (int, error) {
	if shard != 0 {
		return 0, &model.IndexError{Index: shard, Count: 1}
	}
	return m.Append(ctx, a)
}

// Get implements Sequence.
func (m *Memory[T]) Get(ctx context.Context, i int) (*model.Array[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, model.ErrClosed
	}
	head, tail, err := m.index.Range(i)
	var block []byte
	if err == nil {
		block, err = m.arena.Bytes(head, tail)
	}
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return decompress[T](m.opts.Codec, m.shape, m.params, block)
}

// GetMany implements Sequence.
func (m *Memory[T]) GetMany(ctx context.Context, indices []int) ([]*model.Array[T], error) {
	return getMany(ctx, indices, m.Get)
}

// Len implements Sequence.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Len()
}

// Size implements Sequence.
func (m *Memory[T]) Size() []int { return sizeOf(m.shape, m.Len()) }

// NDims implements Sequence.
func (m *Memory[T]) NDims() int { return m.shape.NDims() + 1 }

// Shards implements Sequence.
func (m *Memory[T]) Shards() int { return 1 }

// TotalSize implements Sequence.
func (m *Memory[T]) TotalSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Total()
}

// Shape implements Sequence.
func (m *Memory[T]) Shape() model.Shape { return m.shape }

// Params implements Sequence.
func (m *Memory[T]) Params() model.Params { return m.params }

// Save writes the sequence as one record file. The write goes to a
// temporary file that replaces path only after it is complete and synced.
func (m *Memory[T]) Save(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return model.ErrClosed
	}
	heads, tails := m.index.Offsets()
	payload, err := m.arena.Bytes(0, m.index.Tail())
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	rec := &persistence.Record{Shape: m.shape, Params: m.params, Heads: heads, Tails: tails}
	if err := persistence.SaveRecord(m.opts.FS, path, rec, bytes.NewReader(payload)); err != nil {
		return ioErr("save", path, -1, model.NoSlice, err)
	}
	return nil
}

// Close releases the arena and its memory reservation.
func (m *Memory[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.arena.Free()
	return nil
}
