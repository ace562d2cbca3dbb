package arena

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(amount int64) error
	ReleaseMemory(amount int64)
}

// ErrOutOfBounds is returned for ranges outside the written region.
var ErrOutOfBounds = errors.New("arena: range out of bounds")

const (
	// DefaultInitialSize is the capacity allocated by the first append (64 KiB).
	DefaultInitialSize = 64 * 1024
	// maxGrowStep caps doubling so very large arenas grow linearly.
	maxGrowStep = 1 << 30
)

// Stats tracks arena memory usage metrics.
type Stats struct {
	BytesReserved uint64 // Current: capacity held
	BytesUsed     uint64 // Current: bytes written
	Grows         uint64 // Historical: number of reallocations
	TotalAppends  uint64 // Historical: number of appends
}

type atomicStats struct {
	Grows        atomic.Uint64
	TotalAppends atomic.Uint64
}

// Arena is an append-only byte buffer addressed by offsets.
type Arena struct {
	buf         []byte
	reserved    int64
	initialSize int
	acquirer    MemoryAcquirer
	stats       atomicStats
}

// Option is a configuration option for Arena.
type Option func(*Arena)

// WithMemoryAcquirer sets the memory acquirer for the arena.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(a *Arena) {
		a.acquirer = acquirer
	}
}

// WithInitialSize sets the capacity allocated by the first append.
func WithInitialSize(n int) Option {
	return func(a *Arena) {
		if n > 0 {
			a.initialSize = n
		}
	}
}

// New creates an empty arena. No memory is allocated until the first append.
func New(opts ...Option) *Arena {
	a := &Arena{initialSize: DefaultInitialSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append copies p to the end of the arena and returns its offset.
func (a *Arena) Append(p []byte) (int64, error) {
	off := int64(len(a.buf))
	if err := a.ensure(len(a.buf) + len(p)); err != nil {
		return 0, err
	}
	a.buf = append(a.buf, p...)
	a.stats.TotalAppends.Add(1)
	return off, nil
}

func (a *Arena) ensure(need int) error {
	if need <= cap(a.buf) {
		return nil
	}
	newCap := cap(a.buf)
	if newCap == 0 {
		newCap = a.initialSize
	}
	for newCap < need {
		newCap += min(newCap, maxGrowStep)
	}

	delta := int64(newCap) - a.reserved
	if a.acquirer != nil {
		if err := a.acquirer.AcquireMemory(delta); err != nil {
			return fmt.Errorf("arena: grow to %d bytes: %w", newCap, err)
		}
	}

	buf := make([]byte, len(a.buf), newCap)
	copy(buf, a.buf)
	a.buf = buf
	a.reserved = int64(newCap)
	a.stats.Grows.Add(1)
	return nil
}

// Bytes returns the bytes in [head, tail).
// The result aliases the arena and must not be modified.
func (a *Arena) Bytes(head, tail int64) ([]byte, error) {
	if head < 0 || tail < head || tail > int64(len(a.buf)) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfBounds, head, tail, len(a.buf))
	}
	return a.buf[head:tail:tail], nil
}

// Len returns the number of bytes written.
func (a *Arena) Len() int64 { return int64(len(a.buf)) }

// Cap returns the current capacity.
func (a *Arena) Cap() int64 { return int64(cap(a.buf)) }

// Stats returns current arena statistics.
func (a *Arena) Stats() Stats {
	return Stats{
		BytesReserved: uint64(cap(a.buf)),
		BytesUsed:     uint64(len(a.buf)),
		Grows:         a.stats.Grows.Load(),
		TotalAppends:  a.stats.TotalAppends.Load(),
	}
}

// Free drops the buffer and returns the reservation to the acquirer.
// The arena is empty and reusable afterwards.
func (a *Arena) Free() {
	if a.acquirer != nil {
		a.acquirer.ReleaseMemory(a.reserved)
	}
	a.buf = nil
	a.reserved = 0
}

// String implements fmt.Stringer.
func (a *Arena) String() string {
	return fmt.Sprintf("Arena{used=%d, cap=%d, grows=%d}", len(a.buf), cap(a.buf), a.stats.Grows.Load())
}
