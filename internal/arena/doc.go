// Package arena provides the growable byte region backing in-memory sequences.
//
// Compressed slices are appended back to back and addressed by int64
// offsets, never by pointers, so growing the buffer cannot invalidate a
// committed range.
//
// # Growth
//
// Capacity doubles when an append does not fit, which keeps appends
// amortized O(1). Every growth step is reserved against an optional
// MemoryAcquirer first; a rejected reservation fails the append and leaves
// the arena unchanged.
//
// # Concurrency
//
// Arena is not safe for concurrent use. Readers may keep slices returned by
// Bytes after releasing the caller's lock: committed bytes are never
// rewritten, and a growth step copies into a fresh buffer instead of
// reusing the old one.
package arena
