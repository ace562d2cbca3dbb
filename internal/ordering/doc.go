// Package ordering maps the global logical index of a multi-file sequence to
// the shard and shard-local slot that hold the slice.
//
// Slices appended by different workers interleave in commit order. The
// table is the only structure shared between shard writers, so every method
// is safe for concurrent use and Append is one short critical section.
//
// Shard membership is additionally tracked in one roaring bitmap per shard,
// which backs ShardIndices and the coverage check in FromSlots.
package ordering
