// Package sequence implements the two storage backends of a compressed
// array sequence.
//
//   - Memory keeps every compressed slice in one growing arena. Single writer,
//     concurrent readers.
//   - MultiFile spreads slices over K shard files. Worker k appends only to
//     shard k; a shared ordering table records the global append order.
//
// Both backends implement Sequence and share the same commit rule: the
// compressed bytes are stored first and the index entry that makes a slice
// visible is committed only afterwards. A failed append therefore never
// leaves an index entry that refers to missing data.
//
// Callers normally reach these types through the root package, which picks
// a backend from configuration and adds logging and metrics.
package sequence
