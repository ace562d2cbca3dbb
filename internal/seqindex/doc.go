// Package seqindex maps logical slice numbers to byte ranges.
//
// An Index is an ordered list of (head, tail) pairs over one contiguous byte
// region. Entry i occupies [head_i, tail_i), the first head is 0 and every
// head equals the previous tail. Entries are only ever appended.
//
// Index is not safe for concurrent mutation. Containers guard it with their
// own lock and only call Append after the bytes it describes are durable.
package seqindex
