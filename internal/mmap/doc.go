// Package mmap provides read-only memory-mapped file access.
//
// Loading a persisted sequence parses the record straight out of the
// mapping, so the header, index arrays and payload are never copied through
// an intermediate read buffer.
//
// # Usage
//
//	m, err := mmap.Open("run.szfp")
//	if err != nil { ... }
//	defer m.Close()
//
//	m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) hints
//   - Other platforms: the file is read into memory and Advise is a no-op
//
// # Thread Safety
//
// A Mapping is safe for concurrent reads. Close is idempotent; callers must
// not touch Bytes after Close returns.
package mmap
