// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional read/write, sync and truncate
//   - [FileSystem]: open, remove, rename, stat and directory operations
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility that injects write, sync, truncate and close failures
//
// # Usage
//
// Production code uses fs.Default (which is [LocalFS]). Crash tests wrap it:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("shard-001", fs.Fault{FailOnSync: true})
//	// inject ffs into the sequence under test
//
// # Design Notes
//
// This package intentionally does NOT include context.Context parameters.
// Filesystem operations are typically fast and non-interruptible at the
// syscall level. For slow remote storage use [blobstore.Blob].
package fs
