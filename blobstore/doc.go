// Package blobstore provides object storage targets for exported sequences.
//
// A saved sequence is a small set of files: one record file for the
// in-memory backend, or a manifest plus one record per shard for the
// multi-file backend. Export copies them to a BlobStore and Import copies
// them back before loading.
//
// # Built-in Implementations
//
//   - LocalStore: local directory, atomic temp file and rename, mmap reads
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// Implementations must be safe for concurrent use.
package blobstore
