// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("sequences/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	err = seqcomp.Export(ctx, seq, store, "run-42/seq.szfp")
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large record files
//   - CRC32C integrity checks on upload
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
