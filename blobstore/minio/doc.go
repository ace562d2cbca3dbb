// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible storage systems such as Ceph,
// SeaweedFS and Garage, without pulling in the AWS SDK.
//
// # Basic Usage
//
//	store, err := minio.New("localhost:9000", "my-bucket",
//	    minio.WithPrefix("sequences/"),
//	    minio.WithStaticCredentials("minioadmin", "minioadmin"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = seqcomp.Export(ctx, seq, store, "run-42/seq.szfp")
//
// NewStore wraps an already configured *minio.Client instead.
package minio
