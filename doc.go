// Package seqcomp stores growing, time-ordered sequences of equal-shaped
// float arrays in compressed form.
//
// A sequence holds 1 to 4 dimensional float32 or float64 arrays. Every
// appended array is compressed on its own, so any slice can be read back
// without touching the others.
//
// # Quick Start
//
// In memory:
//
//	seq, _ := seqcomp.New[float64]([]int{64, 64}, seqcomp.WithTolerance(1e-3))
//	defer seq.Close()
//	i, _ := seq.Append(ctx, field)
//	snapshot, _ := seq.Get(ctx, i)
//
// Out of core, one shard file per worker:
//
//	seq, _ := seqcomp.New[float32]([]int{128, 128, 32},
//	    seqcomp.WithFolder("/scratch/run-42"),
//	    seqcomp.WithShards(8),
//	)
//	// worker k:
//	seq.AppendShard(ctx, k, field)
//
// # Backends
//
// Without a location option a sequence lives in memory. WithShardFiles,
// WithShardDirs, WithFolder, WithEnvFolder or WithInMemory(false) select
// the multi-file backend, which writes every slice to its shard file and
// fsyncs it before the slice becomes visible. A failed write leaves the
// sequence exactly as it was.
//
// # Compression
//
// WithTolerance, WithPrecision and WithRate select a lossy mode; at most one
// may be set. Without them compression is lossless. The parameters are fixed
// for the lifetime of the sequence.
//
// # Persistence
//
// Save writes an in-memory sequence as a single record file and a
// multi-file sequence as a manifest plus one record per shard. Load detects
// the kind of file. Export and Import move saved sequences through a
// blobstore.BlobStore such as S3 or MinIO.
//
// # Errors
//
// Every failure matches one of ErrShapeMismatch, ErrIndexOutOfRange,
// ErrConfigConflict, ErrIO, ErrFormat, ErrCodec or ErrClosed with errors.Is.
// IO failures carry the affected shard and slice in an *IOError.
package seqcomp
