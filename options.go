package seqcomp

import (
	"log/slog"

	"github.com/hupe1980/seqcomp/codec"
	"github.com/hupe1980/seqcomp/internal/fs"
	"github.com/hupe1980/seqcomp/internal/pathres"
	"github.com/hupe1980/seqcomp/model"
	"github.com/hupe1980/seqcomp/resource"
	"github.com/hupe1980/seqcomp/sequence"
)

type options struct {
	location      pathres.Config
	params        model.Params
	codec         codec.Codec
	logger        *Logger
	metrics       MetricsCollector
	rc            *resource.Controller
	lookupEnv     func(string) (string, bool)
	parallelism   func() int
	removeOnClose *bool
	fsys          fs.FileSystem
}

// Option configures a sequence.
type Option func(*options)

// WithInMemory selects the storage backend explicitly.
//
// WithInMemory(true) keeps every slice in memory and conflicts with any
// location option. WithInMemory(false) selects file storage; without a
// location option the shard files are created under os.TempDir()/seqcomp.
func WithInMemory(inMemory bool) Option {
	return func(o *options) {
		o.location.InMemory = &inMemory
	}
}

// WithShardFiles stores shard k in paths[k]. The number of paths fixes the
// shard count. Existing files are truncated.
//
// Example:
//
//	seq, err := seqcomp.New[float32]([]int{256, 256},
//	    seqcomp.WithShardFiles("/data/a.szfp", "/data/b.szfp"),
//	)
func WithShardFiles(paths ...string) Option {
	return func(o *options) {
		o.location.Files = append([]string(nil), paths...)
	}
}

// WithShardDirs creates one generated shard file in each directory.
// Useful to spread shards over several disks.
func WithShardDirs(dirs ...string) Option {
	return func(o *options) {
		o.location.Dirs = append([]string(nil), dirs...)
	}
}

// WithFolder creates all generated shard files in dir.
func WithFolder(dir string) Option {
	return func(o *options) {
		o.location.Folder = dir
	}
}

// WithEnvFolder is like WithFolder but reads the folder from the
// environment variable name when the sequence is created. An unset or
// empty variable is a configuration conflict.
func WithEnvFolder(name string) Option {
	return func(o *options) {
		o.location.EnvVar = name
	}
}

// WithShards sets the number of shards, usually the number of writer
// goroutines. Defaults to the number of shard files or dirs, or to the
// parallelism for folder locations.
func WithShards(n int) Option {
	return func(o *options) {
		o.location.Shards = n
	}
}

// WithTolerance selects lossy compression with an absolute error bound.
func WithTolerance(tol float32) Option {
	return func(o *options) {
		o.params.Tolerance = tol
	}
}

// WithPrecision selects lossy compression keeping bits leading mantissa
// bits of every element.
func WithPrecision(bits float32) Option {
	return func(o *options) {
		o.params.Precision = bits
	}
}

// WithRate selects fixed-rate compression with bits per element.
func WithRate(bits int64) Option {
	return func(o *options) {
		o.params.Rate = bits
	}
}

// WithCodec replaces the slice codec. A sequence must be loaded with the
// codec it was saved with.
//
// Example:
//
//	seqcomp.WithCodec(codec.Block{Entropy: codec.EntropyLZ4})
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithLogger sets a custom logger.
// If not set, logging is disabled (NoopLogger).
//
// Example:
//
//	seqcomp.WithLogger(seqcomp.NewJSONLogger(slog.LevelInfo))
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLogLevel enables text logging to stderr at level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector sets a custom metrics collector.
// If not set, metrics are not collected (NoopMetricsCollector).
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithResourceController bounds memory use of in-memory sequences, shard
// write throughput and concurrent blob transfers.
//
// Example:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   1 << 30,
//	    IOLimitBytesPerSec: 200 << 20,
//	})
//	seqcomp.WithResourceController(rc)
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithLookupEnv replaces os.LookupEnv for WithEnvFolder.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(o *options) {
		o.lookupEnv = lookup
	}
}

// WithParallelism sets the function that reports the default shard count.
// Defaults to runtime.GOMAXPROCS(0).
func WithParallelism(fn func() int) Option {
	return func(o *options) {
		o.parallelism = fn
	}
}

// WithRemoveOnClose controls whether shard data files are deleted on Close.
// Generated shard files are removed by default; files named with
// WithShardFiles are kept.
func WithRemoveOnClose(remove bool) Option {
	return func(o *options) {
		o.removeOnClose = &remove
	}
}

// withFileSystem routes all file access through fsys.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:   codec.Default,
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	if o.codec == nil {
		o.codec = codec.Default
	}
	return o
}

func (o *options) resolver() pathres.Resolver {
	return pathres.Resolver{
		LookupEnv:   o.lookupEnv,
		Parallelism: o.parallelism,
	}
}

func (o *options) backendOptions(plan pathres.Plan) sequence.Options {
	remove := plan.Generated
	if o.removeOnClose != nil {
		remove = *o.removeOnClose
	}
	return sequence.Options{
		Codec:           o.codec,
		Logger:          o.logger.Logger,
		Resource:        o.rc,
		FS:              o.fsys,
		RemoveOnClose:   remove,
		SaveParallelism: o.rc.MaxTransfers(),
	}
}
