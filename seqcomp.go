package seqcomp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/seqcomp/internal/pathres"
	"github.com/hupe1980/seqcomp/manifest"
	"github.com/hupe1980/seqcomp/model"
	"github.com/hupe1980/seqcomp/persistence"
	"github.com/hupe1980/seqcomp/sequence"
)

// Float is the set of supported element types.
type Float = model.Float

// Sequence is a compressed, append-only sequence of equal-shaped arrays.
// Index i is the i-th committed append across all shards.
type Sequence[T Float] = sequence.Sequence[T]

// Array is one uncompressed snapshot.
type Array[T Float] = model.Array[T]

// Shape describes the arrays of a sequence.
type Shape = model.Shape

// Params holds the compression knobs of a sequence.
type Params = model.Params

// NewArray allocates a zeroed array.
func NewArray[T Float](dims ...int) *Array[T] { return model.NewArray[T](dims...) }

// Full allocates an array with every element set to v.
func Full[T Float](v T, dims ...int) *Array[T] { return model.Full(v, dims...) }

// New creates an empty sequence of arrays with the given spatial dims.
//
// The backend is chosen from the location options: in memory when none is
// given, one file per shard otherwise.
func New[T Float](dims []int, optFns ...Option) (Sequence[T], error) {
	o := applyOptions(optFns)

	shape, err := model.NewShape(model.DTypeOf[T](), dims...)
	if err != nil {
		return nil, err
	}
	if err := o.params.Validate(); err != nil {
		return nil, err
	}
	plan, err := o.resolver().Resolve(o.location)
	if err != nil {
		return nil, err
	}

	var seq Sequence[T]
	if plan.InMemory {
		seq, err = sequence.NewMemory[T](shape, o.params, o.backendOptions(plan))
	} else {
		seq, err = sequence.NewMultiFile[T](shape, o.params, plan.Paths, o.backendOptions(plan))
	}
	if err != nil {
		return nil, err
	}

	o.logger.Debug("sequence created",
		"shape", shape.String(),
		"shards", seq.Shards(),
		"in_memory", plan.InMemory,
	)
	return instrument(seq, &o), nil
}

// Load opens a sequence written by Save.
//
// A record file becomes an in-memory sequence. A manifest becomes a
// multi-file sequence whose new data files are placed by the location
// options, exactly as for New, with the shard count taken from the
// manifest. The loaded sequence accepts further appends.
func Load[T Float](path string, optFns ...Option) (Sequence[T], error) {
	o := applyOptions(optFns)

	start := time.Now()
	seq, err := load[T](path, &o)
	o.metrics.RecordLoad(time.Since(start), err)
	if err != nil {
		o.logger.LogLoad(context.Background(), path, 0, err)
		return nil, err
	}
	o.logger.LogLoad(context.Background(), path, seq.Len(), nil)
	return instrument(seq, &o), nil
}

func load[T Float](path string, o *options) (Sequence[T], error) {
	magic, err := persistence.Sniff(path)
	if err != nil {
		if errors.Is(err, ErrFormat) {
			return nil, err
		}
		return nil, ioError("open", path, err)
	}

	switch magic {
	case persistence.Magic:
		if o.location.InMemory != nil && !*o.location.InMemory || hasLocation(o.location) {
			return nil, fmt.Errorf("%w: %s holds an in-memory sequence; file locations do not apply", ErrConfigConflict, path)
		}
		return sequence.LoadMemory[T](path, o.backendOptions(pathres.Plan{InMemory: true}))
	case manifest.Magic:
		man, err := manifest.Load(path)
		if err != nil {
			return nil, ioError("open", path, err)
		}
		loc := o.location
		if loc.InMemory != nil && *loc.InMemory {
			return nil, fmt.Errorf("%w: %s holds a multi-file sequence and cannot be loaded in memory", ErrConfigConflict, path)
		}
		if loc.Shards != 0 && loc.Shards != len(man.Shards) {
			return nil, fmt.Errorf("%w: %s has %d shards, %d requested", ErrConfigConflict, path, len(man.Shards), loc.Shards)
		}
		onDisk := false
		loc.InMemory = &onDisk
		loc.Shards = len(man.Shards)
		plan, err := o.resolver().Resolve(loc)
		if err != nil {
			return nil, err
		}
		return sequence.LoadMultiFile[T](path, plan.Paths, o.backendOptions(plan))
	default:
		return nil, fmt.Errorf("%w: %s starts with unknown magic %q", ErrFormat, path, magic)
	}
}

func hasLocation(c pathres.Config) bool {
	return len(c.Files) > 0 || len(c.Dirs) > 0 || c.Folder != "" || c.EnvVar != ""
}

// Unwrap returns the backend behind a sequence returned by New, Load or
// Import: a *sequence.Memory or a *sequence.MultiFile.
func Unwrap[T Float](seq Sequence[T]) Sequence[T] {
	if s, ok := seq.(*instrumented[T]); ok {
		return s.Sequence
	}
	return seq
}

// instrumented adds logging and metrics to a backend.
type instrumented[T Float] struct {
	Sequence[T]
	logger  *Logger
	metrics MetricsCollector
}

func instrument[T Float](seq Sequence[T], o *options) Sequence[T] {
	shape := seq.Shape()
	return &instrumented[T]{
		Sequence: seq,
		logger:   o.logger.WithShape(shape.Dims(), shape.DType().String()),
		metrics:  o.metrics,
	}
}

func (s *instrumented[T]) Append(ctx context.Context, a *Array[T]) (int, error) {
	start := time.Now()
	i, err := s.Sequence.Append(ctx, a)
	s.metrics.RecordAppend(0, time.Since(start), err)
	s.logger.LogAppend(ctx, 0, i, err)
	return i, err
}

func (s *instrumented[T]) AppendShard(ctx context.Context, shard int, a *Array[T]) (int, error) {
	start := time.Now()
	i, err := s.Sequence.AppendShard(ctx, shard, a)
	s.metrics.RecordAppend(shard, time.Since(start), err)
	s.logger.LogAppend(ctx, shard, i, err)
	return i, err
}

func (s *instrumented[T]) Get(ctx context.Context, i int) (*Array[T], error) {
	start := time.Now()
	a, err := s.Sequence.Get(ctx, i)
	s.metrics.RecordGet(time.Since(start), err)
	s.logger.LogGet(ctx, i, err)
	return a, err
}

// GetMany records one get per requested slice, sharing the call's duration.
func (s *instrumented[T]) GetMany(ctx context.Context, indices []int) ([]*Array[T], error) {
	start := time.Now()
	out, err := s.Sequence.GetMany(ctx, indices)
	dur := time.Since(start)
	if err != nil || len(indices) == 0 {
		s.metrics.RecordGet(dur, err)
	} else {
		per := dur / time.Duration(len(indices))
		for range indices {
			s.metrics.RecordGet(per, nil)
		}
	}
	s.logger.LogGetMany(ctx, len(indices), err)
	return out, err
}

func (s *instrumented[T]) Save(ctx context.Context, path string) error {
	start := time.Now()
	err := s.Sequence.Save(ctx, path)
	s.metrics.RecordSave(s.Sequence.TotalSize(), time.Since(start), err)
	s.logger.LogSave(ctx, path, s.Sequence.Len(), err)
	return err
}

func (s *instrumented[T]) Close() error {
	n, size := s.Sequence.Len(), s.Sequence.TotalSize()
	err := s.Sequence.Close()
	s.logger.LogClose(context.Background(), n, size, err)
	return err
}
