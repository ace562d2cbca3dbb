package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/seqcomp/codec"
	"github.com/hupe1980/seqcomp/internal/fs"
	"github.com/hupe1980/seqcomp/model"
	"github.com/hupe1980/seqcomp/resource"
)

// Sequence is the capability set shared by both backends.
type Sequence[T model.Float] interface {
	// Append stores a on the default shard and returns its logical index.
	Append(ctx context.Context, a *model.Array[T]) (int, error)
	// AppendShard stores a on the given shard and returns its logical index.
	AppendShard(ctx context.Context, shard int, a *model.Array[T]) (int, error)
	// Get decompresses slice i into a fresh array.
	Get(ctx context.Context, i int) (*model.Array[T], error)
	// GetMany returns the slices at indices in order.
	GetMany(ctx context.Context, indices []int) ([]*model.Array[T], error)
	// Len returns the number of committed slices.
	Len() int
	// Size returns the spatial dimensions followed by Len.
	Size() []int
	// NDims returns the number of spatial dimensions plus one.
	NDims() int
	// Shards returns the fixed shard count.
	Shards() int
	// TotalSize returns the committed compressed bytes.
	TotalSize() int64
	// Shape returns the slice shape.
	Shape() model.Shape
	// Params returns the compression parameters.
	Params() model.Params
	// Save persists the sequence to path.
	Save(ctx context.Context, path string) error
	// Close releases every resource. It is idempotent.
	Close() error
}

// Options configures a backend.
type Options struct {
	// Codec compresses slices. Defaults to codec.Default.
	Codec codec.Codec
	// Logger receives internal warnings. Defaults to a discarding logger.
	Logger *slog.Logger
	// Resource bounds memory and IO. Nil means unlimited.
	Resource *resource.Controller
	// FS is the file system for shard and record files. Defaults to fs.Default.
	FS fs.FileSystem
	// RemoveOnClose deletes the shard data files on Close.
	RemoveOnClose bool
	// SaveParallelism bounds concurrent shard record writes. Defaults to 4.
	SaveParallelism int
}

func (o Options) withDefaults() Options {
	if o.Codec == nil {
		o.Codec = codec.Default
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	o.FS = fs.OrDefault(o.FS)
	if o.SaveParallelism <= 0 {
		o.SaveParallelism = 4
	}
	return o
}

func checkType[T model.Float](shape model.Shape) error {
	if got := model.DTypeOf[T](); shape.DType() != got {
		return fmt.Errorf("%w: sequence holds %s, element type is %s", model.ErrShapeMismatch, shape.DType(), got)
	}
	return nil
}

func checkArray[T model.Float](shape model.Shape, a *model.Array[T]) error {
	if a == nil {
		return fmt.Errorf("%w: nil array", model.ErrShapeMismatch)
	}
	if !shape.Matches(a.Dims) {
		return fmt.Errorf("%w: got dims %v, want %v", model.ErrShapeMismatch, a.Dims, shape.Dims())
	}
	if len(a.Data) != shape.Len() {
		return fmt.Errorf("%w: got %d elements, dims %v need %d", model.ErrShapeMismatch, len(a.Data), a.Dims, shape.Len())
	}
	return nil
}

func compress[T model.Float](c codec.Codec, shape model.Shape, p model.Params, a *model.Array[T]) ([]byte, error) {
	block, err := c.Compress(model.AsBytes(a.Data), shape, p)
	if err != nil {
		return nil, wrapCodec(err)
	}
	if len(block) == 0 {
		return nil, fmt.Errorf("%w: codec %s produced an empty block", model.ErrCodec, c.Name())
	}
	return block, nil
}

func decompress[T model.Float](c codec.Codec, shape model.Shape, p model.Params, block []byte) (*model.Array[T], error) {
	raw, err := c.Decompress(block, shape, p)
	if err != nil {
		return nil, wrapCodec(err)
	}
	if len(raw) != shape.ByteLen() {
		return nil, fmt.Errorf("%w: codec %s returned %d bytes, want %d", model.ErrCodec, c.Name(), len(raw), shape.ByteLen())
	}
	return &model.Array[T]{Dims: shape.Dims(), Data: model.FromBytes[T](raw)}, nil
}

// wrapCodec tags errors from third-party codecs that do not wrap ErrCodec.
func wrapCodec(err error) error {
	if errors.Is(err, model.ErrCodec) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrCodec, err)
}

func sizeOf(shape model.Shape, n int) []int {
	return append(shape.Dims(), n)
}

func getMany[T model.Float](ctx context.Context, indices []int, get func(context.Context, int) (*model.Array[T], error)) ([]*model.Array[T], error) {
	out := make([]*model.Array[T], len(indices))
	for j, i := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := get(ctx, i)
		if err != nil {
			return nil, err
		}
		out[j] = a
	}
	return out, nil
}

// ioErr wraps err into a *model.IOError unless it already carries a kind
// callers branch on.
func ioErr(op, path string, shard, slice int, err error) error {
	if errors.Is(err, model.ErrFormat) || errors.Is(err, model.ErrIO) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &model.IOError{Op: op, Path: path, Shard: shard, Slice: slice, Err: err}
}
