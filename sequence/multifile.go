package sequence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/seqcomp/internal/fs"
	"github.com/hupe1980/seqcomp/internal/ordering"
	"github.com/hupe1980/seqcomp/internal/seqindex"
	"github.com/hupe1980/seqcomp/manifest"
	"github.com/hupe1980/seqcomp/model"
	"github.com/hupe1980/seqcomp/persistence"
	"github.com/hupe1980/seqcomp/resource"
)

// shard is one append-only data file and its local index.
type shard struct {
	id   int
	path string
	file fs.File

	// wmu serializes writers. Worker k is the only writer of shard k, so it
	// is uncontended in correct use.
	wmu sync.Mutex
	// mu guards index.
	mu    sync.RWMutex
	index *seqindex.Index
}

func (s *shard) rangeOf(local int) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Range(local)
}

func (s *shard) snapshot(n int) (heads, tails []int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	heads, tails = s.index.Offsets()
	return heads[:n], tails[:n]
}

// MultiFile stores slices across K shard files.
//
// Worker k appends exclusively to shard k. Payload writes of different
// shards never share a lock; only the ordering table append is serialized.
// Get may run concurrently with appends to any shard.
type MultiFile[T model.Float] struct {
	shape  model.Shape
	params model.Params
	opts   Options

	shards []*shard
	order  *ordering.Table

	// ops is held shared by every operation and exclusively by Close.
	ops    sync.RWMutex
	closed atomic.Bool
}

var _ Sequence[float32] = (*MultiFile[float32])(nil)

// NewMultiFile creates K empty shard files at paths, truncating existing files.
func NewMultiFile[T model.Float](shape model.Shape, params model.Params, paths []string, opts Options) (*MultiFile[T], error) {
	if err := checkType[T](shape); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: multi-file storage needs at least one shard path", model.ErrConfigConflict)
	}
	seen := make(map[string]int, len(paths))
	for k, p := range paths {
		clean := filepath.Clean(p)
		if j, dup := seen[clean]; dup {
			return nil, fmt.Errorf("%w: shards %d and %d share the file %s", model.ErrConfigConflict, j, k, p)
		}
		seen[clean] = k
	}
	opts = opts.withDefaults()

	mf := &MultiFile[T]{
		shape:  shape,
		params: params,
		opts:   opts,
		shards: make([]*shard, 0, len(paths)),
		order:  ordering.New(len(paths)),
	}
	for k, p := range paths {
		f, err := openShard(opts.FS, p)
		if err != nil {
			_ = mf.release()
			return nil, ioErr("open", p, k, model.NoSlice, err)
		}
		mf.shards = append(mf.shards, &shard{id: k, path: p, file: f, index: seqindex.New()})
	}
	return mf, nil
}

func openShard(fsys fs.FileSystem, path string) (fs.File, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

// Append stores a on shard 0.
func (m *MultiFile[T]) Append(ctx context.Context, a *model.Array[T]) (int, error) {
	return m.AppendShard(ctx, 0, a)
}

// AppendShard compresses a and appends it to shard k.
//
// The block is written at the shard's committed tail and synced before the
// shard-local index entry and then the ordering entry are committed. If
// the write or sync fails the file is truncated back to the committed tail
// and a *model.IOError is returned; Len is unchanged.
func (m *MultiFile[T]) AppendShard(ctx context.Context, k int, a *model.Array[T]) (int, error) {
	m.ops.RLock()
	defer m.ops.RUnlock()
	if m.closed.Load() {
		return 0, model.ErrClosed
	}
	if k < 0 || k >= len(m.shards) {
		return 0, &model.IndexError{Index: k, Count: len(m.shards)}
	}
	if err := checkArray(m.shape, a); err != nil {
		return 0, err
	}
	block, err := compress(m.opts.Codec, m.shape, m.params, a)
	if err != nil {
		return 0, err
	}
	if m.order.Len() >= math.MaxInt32 {
		return 0, fmt.Errorf("sequence: ordering table is full")
	}

	s := m.shards[k]
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := m.opts.Resource.AcquireIO(ctx, len(block)); err != nil {
		return 0, err
	}

	s.mu.RLock()
	tail := s.index.Tail()
	local := s.index.Len()
	s.mu.RUnlock()

	if err := writeBlock(s.file, block, tail); err != nil {
		if terr := s.file.Truncate(tail); terr != nil {
			m.opts.Logger.Warn("failed to truncate shard after failed write",
				"shard", k, "path", s.path, "tail", tail, "error", terr)
			err = errors.Join(err, terr)
		}
		return 0, ioErr("write", s.path, k, local, err)
	}

	s.mu.Lock()
	_, err = s.index.Append(int64(len(block)))
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return m.order.Append(k, local)
}

func writeBlock(f fs.File, block []byte, off int64) error {
	n, err := f.WriteAt(block, off)
	if err != nil {
		return err
	}
	if n != len(block) {
		return io.ErrShortWrite
	}
	return f.Sync()
}

// Get reads and decompresses slice i. Only the bytes of that slice are read.
func (m *MultiFile[T]) Get(ctx context.Context, i int) (*model.Array[T], error) {
	m.ops.RLock()
	defer m.ops.RUnlock()
	if m.closed.Load() {
		return nil, model.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot, err := m.order.Lookup(i)
	if err != nil {
		return nil, err
	}
	s := m.shards[slot.Shard]
	head, tail, err := s.rangeOf(int(slot.Local))
	if err != nil {
		return nil, err
	}

	block := make([]byte, tail-head)
	n, err := s.file.ReadAt(block, head)
	if n == len(block) {
		err = nil
	} else if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, ioErr("read", s.path, s.id, i, err)
	}
	return decompress[T](m.opts.Codec, m.shape, m.params, block)
}

// GetMany implements Sequence.
func (m *MultiFile[T]) GetMany(ctx context.Context, indices []int) ([]*model.Array[T], error) {
	return getMany(ctx, indices, m.Get)
}

// Len implements Sequence.
func (m *MultiFile[T]) Len() int { return m.order.Len() }

// Size implements Sequence.
func (m *MultiFile[T]) Size() []int { return sizeOf(m.shape, m.Len()) }

// NDims implements Sequence.
func (m *MultiFile[T]) NDims() int { return m.shape.NDims() + 1 }

// Shards implements Sequence.
func (m *MultiFile[T]) Shards() int { return len(m.shards) }

// TotalSize returns the committed compressed bytes summed over all shards.
func (m *MultiFile[T]) TotalSize() int64 {
	var total int64
	for _, s := range m.shards {
		s.mu.RLock()
		total += s.index.Total()
		s.mu.RUnlock()
	}
	return total
}

// Shape implements Sequence.
func (m *MultiFile[T]) Shape() model.Shape { return m.shape }

// Params implements Sequence.
func (m *MultiFile[T]) Params() model.Params { return m.params }

// Paths returns the shard data file paths in shard order.
func (m *MultiFile[T]) Paths() []string {
	paths := make([]string, len(m.shards))
	for k, s := range m.shards {
		paths[k] = s.path
	}
	return paths
}

// ShardIndices returns the logical indices stored on shard k.
func (m *MultiFile[T]) ShardIndices(k int) (*roaring.Bitmap, error) {
	return m.order.ShardIndices(k)
}

// Save writes one record file per shard next to path and then the manifest
// at path. The manifest is written last so it never refers to a missing
// record. Slices committed while Save runs may or may not be included.
//
// Every save writes its records under a new generation number. The
// records of earlier generations are removed only once the new manifest
// has been renamed into place, and a failed save removes its own records,
// so the previous save stays loadable.
func (m *MultiFile[T]) Save(ctx context.Context, path string) error {
	m.ops.RLock()
	defer m.ops.RUnlock()
	if m.closed.Load() {
		return model.ErrClosed
	}

	gen, stale, err := m.generations(path)
	if err != nil {
		return err
	}

	slots := m.order.Slots()
	counts := make([]int, len(m.shards))
	for _, s := range slots {
		counts[s.Shard]++
	}

	man := &manifest.Manifest{
		Shape:      m.shape,
		Params:     m.params,
		Codec:      m.opts.Codec.Name(),
		Generation: gen,
		Shards:     make([]manifest.ShardInfo, len(m.shards)),
		Order:      make([]manifest.Slot, len(slots)),
	}
	for i, s := range slots {
		man.Order[i] = manifest.Slot{Shard: s.Shard, Local: s.Local}
	}

	recPaths := make([]string, len(m.shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.SaveParallelism)
	for k, s := range m.shards {
		recPath := manifest.RecordPath(path, gen, k)
		recPaths[k] = recPath
		heads, tails := s.snapshot(counts[k])
		var size int64
		if n := len(tails); n > 0 {
			size = tails[n-1]
		}
		man.Shards[k] = manifest.ShardInfo{Path: filepath.Base(recPath), Count: int64(counts[k]), Bytes: size}

		g.Go(func() error {
			rec := &persistence.Record{Shape: m.shape, Params: m.params, Heads: heads, Tails: tails}
			payload := resource.NewRateLimitedReader(gctx, io.NewSectionReader(s.file, 0, size), m.opts.Resource)
			if err := persistence.SaveRecord(m.opts.FS, recPath, rec, payload); err != nil {
				return ioErr("save", recPath, k, model.NoSlice, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.removeRecords(recPaths)
		return err
	}

	if err := manifest.Save(m.opts.FS, path, man); err != nil {
		m.removeRecords(recPaths)
		return ioErr("save", path, -1, model.NoSlice, err)
	}
	m.removeRecords(stale)
	return nil
}

// generations returns the generation for the next save to path and the
// record files left by earlier generations.
func (m *MultiFile[T]) generations(path string) (uint64, []string, error) {
	dir, base := filepath.Dir(path), filepath.Base(path)
	entries, err := m.opts.FS.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 1, nil, nil
		}
		return 0, nil, ioErr("readdir", dir, -1, model.NoSlice, err)
	}

	live := make(map[string]bool, len(m.shards))
	for _, s := range m.shards {
		live[filepath.Clean(s.path)] = true
	}

	var (
		last  uint64
		stale []string
	)
	for _, e := range entries {
		gen, _, ok := manifest.ParseRecordName(base, e.Name())
		if !ok || e.IsDir() {
			continue
		}
		last = max(last, gen)
		if p := filepath.Join(dir, e.Name()); !live[p] {
			stale = append(stale, p)
		}
	}
	if last == math.MaxUint64 {
		return 0, nil, fmt.Errorf("%w: save generations of %s exhausted", model.ErrConfigConflict, path)
	}
	return last + 1, stale, nil
}

func (m *MultiFile[T]) removeRecords(paths []string) {
	for _, p := range paths {
		if err := m.opts.FS.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.opts.Logger.Warn("failed to remove shard record", "path", p, "error", err)
		}
	}
}

// LoadMultiFile restores a saved multi-file sequence. The shard payloads are
// copied into fresh data files at dataPaths, one per shard, and the
// returned sequence accepts further appends.
func LoadMultiFile[T model.Float](path string, dataPaths []string, opts Options) (*MultiFile[T], error) {
	man, err := manifest.Load(path)
	if err != nil {
		return nil, ioErr("open", path, -1, model.NoSlice, err)
	}
	if err := checkType[T](man.Shape); err != nil {
		return nil, err
	}
	if len(dataPaths) != len(man.Shards) {
		return nil, fmt.Errorf("%w: manifest has %d shards, got %d data paths", model.ErrConfigConflict, len(man.Shards), len(dataPaths))
	}
	opts = opts.withDefaults()
	if man.Codec != "" && man.Codec != opts.Codec.Name() {
		return nil, fmt.Errorf("%w: sequence was written with codec %q, configured codec is %q", model.ErrConfigConflict, man.Codec, opts.Codec.Name())
	}
	sources := make(map[string]bool, len(man.Shards)+1)
	sources[filepath.Clean(path)] = true
	for k := range man.Shards {
		sources[filepath.Clean(man.ShardPath(path, k))] = true
	}
	for _, p := range dataPaths {
		if sources[filepath.Clean(p)] {
			return nil, fmt.Errorf("%w: data path %s would overwrite a saved file", model.ErrConfigConflict, p)
		}
	}
	table, err := man.Table()
	if err != nil {
		return nil, err
	}

	mf, err := NewMultiFile[T](man.Shape, man.Params, dataPaths, opts)
	if err != nil {
		return nil, err
	}
	for k, s := range mf.shards {
		if err := mf.restoreShard(s, man, man.ShardPath(path, k)); err != nil {
			_ = mf.Close()
			return nil, err
		}
	}
	mf.order = table
	return mf, nil
}

func (m *MultiFile[T]) restoreShard(s *shard, man *manifest.Manifest, recPath string) error {
	var rec *persistence.Record
	err := persistence.LoadFromFile(recPath, func(r io.Reader) error {
		var err error
		rec, err = persistence.ReadRecordTo(r, io.NewOffsetWriter(s.file, 0))
		return err
	})
	if err != nil {
		return ioErr("load", recPath, s.id, model.NoSlice, err)
	}
	if !rec.Shape.Equal(man.Shape) || rec.Params != man.Params {
		return fmt.Errorf("%w: shard record %s does not match the manifest", model.ErrFormat, recPath)
	}
	if int64(rec.Count()) != man.Shards[s.id].Count {
		return fmt.Errorf("%w: shard record %s holds %d slices, manifest says %d", model.ErrFormat, recPath, rec.Count(), man.Shards[s.id].Count)
	}
	idx, err := seqindex.FromOffsets(rec.Heads, rec.Tails)
	if err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return ioErr("sync", s.path, s.id, model.NoSlice, err)
	}
	s.index = idx
	return nil
}

// Close syncs and closes every shard file. All shards are attempted even
// when some fail; the failures are joined. Later operations return
// model.ErrClosed.
func (m *MultiFile[T]) Close() error {
	m.ops.Lock()
	defer m.ops.Unlock()
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.release()
}

func (m *MultiFile[T]) release() error {
	var errs []error
	for _, s := range m.shards {
		if err := s.file.Sync(); err != nil {
			errs = append(errs, ioErr("sync", s.path, s.id, model.NoSlice, err))
		}
		if err := s.file.Close(); err != nil {
			errs = append(errs, ioErr("close", s.path, s.id, model.NoSlice, err))
		}
		if m.opts.RemoveOnClose {
			if err := m.opts.FS.Remove(s.path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, ioErr("remove", s.path, s.id, model.NoSlice, err))
			}
		}
	}
	return errors.Join(errs...)
}
