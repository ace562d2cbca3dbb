package sequence

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seqcomp/model"
	"github.com/hupe1980/seqcomp/resource"
)

func newMemory[T model.Float](t *testing.T, p model.Params, dims ...int) *Memory[T] {
	t.Helper()
	m, err := NewMemory[T](shapeOf[T](t, dims...), p, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testMemoryRoundTrip[T model.Float](t *testing.T) {
	ctx := context.Background()
	for _, dims := range testDims {
		m := newMemory[T](t, model.Params{}, dims...)
		var want []*model.Array[T]
		for seed := 0; seed < 5; seed++ {
			a := wave[T](seed, dims...)
			i, err := m.Append(ctx, a)
			require.NoError(t, err)
			assert.Equal(t, seed, i)
			want = append(want, a)
		}
		assert.Equal(t, len(dims)+1, m.NDims())
		assert.Equal(t, append(append([]int{}, dims...), 5), m.Size())

		for i, a := range want {
			got, err := m.Get(ctx, i)
			require.NoError(t, err)
			assert.True(t, a.Equal(got), "slice %d of %v", i, dims)
		}
	}
}

func TestMemory_RoundTrip(t *testing.T) {
	t.Run("float32", testMemoryRoundTrip[float32])
	t.Run("float64", testMemoryRoundTrip[float64])
}

func TestMemory_SingleSlice(t *testing.T) {
	m := newMemory[float64](t, model.Params{}, 4, 4)
	i, err := m.Append(context.Background(), model.Full(1.0, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []int{4, 4, 1}, m.Size())
	assert.Equal(t, 3, m.NDims())
	assert.Equal(t, 1, m.Shards())
	assert.Positive(t, m.TotalSize())
}

func TestMemory_ShapeMismatch(t *testing.T) {
	ctx := context.Background()
	m := newMemory[float32](t, model.Params{}, 4, 4)

	_, err := m.Append(ctx, model.NewArray[float32](4, 5))
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
	_, err = m.Append(ctx, &model.Array[float32]{Dims: []int{4, 4}, Data: make([]float32, 15)})
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
	_, err = m.Append(ctx, nil)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
	assert.Equal(t, 0, m.Len())

	_, err = NewMemory[float32](shapeOf[float64](t, 4), model.Params{}, Options{})
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestMemory_InvalidParams(t *testing.T) {
	_, err := NewMemory[float64](shapeOf[float64](t, 4), model.Params{Tolerance: 1, Rate: 4}, Options{})
	assert.ErrorIs(t, err, model.ErrConfigConflict)
}

func TestMemory_IndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	m := newMemory[float64](t, model.Params{}, 8)
	_, err := m.Get(ctx, 0)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)

	_, err = m.Append(ctx, wave[float64](0, 8))
	require.NoError(t, err)
	_, err = m.Get(ctx, -1)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
	_, err = m.Get(ctx, m.Len())
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)

	_, err = m.AppendShard(ctx, 1, wave[float64](0, 8))
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
}

func TestMemory_GetMany(t *testing.T) {
	ctx := context.Background()
	m := newMemory[float64](t, model.Params{}, 6)
	for seed := 0; seed < 4; seed++ {
		_, err := m.Append(ctx, wave[float64](seed, 6))
		require.NoError(t, err)
	}
	got, err := m.GetMany(ctx, []int{3, 0, 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, wave[float64](3, 6).Equal(got[0]))
	assert.True(t, wave[float64](0, 6).Equal(got[1]))
	assert.True(t, got[0].Equal(got[2]))

	_, err = m.GetMany(ctx, []int{0, 4})
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
}

func TestMemory_Tolerance(t *testing.T) {
	ctx := context.Background()
	const tol = 1e-2
	m := newMemory[float64](t, model.Params{Tolerance: tol}, 32, 32)
	a := wave[float64](2, 32, 32)
	_, err := m.Append(ctx, a)
	require.NoError(t, err)

	got, err := m.Get(ctx, 0)
	require.NoError(t, err)
	for i := range a.Data {
		assert.InDelta(t, a.Data[i], got.Data[i], tol)
	}
	assert.Less(t, m.TotalSize(), int64(32*32*8))
}

func TestMemory_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seq.szfp")

	m := newMemory[float32](t, model.Params{Precision: 12}, 3, 5)
	for seed := 0; seed < 7; seed++ {
		_, err := m.Append(ctx, wave[float32](seed, 3, 5))
		require.NoError(t, err)
	}
	require.NoError(t, m.Save(ctx, path))

	loaded, err := LoadMemory[float32](path, Options{})
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, m.Size(), loaded.Size())
	assert.Equal(t, m.TotalSize(), loaded.TotalSize())
	assert.Equal(t, m.Params(), loaded.Params())
	assert.True(t, m.Shape().Equal(loaded.Shape()))
	for i := 0; i < m.Len(); i++ {
		want, err := m.Get(ctx, i)
		require.NoError(t, err)
		got, err := loaded.Get(ctx, i)
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	}

	// A loaded sequence keeps accepting appends.
	i, err := loaded.Append(ctx, wave[float32](9, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, 7, i)
}

func TestMemory_SaveLoadEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.szfp")
	m := newMemory[float64](t, model.Params{}, 2)
	require.NoError(t, m.Save(context.Background(), path))

	loaded, err := LoadMemory[float64](path, Options{})
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, 0, loaded.Len())
	assert.Equal(t, []int{2, 0}, loaded.Size())
}

func TestMemory_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMemory[float64](filepath.Join(dir, "missing.szfp"), Options{})
	assert.ErrorIs(t, err, model.ErrIO)

	garbage := filepath.Join(dir, "garbage.szfp")
	require.NoError(t, os.WriteFile(garbage, []byte("not a sequence file"), 0o644))
	_, err = LoadMemory[float64](garbage, Options{})
	assert.ErrorIs(t, err, model.ErrFormat)

	path := filepath.Join(dir, "f64.szfp")
	m := newMemory[float64](t, model.Params{}, 2)
	_, err = m.Append(context.Background(), wave[float64](0, 2))
	require.NoError(t, err)
	require.NoError(t, m.Save(context.Background(), path))
	_, err = LoadMemory[float32](path, Options{})
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestMemory_MemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1024})
	m, err := NewMemory[float64](shapeOf[float64](t, 4), model.Params{}, Options{Resource: rc})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Append(context.Background(), wave[float64](0, 4))
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Equal(t, 0, m.Len())
	assert.Zero(t, rc.MemoryUsage())
}

func TestMemory_ReleasesMemoryOnClose(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	m, err := NewMemory[float64](shapeOf[float64](t, 4), model.Params{}, Options{Resource: rc})
	require.NoError(t, err)
	_, err = m.Append(context.Background(), wave[float64](0, 4))
	require.NoError(t, err)
	assert.Positive(t, rc.MemoryUsage())

	require.NoError(t, m.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestMemory_Closed(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory[float64](shapeOf[float64](t, 2), model.Params{}, Options{})
	require.NoError(t, err)
	_, err = m.Append(ctx, wave[float64](0, 2))
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Append(ctx, wave[float64](0, 2))
	assert.ErrorIs(t, err, model.ErrClosed)
	_, err = m.Get(ctx, 0)
	assert.ErrorIs(t, err, model.ErrClosed)
	assert.ErrorIs(t, m.Save(ctx, filepath.Join(t.TempDir(), "x")), model.ErrClosed)
}

func TestMemory_CanceledContext(t *testing.T) {
	m := newMemory[float64](t, model.Params{}, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Append(ctx, wave[float64](0, 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	m := newMemory[float64](t, model.Params{}, 64)
	_, err := m.Append(ctx, wave[float64](0, 64))
	require.NoError(t, err)

	const appends = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seed := 1; seed <= appends; seed++ {
			_, err := m.Append(ctx, wave[float64](seed, 64))
			assert.NoError(t, err)
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < appends; j++ {
				n := m.Len()
				i := j % n
				got, err := m.Get(ctx, i)
				if assert.NoError(t, err) {
					assert.True(t, wave[float64](i, 64).Equal(got))
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, appends+1, m.Len())
}
