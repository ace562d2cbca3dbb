package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seqcomp/blobstore"
)

// fakeAPI keeps objects of a single bucket in memory.
type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []minio.PutObjectOptions
}

var _ objectAPI = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI { return &fakeAPI{objects: map[string][]byte{}} }

func noSuchKey(key string) error {
	return minio.ErrorResponse{Code: "NoSuchKey", Key: key, StatusCode: 404}
}

func (f *fakeAPI) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return minio.ObjectInfo{}, noSuchKey(key)
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.puts = append(f.puts, opts)
	return minio.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeAPI) RemoveObject(_ context.Context, _, key string, _ minio.RemoveObjectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return noSuchKey(key)
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeAPI) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k}
	}
	close(ch)
	return ch
}

func (f *fakeAPI) getRange(_ context.Context, _, key string, first, last int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, noSuchKey(key)
	}
	return io.NopCloser(bytes.NewReader(data[first : last+1])), nil
}

func TestStore_PutOpenRead(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newStore(api, "bucket", "runs/")

	require.NoError(t, store.Put(ctx, "a/seq.szfp", []byte("hello minio world")))
	assert.Contains(t, api.objects, "runs/a/seq.szfp")

	b, err := store.Open(ctx, "a/seq.szfp")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, int64(17), b.Size())

	all, err := io.ReadAll(blobstore.Reader(ctx, b))
	require.NoError(t, err)
	assert.Equal(t, "hello minio world", string(all))

	p := make([]byte, 8)
	n, err := b.ReadAt(ctx, p, 12)
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "world", string(p[:n]))

	_, err = b.ReadAt(ctx, p, 17)
	assert.ErrorIs(t, err, io.EOF)

	rc, err := b.ReadRange(ctx, 6, 100)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "minio world", string(part))

	_, err = b.ReadRange(ctx, -1, 2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newStore(newFakeAPI(), "bucket", "")

	_, err := store.Open(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.NoError(t, store.Delete(ctx, "missing"))
}

func TestStore_ListIsSortedAndRelative(t *testing.T) {
	ctx := context.Background()
	store := newStore(newFakeAPI(), "bucket", "root/")
	for _, name := range []string{"x/b", "x/a", "y/c"} {
		require.NoError(t, store.Put(ctx, name, []byte(name)))
	}

	names, err := store.List(ctx, "x/")
	require.NoError(t, err)
	assert.Equal(t, []string{"x/a", "x/b"}, names)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"x/a", "x/b", "y/c"}, names)

	require.NoError(t, store.Delete(ctx, "x/a"))
	names, err = store.List(ctx, "x/")
	require.NoError(t, err)
	assert.Equal(t, []string{"x/b"}, names)
}

func TestStore_StreamingUpload(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newStore(api, "bucket", "")
	store.partSize = 16 << 20

	w, err := store.Create(ctx, "stream.szfp")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed "))
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), io.ErrClosedPipe)
	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	assert.Equal(t, "streamed data", string(api.objects["stream.szfp"]))
	require.Len(t, api.puts, 1)
	assert.Equal(t, uint64(16<<20), api.puts[0].PartSize)
}

func TestStore_AbortDoesNotPublish(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := newStore(api, "bucket", "")

	w, err := store.Create(ctx, "aborted")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	a, ok := w.(interface{ Abort() error })
	require.True(t, ok)
	require.NoError(t, a.Abort())
	require.NoError(t, a.Abort())
	assert.True(t, errors.Is(w.Close(), io.ErrClosedPipe))

	_, err = store.Open(ctx, "aborted")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestNewOptions(t *testing.T) {
	store, err := New("localhost:9000", "bucket",
		WithPrefix("p/"),
		WithRegion("us-east-1"),
		WithStaticCredentials("access", "secret"),
		WithPartSize(8<<20),
	)
	require.NoError(t, err)
	assert.Equal(t, "p/", store.prefix)
	assert.Equal(t, uint64(8<<20), store.partSize)
	assert.Equal(t, "p/seq", store.key("seq"))

	_, err = New("bad endpoint with spaces", "bucket", WithTLS())
	assert.Error(t, err)
}
