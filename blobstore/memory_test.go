package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("payload")
	require.NoError(t, store.Put(ctx, "a/1", data))
	data[0] = 'X' // the store keeps its own copy

	w, err := store.Create(ctx, "a/2")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())

	_, err = store.Open(ctx, "a/2")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, w.Close())
	assert.Error(t, w.Close())

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2"}, names)

	blob, err := store.Open(ctx, "a/1")
	require.NoError(t, err)
	got, err := io.ReadAll(Reader(ctx, blob))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	r, err := blob.ReadRange(ctx, 3, 100)
	require.NoError(t, err)
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "load", string(got))
	require.NoError(t, blob.Close())

	require.NoError(t, store.Delete(ctx, "a/1"))
	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/2"}, names)
}
