package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.bin")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("world"), 5)
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))

	require.NoError(t, f.Truncate(5))
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.Equal(t, fpath, f.Name())
	require.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	tmpFile, err := lfs.CreateTemp(dir, "x-*.tmp")
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())

	newPath := filepath.Join(dir, "renamed.bin")
	require.NoError(t, lfs.Rename(fpath, newPath))
	require.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_FailAfterBytes(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	f, err := ffs.OpenFile(filepath.Join(tmp, "faulty.bin"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.WriteAt([]byte("!"), 5)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(5), ffs.Written())

	// Unmatched files are unaffected.
	g, err := ffs.OpenFile(filepath.Join(tmp, "other.bin"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer g.Close()
	_, err = g.Write(make([]byte, 64))
	require.NoError(t, err)
}

func TestFaultyFS_SyncTruncateClose(t *testing.T) {
	tmp := t.TempDir()
	boom := errors.New("boom")
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("a.bin", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnTruncate: true, FailOnClose: true, Err: boom})

	f, err := ffs.OpenFile(filepath.Join(tmp, "a.bin"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.WriteAt([]byte("data"), 0)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), boom)
	assert.ErrorIs(t, f.Truncate(0), boom)
	assert.ErrorIs(t, f.Close(), boom)

	// The write itself landed.
	info, err := ffs.Stat(filepath.Join(tmp, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())
}

func TestFaultyFS_RuleOrder(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".bin", Fault{FailAfterBytes: -1, FailOnSync: true})
	ffs.AddRule("ok.bin", Fault{FailAfterBytes: -1})
	ffs.AddRule("open", Fault{FailOnOpen: true})

	f, err := ffs.OpenFile(filepath.Join(tmp, "ok.bin"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	_, err = ffs.OpenFile(filepath.Join(tmp, "open.bin"), os.O_CREATE|os.O_RDWR, 0644)
	assert.ErrorIs(t, err, ErrInjected)

	ffs.ClearRules()
	f, err = ffs.OpenFile(filepath.Join(tmp, "open.bin"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFaultyFS_Delegation(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, ffs.MkdirAll(dir, 0755))

	f, err := ffs.CreateTemp(dir, "t-*")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	renamed := filepath.Join(dir, "final")
	require.NoError(t, ffs.Rename(f.Name(), renamed))

	entries, err := ffs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, ffs.Remove(renamed))
}
