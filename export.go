package seqcomp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/seqcomp/blobstore"
	"github.com/hupe1980/seqcomp/manifest"
	"github.com/hupe1980/seqcomp/persistence"
	"github.com/hupe1980/seqcomp/resource"
)

// Saver is anything that can write itself to a local path, such as a Sequence.
type Saver interface {
	Save(ctx context.Context, path string) error
}

type aborter interface {
	Abort() error
}

// Export saves seq and uploads the result to store under name.
//
// For multi-file sequences the shard records are uploaded next to name
// first and the manifest last, so a reader that finds the manifest also
// finds every record it refers to. Uploads run concurrently, bounded by the
// transfer slots of the resource controller.
func Export(ctx context.Context, seq Saver, store blobstore.BlobStore, name string, optFns ...Option) error {
	o := applyOptions(optFns)
	n, err := export(ctx, seq, store, name, &o)
	o.logger.LogExport(ctx, "export", name, n, err)
	return err
}

func export(ctx context.Context, seq Saver, store blobstore.BlobStore, name string, o *options) (int, error) {
	if err := checkBlobName(name); err != nil {
		return 0, err
	}
	dir, err := os.MkdirTemp("", "seqcomp-export-*")
	if err != nil {
		return 0, ioError("mkdir", os.TempDir(), err)
	}
	defer os.RemoveAll(dir)

	base := path.Base(name)
	local := filepath.Join(dir, base)
	if err := seq.Save(ctx, local); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, ioError("readdir", dir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.rc.MaxTransfers())
	for _, e := range entries {
		if e.Name() == base {
			continue
		}
		g.Go(func() error {
			return upload(gctx, store, o.rc, filepath.Join(dir, e.Name()), path.Join(path.Dir(name), e.Name()))
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := upload(ctx, store, o.rc, local, name); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func checkBlobName(name string) error {
	if name == "" || path.Clean(name) != name || name == "." || !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("%w: invalid blob name %q", ErrConfigConflict, name)
	}
	return nil
}

func upload(ctx context.Context, store blobstore.BlobStore, rc *resource.Controller, src, name string) error {
	if err := rc.AcquireTransfer(ctx); err != nil {
		return err
	}
	defer rc.ReleaseTransfer()

	f, err := os.Open(src)
	if err != nil {
		return ioError("open", src, err)
	}
	defer f.Close()

	w, err := store.Create(ctx, name)
	if err != nil {
		return ioError("create", name, err)
	}
	if _, err := io.Copy(w, resource.NewRateLimitedReader(ctx, f, rc)); err != nil {
		if a, ok := w.(aborter); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
			_ = store.Delete(context.WithoutCancel(ctx), name)
		}
		return ioError("upload", name, err)
	}
	if err := w.Close(); err != nil {
		return ioError("upload", name, err)
	}
	return nil
}

// Import downloads a sequence exported under name and loads it with the
// given options, as Load does. The downloaded files are removed once the
// sequence is loaded.
func Import[T Float](ctx context.Context, store blobstore.BlobStore, name string, optFns ...Option) (Sequence[T], error) {
	o := applyOptions(optFns)

	start := time.Now()
	seq, n, err := importSequence[T](ctx, store, name, &o)
	o.metrics.RecordLoad(time.Since(start), err)
	o.logger.LogExport(ctx, "import", name, n, err)
	if err != nil {
		return nil, err
	}
	return instrument(seq, &o), nil
}

func importSequence[T Float](ctx context.Context, store blobstore.BlobStore, name string, o *options) (Sequence[T], int, error) {
	if err := checkBlobName(name); err != nil {
		return nil, 0, err
	}
	dir, err := os.MkdirTemp("", "seqcomp-import-*")
	if err != nil {
		return nil, 0, ioError("mkdir", os.TempDir(), err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, path.Base(name))
	if err := download(ctx, store, o.rc, name, local); err != nil {
		return nil, 0, err
	}
	files := 1

	magic, err := persistence.Sniff(local)
	if err != nil {
		return nil, files, err
	}
	if magic == manifest.Magic {
		man, err := manifest.Load(local)
		if err != nil {
			return nil, files, ioError("open", name, err)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.rc.MaxTransfers())
		for _, sh := range man.Shards {
			g.Go(func() error {
				return download(gctx, store, o.rc, path.Join(path.Dir(name), filepath.ToSlash(sh.Path)), filepath.Join(dir, sh.Path))
			})
			files++
		}
		if err := g.Wait(); err != nil {
			return nil, files, err
		}
	}

	seq, err := load[T](local, o)
	return seq, files, err
}

func download(ctx context.Context, store blobstore.BlobStore, rc *resource.Controller, name, dst string) (err error) {
	if err := rc.AcquireTransfer(ctx); err != nil {
		return err
	}
	defer rc.ReleaseTransfer()

	b, err := store.Open(ctx, name)
	if err != nil {
		return ioError("open", name, err)
	}
	defer b.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ioError("mkdir", dst, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return ioError("create", dst, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if _, err := io.Copy(f, resource.NewRateLimitedReader(ctx, blobstore.Reader(ctx, b), rc)); err != nil {
		return ioError("download", name, err)
	}
	return nil
}
