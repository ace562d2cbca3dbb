package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/seqcomp/blobstore"
)

// errAborted is returned by Close after Abort.
var errAborted = errors.New("upload aborted")

// objectAPI is the part of *minio.Client the store talks to. Ranged reads
// go through getRange so tests can serve them without a server.
type objectAPI interface {
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	getRange(ctx context.Context, bucket, key string, first, last int64) (io.ReadCloser, error)
}

type client struct{ *minio.Client }

func (c client) getRange(ctx context.Context, bucket, key string, first, last int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(first, last); err != nil {
		return nil, err
	}
	obj, err := c.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Options configures New.
type Options struct {
	Prefix    string
	Region    string
	Secure    bool
	AccessKey string
	SecretKey string
	// PartSize is the multipart chunk size of streaming uploads. Zero lets
	// the client choose.
	PartSize uint64
}

// Option mutates Options.
type Option func(*Options)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option {
	return func(o *Options) { o.Prefix = prefix }
}

// WithRegion sets the bucket region.
func WithRegion(region string) Option {
	return func(o *Options) { o.Region = region }
}

// WithTLS switches the endpoint to HTTPS.
func WithTLS() Option {
	return func(o *Options) { o.Secure = true }
}

// WithStaticCredentials uses a fixed key pair instead of the MINIO_* and
// AWS_* environment variables.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(o *Options) {
		o.AccessKey = accessKey
		o.SecretKey = secretKey
	}
}

// WithPartSize sets the multipart chunk size of streaming uploads.
func WithPartSize(size uint64) Option {
	return func(o *Options) { o.PartSize = size }
}

// Store implements blobstore.BlobStore for MinIO and S3-compatible storage.
type Store struct {
	api      objectAPI
	bucket   string
	prefix   string
	partSize uint64
}

var _ blobstore.BlobStore = (*Store)(nil)

// New connects to endpoint and returns a store for bucket.
func New(endpoint, bucket string, optFns ...Option) (*Store, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvMinio{},
		&credentials.EnvAWS{},
	})
	if opts.AccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	}
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: connect %s: %w", endpoint, err)
	}
	s := NewStore(c, bucket, opts.Prefix)
	s.partSize = opts.PartSize
	return s, nil
}

// NewStore wraps an existing client. rootPrefix is prepended to all keys
// (e.g. "sequences/").
func NewStore(c *minio.Client, bucket, rootPrefix string) *Store {
	return newStore(client{c}, bucket, rootPrefix)
}

func newStore(api objectAPI, bucket, rootPrefix string) *Store {
	return &Store{api: api, bucket: bucket, prefix: rootPrefix}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

// Open stats the object. Reads are lazy range requests.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	info, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("blob %q: %w", name, blobstore.ErrNotFound)
		}
		return nil, err
	}
	return &object{store: s, key: key, size: info.Size}, nil
}

// Put uploads data in a single request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.api.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Create streams an upload of unknown length through a pipe. The object
// appears only when Close succeeds.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(ctx)
	w := &writer{pw: pw, cancel: cancel, done: make(chan error, 1)}

	key := s.key(name)
	go func() {
		_, err := s.api.PutObject(ctx, s.bucket, key, pr, -1, minio.PutObjectOptions{PartSize: s.partSize})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Delete removes a blob. Deleting a missing blob succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns the blob names below prefix relative to the store prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	root := strings.TrimSuffix(s.prefix, "/")
	objects := s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	})

	var names []string
	for obj := range objects {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if rel := strings.TrimPrefix(strings.TrimPrefix(obj.Key, root), "/"); rel != "" {
			names = append(names, rel)
		}
	}
	slices.Sort(names)
	return names, nil
}

// object is a stat'ed blob read with range requests.
type object struct {
	store *Store
	key   string
	size  int64
}

func (o *object) Close() error { return nil }

func (o *object) Size() int64 { return o.size }

func (o *object) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= o.size {
		return 0, io.EOF
	}
	last := min(off+int64(len(p)), o.size) - 1

	body, err := o.store.api.getRange(ctx, o.store.bucket, o.key, off, last)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	want := int(last - off + 1)
	n, err := io.ReadFull(body, p[:want])
	switch {
	case errors.Is(err, io.EOF):
		return n, io.ErrUnexpectedEOF
	case err != nil:
		return n, err
	case want < len(p):
		return n, io.EOF
	}
	return n, nil
}

func (o *object) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off < 0 || off >= o.size {
		return nil, io.EOF
	}
	if length <= 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return o.store.api.getRange(ctx, o.store.bucket, o.key, off, min(off+length, o.size)-1)
}

// writer feeds a background PutObject.
type writer struct {
	pw       *io.PipeWriter
	cancel   context.CancelFunc
	done     chan error
	finished atomic.Bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.finished.Load() {
		return 0, io.ErrClosedPipe
	}
	return w.pw.Write(p)
}

func (w *writer) Close() error {
	if !w.finished.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	defer w.cancel()
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

// Abort stops the upload without publishing the object.
func (w *writer) Abort() error {
	if !w.finished.CompareAndSwap(false, true) {
		return nil
	}
	w.cancel()
	_ = w.pw.CloseWithError(errAborted)
	<-w.done
	return nil
}

// Sync is a no-op; data is flushed by the multipart upload.
func (w *writer) Sync() error { return nil }
