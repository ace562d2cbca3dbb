package persistence

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/seqcomp/internal/fs"
)

const bufferSize = 256 * 1024

// SaveToFile atomically replaces filename with the bytes produced by writeFunc.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	return SaveToFileFS(fs.Default, filename, writeFunc)
}

// SaveToFileFS is SaveToFile on an explicit file system.
func SaveToFileFS(fsys fs.FileSystem, filename string, writeFunc func(io.Writer) error) error {
	fsys = fs.OrDefault(fsys)
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := fsys.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = fsys.Remove(tmpName)
		}
	}()

	// Match typical file permissions (best-effort).
	if c, ok := tmp.(interface{ Chmod(os.FileMode) error }); ok {
		_ = c.Chmod(0o644)
	}

	buf := bufio.NewWriterSize(tmp, bufferSize)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := fsys.Rename(tmpName, filename); err != nil {
		return err
	}
	// Success: prevent deferred cleanup from removing the final file.
	tmpName = ""

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// LoadFromFile opens filename and passes a buffered reader to readFunc.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return readFunc(bufio.NewReaderSize(f, bufferSize))
}

// SaveRecord writes a record file atomically.
func SaveRecord(fsys fs.FileSystem, filename string, rec *Record, payload io.Reader) error {
	return SaveToFileFS(fsys, filename, func(w io.Writer) error {
		return WriteRecord(w, rec, payload)
	})
}

// Sniff returns the 4-byte magic at the start of filename.
// Files shorter than four bytes yield a format error.
func Sniff(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", formatErr("%s is too short to hold a header", filename)
		}
		return "", err
	}
	return string(magic[:]), nil
}
