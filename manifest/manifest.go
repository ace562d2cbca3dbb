package manifest

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/seqcomp/internal/fs"
	"github.com/hupe1980/seqcomp/internal/ordering"
	"github.com/hupe1980/seqcomp/model"
	"github.com/hupe1980/seqcomp/persistence"
)

// ShardInfo describes one shard record.
type ShardInfo struct {
	// Path of the record, relative to the manifest's directory.
	Path string
	// Count is the number of slices in the shard.
	Count int64
	// Bytes is the compressed payload size of the shard.
	Bytes int64
}

// Slot locates a logical slice: shard number and shard-local slot.
type Slot struct {
	Shard uint32
	Local uint64
}

// Manifest is the decoded manifest of a multi-file sequence.
type Manifest struct {
	Shape  model.Shape
	Params model.Params
	// Codec is the name of the codec that produced the slices.
	Codec string
	// Generation counts the saves to the same manifest path. Each save
	// writes its records under new names, so a failed save never touches
	// the records of the previous one.
	Generation uint64
	Shards     []ShardInfo
	Order      []Slot
}

// Len returns the number of logical slices.
func (m *Manifest) Len() int { return len(m.Order) }

// Counts returns the per-shard slice counts.
func (m *Manifest) Counts() []int {
	counts := make([]int, len(m.Shards))
	for k, s := range m.Shards {
		counts[k] = int(s.Count)
	}
	return counts
}

// Table rebuilds the ordering table. It fails with model.ErrFormat unless
// every shard-local slot appears exactly once.
func (m *Manifest) Table() (*ordering.Table, error) {
	slots := make([]ordering.Slot, len(m.Order))
	for i, s := range m.Order {
		slots[i] = ordering.Slot{Shard: s.Shard, Local: s.Local}
	}
	return ordering.FromSlots(slots, m.Counts())
}

// Validate checks internal consistency.
func (m *Manifest) Validate() error {
	if !m.Shape.DType().Valid() || m.Shape.NDims() == 0 {
		return fmt.Errorf("%w: manifest has no valid shape", model.ErrFormat)
	}
	if err := m.Params.Validate(); err != nil {
		return fmt.Errorf("%w: manifest parameters: %w", model.ErrFormat, err)
	}
	if len(m.Shards) == 0 {
		return fmt.Errorf("%w: manifest lists no shards", model.ErrFormat)
	}
	for k, s := range m.Shards {
		if s.Path == "" {
			return fmt.Errorf("%w: shard %d has no path", model.ErrFormat, k)
		}
		if !filepath.IsLocal(s.Path) {
			return fmt.Errorf("%w: shard %d refers to %q outside the manifest folder", model.ErrFormat, k, s.Path)
		}
		if s.Count < 0 || s.Bytes < 0 {
			return fmt.Errorf("%w: shard %d has negative size", model.ErrFormat, k)
		}
	}
	_, err := m.Table()
	return err
}

// ShardPath returns the location of shard k given the manifest location.
func (m *Manifest) ShardPath(manifestPath string, k int) string {
	return filepath.Join(filepath.Dir(manifestPath), m.Shards[k].Path)
}

// RecordPath returns the record file name of shard k written by save
// generation gen for a manifest at path.
func RecordPath(path string, gen uint64, k int) string {
	return fmt.Sprintf("%s.%06d.shard-%03d", path, gen, k)
}

// ParseRecordName reports the generation and shard of a record file name
// produced by RecordPath for a manifest named base.
func ParseRecordName(base, name string) (gen uint64, k int, ok bool) {
	rest, found := strings.CutPrefix(name, base+".")
	if !found {
		return 0, 0, false
	}
	genStr, shardStr, found := strings.Cut(rest, ".shard-")
	if !found {
		return 0, 0, false
	}
	gen, err := strconv.ParseUint(genStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	k, err = strconv.Atoi(shardStr)
	if err != nil || k < 0 {
		return 0, 0, false
	}
	return gen, k, true
}

// Save atomically writes m to path.
func Save(fsys fs.FileSystem, path string, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return persistence.SaveToFileFS(fsys, path, m.Write)
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	var m *Manifest
	err := persistence.LoadFromFile(path, func(r io.Reader) error {
		var err error
		m, err = Read(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
