package pathres

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hupe1980/seqcomp/model"
)

// DefaultDirName is the folder created under TempDir when no location is given.
const DefaultDirName = "seqcomp"

// FileExt is the extension of generated shard data files.
const FileExt = ".szfp"

// Config is the location part of the sequence configuration.
// At most one of Files, Dirs, Folder and EnvVar may be set.
type Config struct {
	// InMemory is the explicit in-memory choice; nil means unset.
	InMemory *bool
	// Files lists one data file per shard.
	Files []string
	// Dirs lists one directory per shard.
	Dirs []string
	// Folder holds all shard files.
	Folder string
	// EnvVar names an environment variable holding the folder.
	EnvVar string
	// Shards is the requested shard count; 0 derives it from Files, Dirs or Parallelism.
	Shards int
}

func (c Config) locations() int {
	n := 0
	if len(c.Files) > 0 {
		n++
	}
	if len(c.Dirs) > 0 {
		n++
	}
	if c.Folder != "" {
		n++
	}
	if c.EnvVar != "" {
		n++
	}
	return n
}

// Plan is the resolved storage layout.
type Plan struct {
	InMemory bool
	Paths    []string
	// Generated reports that Paths were named by the resolver, not the caller.
	Generated bool
}

// Resolver resolves a Config. The zero value uses the process environment.
type Resolver struct {
	LookupEnv   func(string) (string, bool)
	TempDir     func() string
	Parallelism func() int
	Token       func() string
}

func (r Resolver) lookupEnv(key string) (string, bool) {
	if r.LookupEnv != nil {
		return r.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

func (r Resolver) tempDir() string {
	if r.TempDir != nil {
		return r.TempDir()
	}
	return os.TempDir()
}

func (r Resolver) parallelism() int {
	if r.Parallelism != nil {
		if n := r.Parallelism(); n > 0 {
			return n
		}
	}
	return runtime.GOMAXPROCS(0)
}

func (r Resolver) token() string {
	if r.Token != nil {
		return r.Token()
	}
	return RandomToken()
}

// RandomToken returns 8 random bytes hex encoded.
func RandomToken() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrConfigConflict, fmt.Sprintf(format, args...))
}

// Resolve validates c and produces a Plan.
func (r Resolver) Resolve(c Config) (Plan, error) {
	if c.Shards < 0 {
		return Plan{}, conflict("shard count must not be negative, got %d", c.Shards)
	}
	locs := c.locations()
	if locs > 1 {
		return Plan{}, conflict("only one of shard files, shard dirs, folder and env folder may be set")
	}
	if c.InMemory != nil && *c.InMemory {
		if locs > 0 {
			return Plan{}, conflict("in-memory storage cannot be combined with a file location")
		}
		if c.Shards > 1 {
			return Plan{}, conflict("in-memory storage has exactly one shard, got %d", c.Shards)
		}
		return Plan{InMemory: true}, nil
	}
	if locs == 0 && c.InMemory == nil {
		if c.Shards > 1 {
			return Plan{}, conflict("%d shards need file storage; set a location or disable in-memory storage", c.Shards)
		}
		return Plan{InMemory: true}, nil
	}

	switch {
	case len(c.Files) > 0:
		if c.Shards != 0 && c.Shards != len(c.Files) {
			return Plan{}, conflict("%d shard files for %d shards", len(c.Files), c.Shards)
		}
		for i, f := range c.Files {
			if f == "" {
				return Plan{}, conflict("shard file %d is empty", i)
			}
		}
		return Plan{Paths: append([]string(nil), c.Files...)}, nil
	case len(c.Dirs) > 0:
		if c.Shards != 0 && c.Shards != len(c.Dirs) {
			return Plan{}, conflict("%d shard dirs for %d shards", len(c.Dirs), c.Shards)
		}
		tok := r.token()
		paths := make([]string, len(c.Dirs))
		for k, d := range c.Dirs {
			if d == "" {
				return Plan{}, conflict("shard dir %d is empty", k)
			}
			paths[k] = filepath.Join(d, fileName(tok, k))
		}
		return Plan{Paths: paths, Generated: true}, nil
	}

	folder := c.Folder
	if c.EnvVar != "" {
		v, ok := r.lookupEnv(c.EnvVar)
		if !ok || v == "" {
			return Plan{}, conflict("environment variable %s is not set", c.EnvVar)
		}
		folder = v
	}
	if folder == "" {
		folder = filepath.Join(r.tempDir(), DefaultDirName)
	}

	shards := c.Shards
	if shards == 0 {
		shards = r.parallelism()
	}
	tok := r.token()
	paths := make([]string, shards)
	for k := range paths {
		paths[k] = filepath.Join(folder, fileName(tok, k))
	}
	return Plan{Paths: paths, Generated: true}, nil
}

func fileName(token string, k int) string {
	return fmt.Sprintf("%s-%d%s", token, k, FileExt)
}
