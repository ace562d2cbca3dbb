// Package codec implements the compression transform applied to every slice.
//
// A Codec turns the little-endian element bytes of one array into an opaque,
// self-describing block and back. Sequences treat the codec as a pure,
// deterministic capability: equal inputs always produce equal blocks.
//
// Changing the codec of an existing sequence is a breaking change: persisted
// blocks are only readable by a codec that understands their framing.
package codec

import (
	"fmt"

	"github.com/hupe1980/seqcomp/model"
)

// Codec compresses and decompresses one array.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Compress encodes src, the little-endian bytes of an array of the given shape.
	Compress(src []byte, shape model.Shape, p model.Params) ([]byte, error)
	// Decompress decodes a block produced by Compress with the same shape.
	Decompress(src []byte, shape model.Shape, p model.Params) ([]byte, error)
	// Name returns the stable codec name.
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "zstd":
		return Block{Entropy: EntropyZSTD}, true
	case "lz4":
		return Block{Entropy: EntropyLZ4}, true
	case "none":
		return Block{Entropy: EntropyNone}, true
	default:
		return nil, false
	}
}

// Default is the codec used when none is configured.
var Default Codec = Block{Entropy: EntropyZSTD}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: corrupt block: %s", model.ErrCodec, fmt.Sprintf(format, args...))
}
