package codec

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/seqcomp/model"
)

// Entropy selects the general-purpose compressor applied after quantization.
type Entropy uint8

const (
	// EntropyNone stores the quantized body as is.
	EntropyNone Entropy = 0
	// EntropyLZ4 uses LZ4 block compression (fast).
	EntropyLZ4 Entropy = 1
	// EntropyZSTD uses ZSTD block compression (better ratio).
	EntropyZSTD Entropy = 2
)

func (e Entropy) String() string {
	switch e {
	case EntropyNone:
		return "none"
	case EntropyLZ4:
		return "lz4"
	case EntropyZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("entropy(%d)", uint8(e))
	}
}

// mode is the quantization applied before the entropy stage.
type mode uint8

const (
	modeLossless  mode = 0
	modeTolerance mode = 1
	modePrecision mode = 2
	modeRate      mode = 3
)

// Block header: [mode u8][entropy u8][body length u32]
const headerSize = 6

// ZSTD encoder/decoder pools
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Block is the built-in Codec: a quantization stage chosen by Params
// followed by an optional entropy stage.
//
// Modes:
//   - lossless: byte-shuffled element bytes
//   - tolerance: uniform quantization, |x - x'| <= Tolerance
//   - precision: keeps the Precision leading mantissa bits of every element
//   - rate: Rate bits per element, min/max scaled, bit-packed, no entropy stage
//
// Blocks record their own mode and quantization constants, so decoding does
// not depend on the Params passed to Decompress.
type Block struct {
	Entropy Entropy
}

// Name returns the entropy stage name.
func (b Block) Name() string { return b.Entropy.String() }

// Compress implements Codec.
func (b Block) Compress(src []byte, shape model.Shape, p model.Params) ([]byte, error) {
	dtype := shape.DType()
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: unsupported element type %s", model.ErrCodec, dtype)
	}
	if len(src) != shape.ByteLen() {
		return nil, fmt.Errorf("%w: input has %d bytes, shape %s needs %d", model.ErrCodec, len(src), shape, shape.ByteLen())
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCodec, err)
	}

	m, body, err := encodeBody(src, dtype, p)
	if err != nil {
		return nil, err
	}

	entropy := b.Entropy
	if m == modeRate {
		// Fixed-rate blocks keep a constant size.
		entropy = EntropyNone
	}
	packed, used, err := pack(body, entropy)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize+len(packed))
	out[0] = byte(m)
	out[1] = byte(used)
	binary.LittleEndian.PutUint32(out[2:], uint32(len(body)))
	copy(out[headerSize:], packed)
	return out, nil
}

// Decompress implements Codec.
func (b Block) Decompress(src []byte, shape model.Shape, _ model.Params) ([]byte, error) {
	dtype := shape.DType()
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: unsupported element type %s", model.ErrCodec, dtype)
	}
	if len(src) < headerSize {
		return nil, corrupt("%d bytes is shorter than the header", len(src))
	}
	m := mode(src[0])
	entropy := Entropy(src[1])
	rawLen := int(binary.LittleEndian.Uint32(src[2:]))

	n := shape.Len()
	if rawLen > maxBodyLen(n, dtype) {
		return nil, corrupt("body length %d exceeds bound for %s", rawLen, shape)
	}

	body, err := unpack(src[headerSize:], entropy, rawLen)
	if err != nil {
		return nil, err
	}

	out, err := decodeBody(m, body, dtype, n)
	if err != nil {
		return nil, err
	}
	if len(out) != shape.ByteLen() {
		return nil, corrupt("decoded %d bytes, shape %s needs %d", len(out), shape, shape.ByteLen())
	}
	return out, nil
}

// maxBodyLen bounds the pre-entropy body so corrupt headers cannot force huge allocations.
func maxBodyLen(n int, dtype model.DType) int {
	varints := n*binary.MaxVarintLen64 + 8
	raw := n*dtype.Size() + 17
	if varints > raw {
		return varints
	}
	return raw
}

func encodeBody(src []byte, dtype model.DType, p model.Params) (mode, []byte, error) {
	size := dtype.Size()
	switch {
	case p.Tolerance > 0:
		body, err := quantizeTolerance(src, dtype, float64(p.Tolerance))
		return modeTolerance, body, err
	case p.Precision > 0:
		bits := int(p.Precision)
		if bits < 1 {
			bits = 1
		}
		if bits >= mantissaBits(dtype) {
			return modeLossless, shuffle(src, size), nil
		}
		return modePrecision, shuffle(truncateMantissa(src, dtype, bits), size), nil
	case p.Rate > 0:
		if p.Rate >= int64(size*8) {
			return modeLossless, shuffle(src, size), nil
		}
		body, err := quantizeRate(src, dtype, int(p.Rate))
		return modeRate, body, err
	default:
		return modeLossless, shuffle(src, size), nil
	}
}

func decodeBody(m mode, body []byte, dtype model.DType, n int) ([]byte, error) {
	size := dtype.Size()
	switch m {
	case modeLossless, modePrecision:
		if len(body) != n*size {
			return nil, corrupt("body has %d bytes, want %d", len(body), n*size)
		}
		return unshuffle(body, size), nil
	case modeTolerance:
		return dequantizeTolerance(body, dtype, n)
	case modeRate:
		return dequantizeRate(body, dtype, n)
	default:
		return nil, corrupt("unknown mode %d", m)
	}
}

// pack applies the entropy stage. If it does not shrink the body the body is
// stored as is and EntropyNone is reported.
func pack(body []byte, entropy Entropy) ([]byte, Entropy, error) {
	if len(body) == 0 {
		return body, EntropyNone, nil
	}

	var compressed []byte
	switch entropy {
	case EntropyNone:
		return body, EntropyNone, nil
	case EntropyLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, dst, nil)
		if err != nil {
			return nil, EntropyNone, fmt.Errorf("%w: lz4: %w", model.ErrCodec, err)
		}
		if n == 0 {
			return body, EntropyNone, nil // Incompressible
		}
		compressed = dst[:n]
	case EntropyZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, EntropyNone, fmt.Errorf("%w: zstd: %w", model.ErrCodec, err)
		}
		compressed = enc.EncodeAll(body, nil)
		putZstdEncoder(enc)
	default:
		return nil, EntropyNone, fmt.Errorf("%w: unknown entropy stage %d", model.ErrCodec, entropy)
	}

	if len(compressed) >= len(body) {
		return body, EntropyNone, nil
	}
	return compressed, entropy, nil
}

func unpack(src []byte, entropy Entropy, rawLen int) ([]byte, error) {
	switch entropy {
	case EntropyNone:
		if len(src) != rawLen {
			return nil, corrupt("stored body has %d bytes, header says %d", len(src), rawLen)
		}
		return src, nil
	case EntropyLZ4:
		dst := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, corrupt("lz4: %v", err)
		}
		if n != rawLen {
			return nil, corrupt("lz4 produced %d bytes, header says %d", n, rawLen)
		}
		return dst, nil
	case EntropyZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", model.ErrCodec, err)
		}
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(src, make([]byte, 0, rawLen))
		if err != nil {
			return nil, corrupt("zstd: %v", err)
		}
		if len(out) != rawLen {
			return nil, corrupt("zstd produced %d bytes, header says %d", len(out), rawLen)
		}
		return out, nil
	default:
		return nil, corrupt("unknown entropy stage %d", entropy)
	}
}
