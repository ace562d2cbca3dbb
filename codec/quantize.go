package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/seqcomp/model"
)

// maxQuantum keeps quantized integers exactly representable as float64.
const maxQuantum = 1 << 53

func mantissaBits(dtype model.DType) int {
	if dtype == model.Float32 {
		return 23
	}
	return 52
}

func load(src []byte, dtype model.DType, i int) float64 {
	if dtype == model.Float32 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:]))
}

func store(dst []byte, dtype model.DType, i int, v float64) {
	if dtype == model.Float32 {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(v)))
		return
	}
	binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(v))
}

func nonFinite(i int, v float64) error {
	return fmt.Errorf("%w: element %d is %v; lossy modes require finite values", model.ErrCodec, i, v)
}

// shuffle groups the k-th byte of every element together, which makes
// float data far more compressible for the entropy stage.
func shuffle(src []byte, size int) []byte {
	n := len(src) / size
	out := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for b := 0; b < size; b++ {
			out[b*n+i] = src[i*size+b]
		}
	}
	return out
}

func unshuffle(src []byte, size int) []byte {
	n := len(src) / size
	out := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for b := 0; b < size; b++ {
			out[i*size+b] = src[b*n+i]
		}
	}
	return out
}

// truncateMantissa zeroes all but the leading bits of every mantissa.
// Infinities and NaNs are left untouched.
func truncateMantissa(src []byte, dtype model.DType, bits int) []byte {
	out := make([]byte, len(src))
	drop := uint(mantissaBits(dtype) - bits)
	if dtype == model.Float32 {
		mask := ^uint32(0) << drop
		for i := 0; i+4 <= len(src); i += 4 {
			v := binary.LittleEndian.Uint32(src[i:])
			if v&0x7f800000 != 0x7f800000 {
				v &= mask
			}
			binary.LittleEndian.PutUint32(out[i:], v)
		}
		return out
	}
	mask := ^uint64(0) << drop
	for i := 0; i+8 <= len(src); i += 8 {
		v := binary.LittleEndian.Uint64(src[i:])
		if v&0x7ff0000000000000 != 0x7ff0000000000000 {
			v &= mask
		}
		binary.LittleEndian.PutUint64(out[i:], v)
	}
	return out
}

// quantizeTolerance maps every element onto a grid of spacing tol and stores
// the delta of consecutive grid indexes as zigzag varints.
//
// Body: [step f64][varint deltas...]
func quantizeTolerance(src []byte, dtype model.DType, tol float64) ([]byte, error) {
	n := len(src) / dtype.Size()
	body := make([]byte, 8, 8+n*2)
	binary.LittleEndian.PutUint64(body, math.Float64bits(tol))

	var prev int64
	for i := 0; i < n; i++ {
		v := load(src, dtype, i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nonFinite(i, v)
		}
		q := math.Round(v / tol)
		if math.Abs(q) >= maxQuantum {
			return nil, fmt.Errorf("%w: element %d (%v) is too large for tolerance %v", model.ErrCodec, i, v, tol)
		}
		qi := int64(q)
		body = binary.AppendVarint(body, qi-prev)
		prev = qi
	}
	return body, nil
}

func dequantizeTolerance(body []byte, dtype model.DType, n int) ([]byte, error) {
	if len(body) < 8 {
		return nil, corrupt("tolerance body too short")
	}
	step := math.Float64frombits(binary.LittleEndian.Uint64(body))
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, corrupt("invalid tolerance step %v", step)
	}
	out := make([]byte, n*dtype.Size())
	pos := 8
	var prev int64
	for i := 0; i < n; i++ {
		d, k := binary.Varint(body[pos:])
		if k <= 0 {
			return nil, corrupt("truncated varint at element %d", i)
		}
		pos += k
		prev += d
		store(out, dtype, i, float64(prev)*step)
	}
	if pos != len(body) {
		return nil, corrupt("%d trailing bytes after tolerance body", len(body)-pos)
	}
	return out, nil
}

// quantizeRate scales every element into [0, 2^rate-1] between the array
// minimum and maximum and packs the result with exactly rate bits each.
//
// Body: [rate u8][min f64][max f64][packed bits...]
func quantizeRate(src []byte, dtype model.DType, rate int) ([]byte, error) {
	n := len(src) / dtype.Size()
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		v := load(src, dtype, i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nonFinite(i, v)
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if math.IsInf(span, 0) {
		return nil, fmt.Errorf("%w: value range [%v, %v] overflows", model.ErrCodec, lo, hi)
	}

	levels := float64(uint64(1)<<uint(rate) - 1)
	body := make([]byte, 17, 17+rateBytes(n, rate))
	body[0] = byte(rate)
	binary.LittleEndian.PutUint64(body[1:], math.Float64bits(lo))
	binary.LittleEndian.PutUint64(body[9:], math.Float64bits(hi))

	w := bitWriter{buf: body}
	for i := 0; i < n; i++ {
		var q uint64
		if span > 0 {
			f := math.Round((load(src, dtype, i) - lo) / span * levels)
			q = uint64(math.Min(math.Max(f, 0), levels))
		}
		w.write(q, rate)
	}
	return w.flush(), nil
}

func dequantizeRate(body []byte, dtype model.DType, n int) ([]byte, error) {
	if len(body) < 17 {
		return nil, corrupt("rate body too short")
	}
	rate := int(body[0])
	if rate < 1 || rate >= dtype.Size()*8 {
		return nil, corrupt("invalid rate %d for %s", rate, dtype)
	}
	if len(body) != 17+rateBytes(n, rate) {
		return nil, corrupt("rate body has %d bytes, want %d", len(body), 17+rateBytes(n, rate))
	}
	lo := math.Float64frombits(binary.LittleEndian.Uint64(body[1:]))
	hi := math.Float64frombits(binary.LittleEndian.Uint64(body[9:]))
	span := hi - lo
	levels := float64(uint64(1)<<uint(rate) - 1)

	out := make([]byte, n*dtype.Size())
	r := bitReader{buf: body[17:]}
	for i := 0; i < n; i++ {
		q := r.read(rate)
		store(out, dtype, i, lo+float64(q)/levels*span)
	}
	return out, nil
}

func rateBytes(n, rate int) int {
	return (n*rate + 7) / 8
}

// bitWriter packs values LSB first.
type bitWriter struct {
	buf   []byte
	acc   uint64
	nbits int
}

func (w *bitWriter) write(v uint64, bits int) {
	for bits > 0 {
		chunk := bits
		if chunk > 32 {
			chunk = 32
		}
		w.acc |= (v & (1<<uint(chunk) - 1)) << uint(w.nbits)
		w.nbits += chunk
		v >>= uint(chunk)
		bits -= chunk
		for w.nbits >= 8 {
			w.buf = append(w.buf, byte(w.acc))
			w.acc >>= 8
			w.nbits -= 8
		}
	}
}

func (w *bitWriter) flush() []byte {
	if w.nbits > 0 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc, w.nbits = 0, 0
	}
	return w.buf
}

type bitReader struct {
	buf   []byte
	pos   int
	acc   uint64
	nbits int
}

func (r *bitReader) read(bits int) uint64 {
	var v uint64
	shift := 0
	for bits > 0 {
		chunk := bits
		if chunk > 32 {
			chunk = 32
		}
		for r.nbits < chunk {
			var b byte
			if r.pos < len(r.buf) {
				b = r.buf[r.pos]
				r.pos++
			}
			r.acc |= uint64(b) << uint(r.nbits)
			r.nbits += 8
		}
		v |= (r.acc & (1<<uint(chunk) - 1)) << uint(shift)
		r.acc >>= uint(chunk)
		r.nbits -= chunk
		shift += chunk
		bits -= chunk
	}
	return v
}
