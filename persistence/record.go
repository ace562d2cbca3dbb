package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/hupe1980/seqcomp/internal/seqindex"
	"github.com/hupe1980/seqcomp/model"
)

// offsetChunk bounds how many offsets are read per allocation, so a corrupt
// count cannot force a huge up-front allocation.
const offsetChunk = 8192

// AppendHeader appends the encoded record header, up to and including
// payloadLength, to dst.
func AppendHeader(dst []byte, rec *Record) ([]byte, error) {
	if err := rec.validate(); err != nil {
		return nil, err
	}
	le := binary.LittleEndian

	dst = append(dst, Magic...)
	dst = le.AppendUint32(dst, Version)
	dst = append(dst, byte(rec.Shape.DType()), byte(rec.Shape.NDims()))
	for _, d := range rec.Shape.Dims() {
		dst = le.AppendUint32(dst, uint32(int32(d)))
	}
	dst = le.AppendUint32(dst, uint32(int32(rec.Count())))
	dst = le.AppendUint32(dst, math.Float32bits(rec.Params.Tolerance))
	dst = le.AppendUint32(dst, math.Float32bits(rec.Params.Precision))
	dst = le.AppendUint64(dst, uint64(rec.Params.Rate))
	dst = le.AppendUint64(dst, uint64(rec.Count()))
	for _, h := range rec.Heads {
		dst = le.AppendUint64(dst, uint64(h))
	}
	for _, t := range rec.Tails {
		dst = le.AppendUint64(dst, uint64(t))
	}
	dst = le.AppendUint64(dst, uint64(rec.PayloadLen()))
	return dst, nil
}

// WriteRecord writes rec followed by exactly rec.PayloadLen() bytes read
// from payload and the checksum trailer.
func WriteRecord(w io.Writer, rec *Record, payload io.Reader) error {
	header, err := AppendHeader(make([]byte, 0, rec.headerSize()), rec)
	if err != nil {
		return err
	}

	cw := NewChecksumWriter(w)
	if _, err := cw.Write(header); err != nil {
		return err
	}
	n, err := io.CopyN(cw, payload, rec.PayloadLen())
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("persistence: payload ended after %d of %d bytes", n, rec.PayloadLen())
		}
		return err
	}

	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], cw.Sum())
	_, err = w.Write(trailer[:])
	return err
}

// ReadRecord reads a complete record and returns its header and payload.
func ReadRecord(r io.Reader) (*Record, []byte, error) {
	var buf bytes.Buffer
	rec, err := ReadRecordTo(r, &buf)
	if err != nil {
		return nil, nil, err
	}
	return rec, buf.Bytes(), nil
}

// ReadRecordTo reads a record and streams its payload into dst.
// On error dst may have received part of the payload.
func ReadRecordTo(r io.Reader, dst io.Writer) (*Record, error) {
	cr := NewChecksumReader(r)
	rec, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	if _, err := io.CopyN(dst, cr, rec.PayloadLen()); err != nil {
		return nil, truncated(err, "payload")
	}

	var trailer [trailerSize]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, truncated(err, "checksum")
	}
	if err := cr.Verify(binary.LittleEndian.Uint32(trailer[:])); err != nil {
		return nil, err
	}
	return rec, nil
}

// ParseRecord decodes a record held entirely in memory, for example a
// mapped file. The returned payload aliases data.
func ParseRecord(data []byte) (*Record, []byte, error) {
	br := bytes.NewReader(data)
	rec, err := readHeader(br)
	if err != nil {
		return nil, nil, err
	}
	start := int64(len(data) - br.Len())
	end := start + rec.PayloadLen()
	if end+trailerSize > int64(len(data)) {
		return nil, nil, formatErr("record truncated: need %d bytes, have %d", end+trailerSize, len(data))
	}
	if end+trailerSize != int64(len(data)) {
		return nil, nil, formatErr("%d trailing bytes after record", int64(len(data))-end-trailerSize)
	}

	want := binary.LittleEndian.Uint32(data[end:])
	if got := crc32.Checksum(data[:end], CRC32Table); got != want {
		return nil, nil, &ChecksumMismatchError{Expected: want, Actual: got}
	}
	return rec, data[start:end:end], nil
}

func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return formatErr("record truncated in %s", what)
	}
	return err
}

func readHeader(r io.Reader) (*Record, error) {
	var fixed [fixedHeaderSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, truncated(err, "header")
	}
	if string(fixed[:4]) != Magic {
		return nil, formatErr("bad magic %q", fixed[:4])
	}
	if v := binary.LittleEndian.Uint32(fixed[4:]); v != Version {
		return nil, formatErr("unsupported version %d", v)
	}
	dtype := model.DType(fixed[8])
	if !dtype.Valid() {
		return nil, formatErr("unknown dtype tag %d", fixed[8])
	}
	ndims := int(fixed[9])
	if ndims < 1 || ndims > model.MaxSpatialDims {
		return nil, formatErr("invalid dimension count %d", ndims)
	}

	// dims, timeCount, tolerance, precision, rate, indexCount
	rest := make([]byte, 4*ndims+4+4+4+8+8)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, truncated(err, "header")
	}
	le := binary.LittleEndian
	dims := make([]int, ndims)
	for i := range dims {
		dims[i] = int(int32(le.Uint32(rest[4*i:])))
	}
	shape, err := model.NewShape(dtype, dims...)
	if err != nil {
		return nil, formatErr("invalid shape %v", dims)
	}
	p := rest[4*ndims:]
	timeCount := int64(int32(le.Uint32(p)))
	params := model.Params{
		Tolerance: math.Float32frombits(le.Uint32(p[4:])),
		Precision: math.Float32frombits(le.Uint32(p[8:])),
		Rate:      int64(le.Uint64(p[12:])),
	}
	if err := params.Validate(); err != nil {
		return nil, formatErr("invalid parameters %+v", params)
	}
	indexCount := int64(le.Uint64(p[20:]))
	if timeCount < 0 || indexCount != timeCount {
		return nil, formatErr("time count %d does not match index count %d", timeCount, indexCount)
	}

	heads, err := readOffsets(r, int(indexCount))
	if err != nil {
		return nil, err
	}
	tails, err := readOffsets(r, int(indexCount))
	if err != nil {
		return nil, err
	}
	idx, err := seqindex.FromOffsets(heads, tails)
	if err != nil {
		return nil, err
	}

	var pl [8]byte
	if _, err := io.ReadFull(r, pl[:]); err != nil {
		return nil, truncated(err, "header")
	}
	if payloadLen := int64(le.Uint64(pl[:])); payloadLen != idx.Tail() {
		return nil, formatErr("payload length %d does not match index end %d", payloadLen, idx.Tail())
	}

	return &Record{Shape: shape, Params: params, Heads: heads, Tails: tails}, nil
}

func readOffsets(r io.Reader, n int) ([]int64, error) {
	out := make([]int64, 0, min(n, offsetChunk))
	buf := make([]byte, 8*min(n, offsetChunk))
	for len(out) < n {
		k := min(n-len(out), offsetChunk)
		if _, err := io.ReadFull(r, buf[:8*k]); err != nil {
			return nil, truncated(err, "index")
		}
		for i := 0; i < k; i++ {
			out = append(out, int64(binary.LittleEndian.Uint64(buf[8*i:])))
		}
	}
	return out, nil
}
