package manifest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/hupe1980/seqcomp/internal/conv"
	"github.com/hupe1980/seqcomp/model"
)

const (
	// Magic identifies manifest files.
	Magic         = "SZFM"
	binaryVersion = 1

	headerSize = 16
	slotSize   = 4 + 8
)

// ErrIncompatibleVersion is returned when the manifest version is not supported.
var ErrIncompatibleVersion = errors.New("incompatible manifest version")

// Write writes the manifest in binary format.
func (m *Manifest) Write(w io.Writer) error {
	payloadSize := 64 + len(m.Shards)*(2+64+16) + len(m.Order)*slotSize
	pb := newPayloadBuffer(make([]byte, 0, payloadSize))

	pb.writeUint8(uint8(m.Shape.DType()))
	pb.writeUint8(uint8(m.Shape.NDims()))
	for _, d := range m.Shape.Dims() {
		pb.writeUint32(uint32(d))
	}
	pb.writeUint32(math.Float32bits(m.Params.Tolerance))
	pb.writeUint32(math.Float32bits(m.Params.Precision))
	pb.writeUint64(uint64(m.Params.Rate))
	pb.writeString(m.Codec)
	pb.writeUint64(m.Generation)

	numShards, err := conv.IntToUint32(len(m.Shards))
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	pb.writeUint32(numShards)
	for _, s := range m.Shards {
		pb.writeString(s.Path)
		pb.writeUint64(uint64(s.Count))
		pb.writeUint64(uint64(s.Bytes))
	}

	pb.writeUint64(uint64(len(m.Order)))
	for _, s := range m.Order {
		pb.writeUint32(s.Shard)
		pb.writeUint64(s.Local)
	}

	if pb.err != nil {
		return pb.err
	}
	payload := pb.buf
	if len(payload) > math.MaxUint32 {
		return fmt.Errorf("manifest: payload of %d bytes is too large", len(payload))
	}

	header := make([]byte, headerSize)
	copy(header[0:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], binaryVersion)
	binary.LittleEndian.PutUint32(header[8:12], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// Read reads and validates a manifest in binary format.
func Read(r io.Reader) (*Manifest, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, truncated(err)
	}

	if string(header[0:4]) != Magic {
		return nil, fmt.Errorf("%w: invalid manifest magic %q", model.ErrFormat, header[0:4])
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != binaryVersion {
		return nil, fmt.Errorf("%w: %w: %d", model.ErrFormat, ErrIncompatibleVersion, v)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])

	payload, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return nil, err
	}
	if len(payload) != int(length) {
		return nil, fmt.Errorf("%w: manifest truncated", model.ErrFormat)
	}
	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, fmt.Errorf("%w: manifest checksum mismatch", model.ErrFormat)
	}

	pb := newPayloadBuffer(payload)
	m := &Manifest{}

	dtype := model.DType(pb.readUint8())
	ndims := int(pb.readUint8())
	if ndims > model.MaxSpatialDims {
		return nil, fmt.Errorf("%w: manifest has %d dimensions", model.ErrFormat, ndims)
	}
	dims := make([]int, ndims)
	for i := range dims {
		dims[i] = int(pb.readUint32())
	}
	m.Params.Tolerance = math.Float32frombits(pb.readUint32())
	m.Params.Precision = math.Float32frombits(pb.readUint32())
	m.Params.Rate = int64(pb.readUint64())
	m.Codec = pb.readString()
	m.Generation = pb.readUint64()

	numShards := pb.readUint32()
	if !pb.fits(int(numShards), 2+16) {
		return nil, fmt.Errorf("%w: manifest truncated", model.ErrFormat)
	}
	m.Shards = make([]ShardInfo, numShards)
	for k := range m.Shards {
		m.Shards[k].Path = pb.readString()
		m.Shards[k].Count = int64(pb.readUint64())
		m.Shards[k].Bytes = int64(pb.readUint64())
	}

	numSlots, err := conv.Uint64ToInt(pb.readUint64())
	if err != nil || numSlots > math.MaxInt32 || !pb.fits(numSlots, slotSize) {
		return nil, fmt.Errorf("%w: manifest truncated", model.ErrFormat)
	}
	m.Order = make([]Slot, numSlots)
	for i := range m.Order {
		m.Order[i].Shard = pb.readUint32()
		m.Order[i].Local = pb.readUint64()
	}

	if pb.err != nil {
		return nil, fmt.Errorf("%w: manifest truncated", model.ErrFormat)
	}
	if pb.pos != len(pb.buf) {
		return nil, fmt.Errorf("%w: %d trailing manifest bytes", model.ErrFormat, len(pb.buf)-pb.pos)
	}

	shape, err := model.NewShape(dtype, dims...)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid manifest shape %s%v", model.ErrFormat, dtype, dims)
	}
	m.Shape = shape

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: manifest truncated", model.ErrFormat)
	}
	return err
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

// fits reports whether n items of at least size bytes can still follow.
func (p *payloadBuffer) fits(n, size int) bool {
	return p.err == nil && n <= (len(p.buf)-p.pos)/size
}

func (p *payloadBuffer) writeUint8(v uint8) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, v)
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		p.err = fmt.Errorf("manifest: string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) readUint8() uint8 {
	if p.err != nil {
		return 0
	}
	if p.pos+1 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *payloadBuffer) readUint64() uint64 {
	if p.err != nil {
		return 0
	}
	if p.pos+8 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readString() string {
	if p.err != nil {
		return ""
	}
	if p.pos+2 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2

	if p.pos+l > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}
