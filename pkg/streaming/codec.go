package streaming

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Faultbox/meshstream/pkg/geometry"
)

const geometryVersion = 1

// ErrMalformedGeometry is returned when a geometry header or payload cannot be decoded.
var ErrMalformedGeometry = errors.New("malformed geometry chunk")

// EncodeGeometry splits g into a header describing its layout and counts, and a payload
// holding the vertex, index and protected-vertex buffers. Indices are written with 16 bits
// when every vertex is addressable that way.
//
// Header, little-endian:
//
//	u8  version
//	u16 name length, name
//	u8  attribute count, then per attribute: u8 name length, name, u8 size
//	u8  index width in bytes (2 or 4)
//	u32 vertex count, u32 index count, u32 protected count
func EncodeGeometry(g *geometry.Geometry) (header, payload []byte, err error) {
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}
	if len(g.Name) > math.MaxUint16 || len(g.Layout.Attributes) > math.MaxUint8 {
		return nil, nil, fmt.Errorf("%w: name or layout too long", ErrMalformedGeometry)
	}

	le := binary.LittleEndian
	header = append(header, geometryVersion)
	header = le.AppendUint16(header, uint16(len(g.Name)))
	header = append(header, g.Name...)
	header = append(header, uint8(len(g.Layout.Attributes)))
	for _, a := range g.Layout.Attributes {
		if len(a.Name) > math.MaxUint8 || a.Size > math.MaxUint8 {
			return nil, nil, fmt.Errorf("%w: attribute %q", ErrMalformedGeometry, a.Name)
		}
		header = append(header, uint8(len(a.Name)))
		header = append(header, a.Name...)
		header = append(header, uint8(a.Size))
	}

	width := indexWidth(g.NumVertices())
	header = append(header, uint8(width))
	header = le.AppendUint32(header, uint32(g.NumVertices()))
	header = le.AppendUint32(header, uint32(len(g.Indices)))
	header = le.AppendUint32(header, uint32(len(g.ProtectedVertices)))

	payload = make([]byte, 0, 4*len(g.Vertices)+width*(len(g.Indices)+len(g.ProtectedVertices)))
	for _, f := range g.Vertices {
		payload = le.AppendUint32(payload, math.Float32bits(f))
	}
	payload = appendIndices(payload, g.Indices, width)
	payload = appendIndices(payload, g.ProtectedVertices, width)
	return header, payload, nil
}

func indexWidth(vertices int) int {
	if vertices <= math.MaxUint16+1 {
		return 2
	}
	return 4
}

func appendIndices(buf []byte, indices []uint32, width int) []byte {
	for _, i := range indices {
		if width == 2 {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(i))
		} else {
			buf = binary.LittleEndian.AppendUint32(buf, i)
		}
	}
	return buf
}

// GeometryHeader is the decoded header of a geometry chunk.
type GeometryHeader struct {
	Name           string
	Layout         geometry.Layout
	IndexWidth     int
	VertexCount    int
	IndexCount     int
	ProtectedCount int
}

// PayloadSize is the number of payload bytes the header announces.
func (h GeometryHeader) PayloadSize() int {
	return 4*h.VertexCount*h.Layout.VertexSize + h.IndexWidth*(h.IndexCount+h.ProtectedCount)
}

// DecodeGeometryHeader parses a header produced by EncodeGeometry.
func DecodeGeometryHeader(header []byte) (GeometryHeader, error) {
	r := &byteReader{buf: header, malformed: ErrMalformedGeometry}
	var h GeometryHeader

	if v := r.u8(); v != geometryVersion {
		return h, fmt.Errorf("%w: version %d", ErrMalformedGeometry, v)
	}
	h.Name = r.str(int(r.u16()))

	attrs := make([]geometry.Attribute, r.u8())
	for i := range attrs {
		attrs[i].Name = r.str(int(r.u8()))
		attrs[i].Size = int(r.u8())
	}
	h.Layout = geometry.NewLayout(attrs...)

	h.IndexWidth = int(r.u8())
	h.VertexCount = int(r.u32())
	h.IndexCount = int(r.u32())
	h.ProtectedCount = int(r.u32())

	if r.err != nil {
		return h, r.err
	}
	if h.IndexWidth != 2 && h.IndexWidth != 4 {
		return h, fmt.Errorf("%w: index width %d", ErrMalformedGeometry, h.IndexWidth)
	}
	return h, nil
}

// DecodeGeometry rebuilds a geometry from its header and payload.
func DecodeGeometry(header, payload []byte) (*geometry.Geometry, error) {
	h, err := DecodeGeometryHeader(header)
	if err != nil {
		return nil, err
	}
	if len(payload) != h.PayloadSize() {
		return nil, fmt.Errorf("%w: payload is %d bytes, header announces %d",
			ErrMalformedGeometry, len(payload), h.PayloadSize())
	}

	g := &geometry.Geometry{
		Name:     h.Name,
		Layout:   h.Layout,
		Vertices: make([]float32, h.VertexCount*h.Layout.VertexSize),
		Indices:  make([]uint32, h.IndexCount),
	}
	r := &byteReader{buf: payload, malformed: ErrMalformedGeometry}
	for i := range g.Vertices {
		g.Vertices[i] = math.Float32frombits(r.u32())
	}
	for i := range g.Indices {
		g.Indices[i] = r.index(h.IndexWidth)
	}
	if h.ProtectedCount > 0 {
		g.ProtectedVertices = make([]uint32, h.ProtectedCount)
		for i := range g.ProtectedVertices {
			g.ProtectedVertices[i] = r.index(h.IndexWidth)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedGeometry, err)
	}
	return g, nil
}

// byteReader reads little-endian values and remembers the first short read.
type byteReader struct {
	buf []byte
	off int
	err error

	// malformed is wrapped into the truncation error.
	malformed error
}

func (r *byteReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: truncated at byte %d", r.malformed, r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *byteReader) u8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *byteReader) u16() uint16 {
	if b := r.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *byteReader) u32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *byteReader) u64() uint64 {
	if b := r.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *byteReader) index(width int) uint32 {
	if width == 2 {
		return uint32(r.u16())
	}
	return r.u32()
}

func (r *byteReader) str(n int) string {
	return string(r.next(n))
}
