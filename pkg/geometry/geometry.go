// Package geometry holds interleaved triangle geometry shared by the partitioner,
// the mesh readers and the stream codec.
package geometry

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshstream/pkg/math"
)

// Well-known attribute names.
const (
	AttrPosition = "position"
	AttrNormal   = "normal"
	AttrUV       = "uv"
)

// Geometry errors.
var (
	ErrIndexCount      = errors.New("index count is not a multiple of 3")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrVertexSize      = errors.New("vertex buffer size does not match layout")
)

// Attribute describes one interleaved vertex attribute. Size and Offset count float32 values.
type Attribute struct {
	Name   string
	Size   int
	Offset int
}

// Layout is the interleaved vertex format of a geometry.
type Layout struct {
	Attributes []Attribute
	VertexSize int
}

// NewLayout packs attributes in order. Offsets given by the caller are ignored.
func NewLayout(attrs ...Attribute) Layout {
	l := Layout{Attributes: make([]Attribute, len(attrs))}
	for i, a := range attrs {
		a.Offset = l.VertexSize
		l.Attributes[i] = a
		l.VertexSize += a.Size
	}
	return l
}

// PositionNormalUV is the layout produced by the mesh readers.
func PositionNormalUV() Layout {
	return NewLayout(
		Attribute{Name: AttrPosition, Size: 3},
		Attribute{Name: AttrNormal, Size: 3},
		Attribute{Name: AttrUV, Size: 2},
	)
}

// Attribute looks up an attribute by name.
func (l Layout) Attribute(name string) (Attribute, bool) {
	for _, a := range l.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Equal reports whether both layouts describe the same vertex format.
func (l Layout) Equal(other Layout) bool {
	if l.VertexSize != other.VertexSize || len(l.Attributes) != len(other.Attributes) {
		return false
	}
	for i := range l.Attributes {
		if l.Attributes[i] != other.Attributes[i] {
			return false
		}
	}
	return true
}

// Signature returns a stable textual form of the layout, e.g. "position:3@0,uv:2@3/5".
func (l Layout) Signature() string {
	s := ""
	for i, a := range l.Attributes {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s:%d@%d", a.Name, a.Size, a.Offset)
	}
	return fmt.Sprintf("%s/%d", s, l.VertexSize)
}

// Geometry is an indexed triangle list over an interleaved float32 vertex buffer.
type Geometry struct {
	Name     string
	Layout   Layout
	Vertices []float32
	Indices  []uint32

	// ProtectedVertices lists local vertex indices that later passes must not move,
	// merge or drop because an adjacent partition holds a matching copy.
	ProtectedVertices []uint32
}

// NumVertices returns the number of vertices in the buffer.
func (g *Geometry) NumVertices() int {
	if g.Layout.VertexSize == 0 {
		return 0
	}
	return len(g.Vertices) / g.Layout.VertexSize
}

// NumTriangles returns the number of triangles.
func (g *Geometry) NumTriangles() int {
	return len(g.Indices) / 3
}

// Vertex returns the attribute slice of vertex i. The slice aliases the buffer.
func (g *Geometry) Vertex(i uint32) []float32 {
	start := int(i) * g.Layout.VertexSize
	return g.Vertices[start : start+g.Layout.VertexSize]
}

// Position returns the position of vertex i, or false when the layout has no position.
func (g *Geometry) Position(i uint32) (math.Vec3, bool) {
	attr, ok := g.Layout.Attribute(AttrPosition)
	if !ok || attr.Size < 3 {
		return math.Vec3{}, false
	}
	v := g.Vertex(i)[attr.Offset:]
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}, true
}

// Bounds returns the model-space box of all vertices, or false when there is no position.
func (g *Geometry) Bounds() (math.Box, bool) {
	if _, ok := g.Layout.Attribute(AttrPosition); !ok {
		return math.Box{}, false
	}
	box := math.EmptyBox()
	for i := 0; i < g.NumVertices(); i++ {
		p, _ := g.Position(uint32(i))
		box = box.Extend(p)
	}
	return box, true
}

// Validate checks buffer sizes and index ranges.
func (g *Geometry) Validate() error {
	if g.Layout.VertexSize == 0 || len(g.Vertices)%g.Layout.VertexSize != 0 {
		return fmt.Errorf("%w: %d floats, vertex size %d", ErrVertexSize, len(g.Vertices), g.Layout.VertexSize)
	}
	if len(g.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d", ErrIndexCount, len(g.Indices))
	}
	n := uint32(g.NumVertices())
	for _, idx := range g.Indices {
		if idx >= n {
			return fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, idx, n)
		}
	}
	return nil
}

// IsProtected reports whether local vertex i is protected.
func (g *Geometry) IsProtected(i uint32) bool {
	for _, p := range g.ProtectedVertices {
		if p == i {
			return true
		}
	}
	return false
}
