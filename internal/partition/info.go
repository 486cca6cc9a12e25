package partition

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/meshstream/internal/scene"
	"github.com/Faultbox/meshstream/pkg/geometry"
	vmath "github.com/Faultbox/meshstream/pkg/math"
)

// indexSet is a set of global vertex indices.
type indexSet map[uint32]struct{}

func (s indexSet) add(i uint32) { s[i] = struct{}{} }

func (s indexSet) has(i uint32) bool {
	_, ok := s[i]
	return ok
}

// sorted returns the members in ascending order.
func (s indexSet) sorted() []uint32 {
	out := make([]uint32, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// PartitionInfo is the working state of one surface group while it is partitioned.
type PartitionInfo struct {
	Root     *scene.Node
	Surfaces []*scene.Surface

	// UseRootSpace is true when positions are partitioned in the root's local space,
	// false when they are moved to world space so partitions align across nodes.
	UseRootSpace bool
	toPartition  vmath.Mat4

	Layout         geometry.Layout
	VertexSize     int
	PositionOffset int
	Vertices       []float32
	Indices        []uint32

	WorldMin  vmath.Vec3
	WorldMax  vmath.Vec3
	BaseDepth int

	HalfEdges []HalfEdge

	ProtectedIndices           indexSet
	MergedIndices              map[[3]float32][]uint32
	MarkedDiscontinuousIndices indexSet

	// canonical maps every global index to the first index welded at its position.
	canonical []uint32
}

func newPartitionInfo(root *scene.Node, surfaces []*scene.Surface, useRootSpace bool, world vmath.Box) *PartitionInfo {
	info := &PartitionInfo{
		Root:                       root,
		Surfaces:                   surfaces,
		UseRootSpace:               useRootSpace,
		toPartition:                vmath.Identity(),
		WorldMin:                   world.Min,
		WorldMax:                   world.Max,
		ProtectedIndices:           make(indexSet),
		MergedIndices:              make(map[[3]float32][]uint32),
		MarkedDiscontinuousIndices: make(indexSet),
	}
	if !useRootSpace {
		info.toPartition = root.ModelToWorld()
	}
	return info
}

// NumTriangles returns the number of triangles in the global index buffer.
func (info *PartitionInfo) NumTriangles() int {
	return len(info.Indices) / 3
}

// rawPosition returns the stored position of global vertex i.
func (info *PartitionInfo) rawPosition(i uint32) [3]float32 {
	o := int(i)*info.VertexSize + info.PositionOffset
	return [3]float32{info.Vertices[o], info.Vertices[o+1], info.Vertices[o+2]}
}

// positionAt returns global vertex i in partition space.
func positionAt(i uint32, info *PartitionInfo) r3.Vec {
	p := info.toPartition.TransformPoint(info.rawPosition(i))
	return r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
}

// centroid returns the partition-space centroid of triangle t.
func (info *PartitionInfo) centroid(t uint32) r3.Vec {
	a := positionAt(info.Indices[3*t], info)
	b := positionAt(info.Indices[3*t+1], info)
	c := positionAt(info.Indices[3*t+2], info)
	return r3.Scale(1.0/3.0, r3.Add(r3.Add(a, b), c))
}

// triangle returns the three global indices of triangle t.
func (info *PartitionInfo) triangle(t uint32) [3]uint32 {
	return [3]uint32{info.Indices[3*t], info.Indices[3*t+1], info.Indices[3*t+2]}
}

// meshBounds returns the partition-space box of every referenced vertex.
func (info *PartitionInfo) meshBounds() r3.Box {
	inf := 1e300
	box := r3.Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
	for _, idx := range info.Indices {
		p := positionAt(idx, info)
		box.Min = r3.Vec{X: min(box.Min.X, p.X), Y: min(box.Min.Y, p.Y), Z: min(box.Min.Z, p.Z)}
		box.Max = r3.Vec{X: max(box.Max.X, p.X), Y: max(box.Max.Y, p.Y), Z: max(box.Max.Z, p.Z)}
	}
	return box
}
