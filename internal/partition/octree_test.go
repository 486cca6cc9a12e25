package partition

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/meshstream/internal/scene"
	"github.com/Faultbox/meshstream/pkg/geometry"
	vmath "github.com/Faultbox/meshstream/pkg/math"
)

var unbounded = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}

func plane(width, height float32, sx, sy int, z float32) *geometry.Geometry {
	return geometry.GeneratePlane(geometry.PlaneConfig{
		Name:      "plane",
		Width:     width,
		Height:    height,
		SegmentsX: sx,
		SegmentsY: sy,
		Origin:    vmath.Vec3{Z: z},
	})
}

func triangleGeometry() *geometry.Geometry {
	return &geometry.Geometry{
		Layout:   geometry.NewLayout(geometry.Attribute{Name: geometry.AttrPosition, Size: 3}),
		Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:  []uint32{0, 1, 2},
	}
}

// partitionGeometry runs the partition pipeline on g without touching a scene.
func partitionGeometry(t *testing.T, g *geometry.Geometry, opts Options, maxSize r3.Vec) (*PartitionInfo, *octree) {
	t.Helper()
	p := New(opts)
	node := scene.NewNode("mesh")
	surface := scene.NewSurface("surface", g, nil)
	node.AddComponent(surface)

	info := newPartitionInfo(node, []*scene.Surface{surface}, !opts.Flags.Has(UniformizeSize), node.WorldBox())
	require.NoError(t, buildGlobalIndex(info, g))
	buildHalfEdges(info)
	return info, p.buildPartitions(info, maxSize)
}

func TestIndexAtRoundTrip(t *testing.T) {
	require.Equal(t, 1, indexAt(1, 0, 0))
	require.Equal(t, 2, indexAt(0, 1, 0))
	require.Equal(t, 4, indexAt(0, 0, 1))

	for i := 0; i < 8; i++ {
		x, y, z := octantAt(i)
		require.Equal(t, i, indexAt(x, y, z))
	}
}

func TestOctantTieBreakIsLowerHalf(t *testing.T) {
	info := newPartitionInfo(scene.NewNode("n"), nil, true, vmath.EmptyBox())
	o := newOctree(info, r3.Box{Max: r3.Vec{X: 2, Y: 2, Z: 2}}, 1, 3)

	require.Equal(t, 0, o.octantFor(0, r3.Vec{X: 1, Y: 1, Z: 1}))
	require.Equal(t, indexAt(1, 0, 0), o.octantFor(0, r3.Vec{X: 1.5, Y: 1, Z: 1}))
	require.Equal(t, 7, o.octantFor(0, r3.Vec{X: 2, Y: 2, Z: 2}))

	lower := childBounds(o.node(0).Bounds, 0)
	upper := childBounds(o.node(0).Bounds, 7)
	require.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, lower.Max)
	require.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, upper.Min)
}

func TestPlanarScenario(t *testing.T) {
	const budget = 1024
	g := plane(10, 10, 50, 100, 5)
	require.Equal(t, 10000, g.NumTriangles())

	opts := Options{Flags: ApplyCrackFreePolicy, MaxNumTrianglesPerNode: budget}
	info, tree := partitionGeometry(t, g, opts, unbounded)

	require.GreaterOrEqual(t, tree.computeDepth(0), 2)
	for i := range tree.nodes {
		require.LessOrEqual(t, len(tree.nodes[i].Children), 8)
	}

	leaves := tree.leaves(tree.base)
	owned := make([]int, info.NumTriangles())
	emitted := 0
	for _, id := range leaves {
		leaf := tree.node(id)
		require.False(t, leaf.IsEmpty(), "empty leaves must be pruned")
		for _, tri := range leaf.Triangles {
			owned[tri]++
		}
		if leaf.TriangleCount() > budget {
			require.False(t, tree.canSplit(id), "leaf %d over budget but splittable", id)
		}

		union := map[uint32]struct{}{}
		for _, tri := range leaf.Triangles {
			union[tri] = struct{}{}
		}
		for _, tri := range leaf.SharedTriangles {
			union[tri] = struct{}{}
		}
		emitted += len(union)
	}
	for tri, n := range owned {
		require.Equal(t, 1, n, "triangle %d owned %d times", tri, n)
	}

	owners := tree.owners()
	duplicates := 0
	for tri := uint32(0); tri < uint32(info.NumTriangles()); tri++ {
		touched := touchedByVertices(tree, info, owners[tri], tri)
		if len(touched) < 2 {
			continue
		}
		duplicates += len(touched) - 1
		for _, id := range touched {
			require.True(t, slices.Contains(tree.node(id).SharedTriangles, tri),
				"crossing triangle %d missing from leaf %d", tri, id)
		}
		for _, idx := range info.triangle(tri) {
			require.True(t, info.ProtectedIndices.has(idx))
		}
	}
	require.Positive(t, duplicates)
	require.Equal(t, 10000+duplicates, emitted)
}

// touchedByVertices returns the owning leaf of tri plus every other owning leaf holding
// one of its vertices.
func touchedByVertices(tree *octree, info *PartitionInfo, owner int, tri uint32) []int {
	touched := []int{owner}
	for _, idx := range info.triangle(tri) {
		leaf := tree.leafAt(positionAt(idx, info))
		if len(tree.node(leaf).Triangles) > 0 && !slices.Contains(touched, leaf) {
			touched = append(touched, leaf)
		}
	}
	return touched
}

func TestSingleTriangleNeverSplits(t *testing.T) {
	info, tree := partitionGeometry(t, triangleGeometry(), Options{Flags: All, MaxNumTrianglesPerNode: 1}, r3.Vec{X: 0.1, Y: 0.1, Z: 0.1})

	leaves := tree.leaves(tree.base)
	require.Len(t, leaves, 1)
	leaf := tree.node(leaves[0])
	require.Equal(t, []uint32{0}, leaf.Triangles)
	require.Empty(t, leaf.SharedTriangles)
	require.Empty(t, info.ProtectedIndices)
	require.Equal(t, 0, tree.computeDepth(tree.base))
}

func TestWithoutCrackFreeNothingIsShared(t *testing.T) {
	info, tree := partitionGeometry(t, plane(10, 10, 20, 20, 0), Options{MaxNumTrianglesPerNode: 100}, unbounded)

	require.Greater(t, len(tree.leaves(tree.base)), 1)
	for _, id := range tree.leaves(tree.base) {
		require.Empty(t, tree.node(id).SharedTriangles)
	}
	// Seams between leaves still protect the vertices on cut edges.
	require.NotEmpty(t, info.ProtectedIndices)
}

func TestEnsurePartitionSizeIsValid(t *testing.T) {
	_, tree := partitionGeometry(t, plane(10, 10, 10, 10, 0), Options{MaxNumTrianglesPerNode: 1 << 20}, r3.Vec{X: 2.5, Y: 2.5, Z: 2.5})

	leaves := tree.leaves(tree.base)
	require.Len(t, leaves, 16)
	for _, id := range leaves {
		size := tree.node(id).Bounds.Size()
		require.LessOrEqual(t, size.X, 2.5)
		require.LessOrEqual(t, size.Y, 2.5)
	}
}

func TestUniformizeLevelsLeaves(t *testing.T) {
	sparse := plane(10, 10, 2, 2, 0)
	dense := plane(1, 1, 30, 30, 0)

	merged := &geometry.Geometry{Layout: sparse.Layout}
	merged.Vertices = append(append(merged.Vertices, sparse.Vertices...), dense.Vertices...)
	merged.Indices = append(merged.Indices, sparse.Indices...)
	offset := uint32(sparse.NumVertices())
	for _, idx := range dense.Indices {
		merged.Indices = append(merged.Indices, idx+offset)
	}

	_, tree := partitionGeometry(t, merged, Options{Flags: UniformizeSize, MaxNumTrianglesPerNode: 256}, unbounded)

	deepest := 0
	for _, id := range tree.leaves(tree.base) {
		deepest = max(deepest, tree.node(id).Depth)
	}
	for _, id := range tree.leaves(tree.base) {
		leaf := tree.node(id)
		if len(leaf.Triangles) > 1 {
			require.Equal(t, deepest, leaf.Depth, "leaf %d with %d triangles", id, len(leaf.Triangles))
		}
		require.LessOrEqual(t, leaf.TriangleCount(), 256)
	}
}

func TestPickBestPartitions(t *testing.T) {
	info := newPartitionInfo(scene.NewNode("n"), nil, false, vmath.EmptyBox())
	o := newOctree(info, r3.Box{Max: r3.Vec{X: 16, Y: 16, Z: 16}}, 10, 30)

	base := o.pickBestPartitions(r3.Box{Min: r3.Vec{X: 1, Y: 1, Z: 1}, Max: r3.Vec{X: 2, Y: 2, Z: 2}})

	require.Equal(t, 3, o.node(base).Depth)
	require.Equal(t, r3.Vec{X: 2, Y: 2, Z: 2}, o.node(base).Bounds.Max)
	require.Equal(t, 3, o.computeDepth(0))
}

func TestPruneRemovesEmptyLeaves(t *testing.T) {
	_, tree := partitionGeometry(t, plane(10, 10, 20, 20, 3), Options{MaxNumTrianglesPerNode: 100}, unbounded)

	for i := range tree.nodes {
		n := &tree.nodes[i]
		for _, c := range n.Children {
			require.False(t, tree.node(c).IsLeaf() && tree.node(c).IsEmpty())
		}
	}
}
