package partition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateGeometryReindexesLeaf(t *testing.T) {
	info, tree := partitionGeometry(t, plane(10, 10, 20, 20, 0), Options{Flags: ApplyCrackFreePolicy, MaxNumTrianglesPerNode: 200}, unbounded)

	leaves := extractLeaves(info, tree)
	require.Greater(t, len(leaves), 1)

	for _, lg := range leaves {
		leaf := tree.node(lg.leaf)
		g := lg.geometry
		require.NoError(t, g.Validate())
		require.True(t, g.Layout.Equal(info.Layout))
		require.Equal(t, len(lg.localToGlobal), g.NumVertices())

		// Owned triangles come first, in leaf order.
		for i, tri := range leaf.Triangles {
			for k, global := range info.triangle(tri) {
				local := g.Indices[3*i+k]
				require.Equal(t, global, lg.localToGlobal[local])
				require.Equal(t, info.vertex(global), g.Vertex(local))
			}
		}

		unique := map[uint32]struct{}{}
		for _, tri := range leaf.Triangles {
			unique[tri] = struct{}{}
		}
		for _, tri := range leaf.SharedTriangles {
			unique[tri] = struct{}{}
		}
		require.Equal(t, len(unique), g.NumTriangles())
	}
}

func TestMarkProtectedVertices(t *testing.T) {
	info, tree := partitionGeometry(t, plane(10, 10, 20, 20, 0), Options{Flags: ApplyCrackFreePolicy, MaxNumTrianglesPerNode: 200}, unbounded)

	protected := 0
	for _, lg := range extractLeaves(info, tree) {
		for local, global := range lg.localToGlobal {
			require.Equal(t, info.ProtectedIndices.has(global), lg.geometry.IsProtected(uint32(local)))
		}
		protected += len(lg.geometry.ProtectedVertices)
	}
	require.Positive(t, protected)
}

func TestCreateGeometrySingleLeaf(t *testing.T) {
	info, tree := partitionGeometry(t, triangleGeometry(), DefaultOptions(), unbounded)

	leaves := extractLeaves(info, tree)
	require.Len(t, leaves, 1)
	g := leaves[0].geometry
	require.Equal(t, []uint32{0, 1, 2}, g.Indices)
	require.Equal(t, info.Vertices, g.Vertices)
	require.Empty(t, g.ProtectedVertices)
}
