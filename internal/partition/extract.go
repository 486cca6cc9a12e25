package partition

import "github.com/Faultbox/meshstream/pkg/geometry"

// createGeometry copies the owned and shared triangles of a leaf into a standalone
// geometry with contiguous local indices. It also returns the global index of every
// local vertex.
func createGeometry(info *PartitionInfo, leaf *OctreeNode) (*geometry.Geometry, []uint32) {
	g := &geometry.Geometry{Layout: info.Layout}

	remap := make(map[uint32]uint32)
	var localToGlobal []uint32
	seen := make(map[uint32]struct{}, leaf.TriangleCount())

	emit := func(t uint32) {
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		for _, global := range info.triangle(t) {
			local, ok := remap[global]
			if !ok {
				local = uint32(len(localToGlobal))
				remap[global] = local
				localToGlobal = append(localToGlobal, global)
				g.Vertices = append(g.Vertices, info.vertex(global)...)
			}
			g.Indices = append(g.Indices, local)
		}
	}
	for _, t := range leaf.Triangles {
		emit(t)
	}
	for _, t := range leaf.SharedTriangles {
		emit(t)
	}
	return g, localToGlobal
}

// markProtectedVertices lists the local vertices of g whose global vertex is protected.
func markProtectedVertices(g *geometry.Geometry, localToGlobal []uint32, info *PartitionInfo) {
	g.ProtectedVertices = nil
	for local, global := range localToGlobal {
		if info.ProtectedIndices.has(global) {
			g.ProtectedVertices = append(g.ProtectedVertices, uint32(local))
		}
	}
}
