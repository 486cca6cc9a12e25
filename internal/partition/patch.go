package partition

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/meshstream/internal/assets"
	"github.com/Faultbox/meshstream/internal/scene"
	vmath "github.com/Faultbox/meshstream/pkg/math"
)

// LeafReport describes one emitted partition.
type LeafReport struct {
	Node              string     `json:"node"`
	Geometry          string     `json:"geometry"`
	Surface           string     `json:"surface"`
	Depth             int        `json:"depth"`
	Min               vmath.Vec3 `json:"min"`
	Max               vmath.Vec3 `json:"max"`
	Triangles         int        `json:"triangles"`
	SharedTriangles   int        `json:"shared_triangles"`
	Vertices          int        `json:"vertices"`
	ProtectedVertices int        `json:"protected_vertices"`
}

// cellKey identifies an octree cell so leaves of different groups covering the same
// cell land in the same child node.
type cellKey struct {
	depth  int
	bounds r3.Box
}

// patchNode replaces the partitioned surfaces of node with child nodes carrying the
// extracted geometries, registering each geometry in lib.
func (p *Partitioner) patchNode(node *scene.Node, results []groupResult, lib *assets.Library) []LeafReport {
	for _, r := range results {
		for _, s := range r.surfaces {
			node.RemoveComponent(s)
		}
	}

	perSurface := p.opts.Flags.Has(CreateOneNodePerSurface)
	cells := make(map[cellKey]*scene.Node)
	var reports []LeafReport

	for _, r := range results {
		src := r.surfaces[0]
		if src.Material != nil {
			lib.RegisterMaterial(src.Material)
		}

		for i, lg := range r.leaves {
			leaf := r.tree.node(lg.leaf)

			var child *scene.Node
			if perSurface {
				child = scene.NewNode(fmt.Sprintf("%s_part%d_%s", node.Name, i, src.Name))
				node.AddChild(child)
			} else {
				key := cellKey{depth: leaf.Depth, bounds: leaf.Bounds}
				if child = cells[key]; child == nil {
					child = scene.NewNode(fmt.Sprintf("%s_part%d", node.Name, len(cells)))
					cells[key] = child
					node.AddChild(child)
				}
			}

			name := lib.RegisterGeometry(fmt.Sprintf("%s_%s_%d", node.Name, src.Name, i), lg.geometry)
			child.AddComponent(scene.NewSurface(src.Name, lg.geometry, src.Material))
			if child.BoundingBox() == nil {
				child.AddComponent(scene.NewBoundingBox())
			}
			instrumentLeaf(leaf)

			reports = append(reports, LeafReport{
				Node:              child.Name,
				Geometry:          name,
				Surface:           src.Name,
				Depth:             leaf.Depth,
				Min:               fromR3(leaf.Bounds.Min),
				Max:               fromR3(leaf.Bounds.Max),
				Triangles:         len(leaf.Triangles),
				SharedTriangles:   len(leaf.SharedTriangles),
				Vertices:          lg.geometry.NumVertices(),
				ProtectedVertices: len(lg.geometry.ProtectedVertices),
			})
		}
	}
	return reports
}
