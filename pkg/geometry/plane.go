package geometry

import "github.com/Faultbox/meshstream/pkg/math"

// PlaneConfig describes a flat grid in the XY plane.
type PlaneConfig struct {
	Name      string
	Width     float32 // extent along X
	Height    float32 // extent along Y
	SegmentsX int
	SegmentsY int
	Origin    math.Vec3
}

// GeneratePlane builds a grid of SegmentsX*SegmentsY quads, two triangles each,
// facing +Z, with UVs spanning [0,1].
func GeneratePlane(cfg PlaneConfig) *Geometry {
	sx, sy := max(cfg.SegmentsX, 1), max(cfg.SegmentsY, 1)
	g := &Geometry{
		Name:   cfg.Name,
		Layout: PositionNormalUV(),
	}

	for y := 0; y <= sy; y++ {
		for x := 0; x <= sx; x++ {
			u := float32(x) / float32(sx)
			v := float32(y) / float32(sy)
			g.Vertices = append(g.Vertices,
				cfg.Origin.X+u*cfg.Width, cfg.Origin.Y+v*cfg.Height, cfg.Origin.Z,
				0, 0, 1,
				u, v,
			)
		}
	}

	row := uint32(sx + 1)
	for y := 0; y < sy; y++ {
		for x := 0; x < sx; x++ {
			i := uint32(y)*row + uint32(x)
			g.Indices = append(g.Indices,
				i, i+1, i+row,
				i+1, i+row+1, i+row,
			)
		}
	}
	return g
}
