package partition

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/Faultbox/meshstream/internal/logger"
	"github.com/Faultbox/meshstream/pkg/geometry"
)

// ErrMissingPositionAttribute is returned when a surface group cannot be located in space.
var ErrMissingPositionAttribute = errors.New("reference geometry has no position attribute")

// noTwin marks a half-edge on the mesh boundary, or one whose edge is non-manifold.
const noTwin = -1

// HalfEdge is one directed edge of a triangle in the global index buffer.
// Half-edge h belongs to face h/3 and starts at corner h%3.
type HalfEdge struct {
	Origin uint32 // canonical vertex the edge starts from
	Face   int
	Next   int
	Twin   int
}

// buildGlobalIndex welds every surface of the group into one vertex and index buffer.
// Vertices are welded only when all their attributes match; vertices sharing a position
// but differing elsewhere stay distinct and are tracked together in MergedIndices.
func buildGlobalIndex(info *PartitionInfo, reference *geometry.Geometry) error {
	if reference == nil {
		return fmt.Errorf("%w: no geometry", ErrMissingPositionAttribute)
	}
	pos, ok := reference.Layout.Attribute(geometry.AttrPosition)
	if !ok || pos.Size < 3 {
		return fmt.Errorf("%w: %s", ErrMissingPositionAttribute, reference.Name)
	}

	info.Layout = reference.Layout
	info.VertexSize = reference.Layout.VertexSize
	info.PositionOffset = pos.Offset

	welded := make(map[uint64][]uint32)
	buf := make([]byte, 4*info.VertexSize)

	for _, s := range info.Surfaces {
		g := s.Geometry
		if g == nil || !g.Layout.Equal(reference.Layout) {
			logger.Warn("skipping surface with mismatched vertex layout",
				zap.String("node", info.Root.Name), zap.String("surface", s.Name))
			continue
		}
		if err := g.Validate(); err != nil {
			logger.Warn("skipping invalid surface",
				zap.String("node", info.Root.Name), zap.String("surface", s.Name), zap.Error(err))
			continue
		}

		remap := make([]uint32, g.NumVertices())
		for i := range remap {
			v := g.Vertex(uint32(i))
			for k, f := range v {
				binary.LittleEndian.PutUint32(buf[4*k:], math.Float32bits(f))
			}
			h := xxhash.Sum64(buf)

			found := false
			for _, candidate := range welded[h] {
				if equalVertex(info.vertex(candidate), v) {
					remap[i] = candidate
					found = true
					break
				}
			}
			if found {
				continue
			}

			idx := uint32(len(info.Vertices) / info.VertexSize)
			info.Vertices = append(info.Vertices, v...)
			welded[h] = append(welded[h], idx)
			p := info.rawPosition(idx)
			info.MergedIndices[p] = append(info.MergedIndices[p], idx)
			remap[i] = idx
		}

		for _, idx := range g.Indices {
			info.Indices = append(info.Indices, remap[idx])
		}
	}

	info.canonical = make([]uint32, len(info.Vertices)/max(info.VertexSize, 1))
	for _, group := range info.MergedIndices {
		for _, idx := range group {
			info.canonical[idx] = group[0]
		}
	}
	return nil
}

func (info *PartitionInfo) vertex(i uint32) []float32 {
	start := int(i) * info.VertexSize
	return info.Vertices[start : start+info.VertexSize]
}

func equalVertex(a, b []float32) bool {
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

// buildHalfEdges pairs each directed edge with its opposite over canonical vertices.
// Edges used by more than two faces are left unpaired.
func buildHalfEdges(info *PartitionInfo) {
	type edgeKey struct{ from, to uint32 }

	n := len(info.Indices)
	edges := make([]HalfEdge, n)
	byKey := make(map[edgeKey][]int, n)

	for h := 0; h < n; h++ {
		face := h / 3
		next := 3*face + (h+1)%3
		edges[h] = HalfEdge{
			Origin: info.canonical[info.Indices[h]],
			Face:   face,
			Next:   next,
			Twin:   noTwin,
		}
	}
	for h := range edges {
		to := edges[edges[h].Next].Origin
		if edges[h].Origin == to {
			continue
		}
		k := edgeKey{edges[h].Origin, to}
		byKey[k] = append(byKey[k], h)
	}

	nonManifold := 0
	for k, hs := range byKey {
		opposite := byKey[edgeKey{k.to, k.from}]
		if len(opposite) == 0 {
			continue
		}
		if len(hs) != 1 || len(opposite) != 1 {
			nonManifold++
			continue
		}
		edges[hs[0]].Twin = opposite[0]
	}
	if nonManifold > 0 {
		logger.Warn("non-manifold edges left unpaired, their vertices cannot be protected",
			zap.String("node", info.Root.Name), zap.Int("edges", nonManifold))
	}

	info.HalfEdges = edges
}

// protectSeams marks the endpoints of every edge whose two faces ended up in different
// leaves. When the faces reference different vertices at the same position the edge is
// a genuine attribute discontinuity and those vertices are marked discontinuous.
func protectSeams(info *PartitionInfo, owner []int) {
	for h, e := range info.HalfEdges {
		if e.Twin == noTwin || e.Twin < h {
			continue
		}
		t := info.HalfEdges[e.Twin]
		if owner[e.Face] == owner[t.Face] {
			continue
		}

		a0, a1 := info.Indices[h], info.Indices[e.Next]
		b0, b1 := info.Indices[e.Twin], info.Indices[t.Next]
		for _, idx := range [...]uint32{a0, a1, b0, b1} {
			info.ProtectedIndices.add(idx)
		}
		if a0 != b1 {
			info.MarkedDiscontinuousIndices.add(a0)
			info.MarkedDiscontinuousIndices.add(b1)
		}
		if a1 != b0 {
			info.MarkedDiscontinuousIndices.add(a1)
			info.MarkedDiscontinuousIndices.add(b0)
		}
	}
}
