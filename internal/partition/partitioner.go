// Package partition splits the meshes of a scene subtree into spatially bounded,
// independently streamable partitions, duplicating boundary triangles so adjacent
// partitions render without cracks.
package partition

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/meshstream/internal/assets"
	"github.com/Faultbox/meshstream/internal/logger"
	"github.com/Faultbox/meshstream/internal/scene"
	"github.com/Faultbox/meshstream/pkg/geometry"
	vmath "github.com/Faultbox/meshstream/pkg/math"
)

// Process errors.
var (
	ErrNilNode    = errors.New("nil root node")
	ErrNilLibrary = errors.New("nil asset library")
)

// Partitioner rewrites scene nodes into partitioned child nodes.
type Partitioner struct {
	opts    Options
	reports []LeafReport
}

// New creates a partitioner. Unset options take their defaults.
func New(opts Options) *Partitioner {
	return &Partitioner{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (p *Partitioner) Options() Options {
	return p.opts
}

// Reports describes the partitions emitted by the last Process call.
func (p *Partitioner) Reports() []LeafReport {
	return p.reports
}

// Process partitions every eligible node below and including root in place, registering
// the new geometries in lib. Nodes whose surfaces cannot be partitioned are logged and
// left untouched.
func (p *Partitioner) Process(root *scene.Node, lib *assets.Library) error {
	if root == nil {
		return ErrNilNode
	}
	if lib == nil {
		return ErrNilLibrary
	}
	p.reports = nil

	var targets []*scene.Node
	root.Walk(func(n *scene.Node) bool {
		if len(n.Surfaces()) > 0 && p.opts.NodeFilterFunction(n) {
			targets = append(targets, n)
		}
		return true
	})
	if len(targets) == 0 {
		logger.Debug("no node to partition", zap.String("root", root.Name))
		return nil
	}

	// Both are world-space; processNode maps maxSize into the space each node is cut in.
	world := p.opts.WorldBoundsFunction(root)
	maxSize := p.opts.PartitionMaxSizeFunction(root)

	for _, n := range targets {
		start := time.Now()
		p.processNode(n, world, maxSize, lib)
		instrumentLatency(start)
	}

	logger.Info("partitioning complete",
		zap.String("root", root.Name),
		zap.Int("nodes", len(targets)),
		zap.Int("partitions", len(p.reports)),
		zap.Stringer("flags", p.opts.Flags))
	return nil
}

// groupResult is one partitioned surface group of a node.
type groupResult struct {
	surfaces []*scene.Surface
	info     *PartitionInfo
	tree     *octree
	leaves   []leafGeometry
}

func (p *Partitioner) processNode(n *scene.Node, world vmath.Box, maxSize vmath.Vec3, lib *assets.Library) {
	surfaces := n.Surfaces()
	groups := singletonGroups(surfaces)
	if p.opts.Flags.Has(MergeSurfaces) {
		groups = mergeSurfaces(surfaces, p.opts.SurfaceIndexer)
	}
	useRootSpace := !p.opts.Flags.Has(UniformizeSize)
	if useRootSpace {
		maxSize = localMaxSize(maxSize, n.ModelToWorld())
	}

	var results []groupResult
	for _, group := range groups {
		info := newPartitionInfo(n, group, useRootSpace, world)
		if err := buildGlobalIndex(info, group[0].Geometry); err != nil {
			logger.Warn("skipping surface group", zap.String("node", n.Name), zap.Error(err))
			instrumentSkipped(reasonNoPosition)
			continue
		}
		if info.NumTriangles() == 0 {
			instrumentSkipped(reasonEmpty)
			continue
		}
		buildHalfEdges(info)

		tree := p.buildPartitions(info, toR3(maxSize))
		results = append(results, groupResult{
			surfaces: group,
			info:     info,
			tree:     tree,
			leaves:   extractLeaves(info, tree),
		})
		partitionRuns.Inc()

		logger.Debug("partitioned surface group",
			zap.String("node", n.Name),
			zap.Int("triangles", info.NumTriangles()),
			zap.Int("depth", tree.computeDepth(0)),
			zap.Int("protected", len(info.ProtectedIndices)),
			zap.Int("discontinuous", len(info.MarkedDiscontinuousIndices)))
	}

	if len(results) > 0 {
		p.reports = append(p.reports, p.patchNode(n, results, lib)...)
	}
}

// buildPartitions builds the octree of one surface group and finalizes protected indices.
func (p *Partitioner) buildPartitions(info *PartitionInfo, maxSize r3.Vec) *octree {
	mesh := info.meshBounds()

	var tree *octree
	if info.UseRootSpace {
		tree = newOctree(info, mesh, p.opts.MaxNumTrianglesPerNode, p.opts.MaxNumIndicesPerNode)
	} else {
		world := r3.Box{Min: toR3(info.WorldMin), Max: toR3(info.WorldMax)}
		if info.WorldMin.X > info.WorldMax.X {
			world = mesh
		}
		tree = newOctree(info, cube(union(world, mesh)), p.opts.MaxNumTrianglesPerNode, p.opts.MaxNumIndicesPerNode)
		tree.pickBestPartitions(mesh)
	}
	info.BaseDepth = tree.node(tree.base).Depth

	for t := 0; t < info.NumTriangles(); t++ {
		tree.insert(tree.base, uint32(t))
	}
	if p.opts.Flags.Has(UniformizeSize) {
		tree.uniformize()
	}
	tree.ensurePartitionSizeIsValid(tree.base, maxSize)
	tree.finalize(p.opts.Flags.Has(ApplyCrackFreePolicy))
	tree.prune(0)

	protectSeams(info, tree.owners())
	return tree
}

// localMaxSize maps a world-space partition size into the model space of a node whose
// model-to-world transform is m. Degenerate axes keep the world size.
func localMaxSize(maxSize vmath.Vec3, m vmath.Mat4) vmath.Vec3 {
	scale := m.AxisScale()
	div := func(size, s float32) float32 {
		if s <= 0 {
			return size
		}
		return size / s
	}
	return vmath.Vec3{
		X: div(maxSize.X, scale.X),
		Y: div(maxSize.Y, scale.Y),
		Z: div(maxSize.Z, scale.Z),
	}
}

// leafGeometry is the extracted geometry of one non-empty leaf.
type leafGeometry struct {
	leaf          int
	geometry      *geometry.Geometry
	localToGlobal []uint32
}

func extractLeaves(info *PartitionInfo, tree *octree) []leafGeometry {
	var out []leafGeometry
	for _, id := range tree.leaves(tree.base) {
		leaf := tree.node(id)
		if leaf.IsEmpty() {
			continue
		}
		g, localToGlobal := createGeometry(info, leaf)
		markProtectedVertices(g, localToGlobal, info)
		out = append(out, leafGeometry{leaf: id, geometry: g, localToGlobal: localToGlobal})
	}
	return out
}

func toR3(v vmath.Vec3) r3.Vec {
	return r3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

func fromR3(v r3.Vec) vmath.Vec3 {
	return vmath.Vec3{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}
