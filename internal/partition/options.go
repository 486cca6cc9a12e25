package partition

import (
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Faultbox/meshstream/internal/scene"
	vmath "github.com/Faultbox/meshstream/pkg/math"
)

// Flags selects optional partitioner behaviors.
type Flags uint32

// Behavior flags. Bit 2 is unused.
const (
	None                    Flags = 0
	MergeSurfaces           Flags = 1 << 0
	CreateOneNodePerSurface Flags = 1 << 1
	UniformizeSize          Flags = 1 << 3
	ApplyCrackFreePolicy    Flags = 1 << 4

	All = MergeSurfaces | CreateOneNodePerSurface | UniformizeSize | ApplyCrackFreePolicy
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{MergeSurfaces, "merge"},
	{CreateOneNodePerSurface, "node-per-surface"},
	{UniformizeSize, "uniformize"},
	{ApplyCrackFreePolicy, "crack-free"},
}

// Has reports whether every bit of flag is set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// String returns the comma-separated flag names, "none" or "all".
func (f Flags) String() string {
	switch f {
	case None:
		return "none"
	case All:
		return "all"
	}
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseFlags parses the form produced by Flags.String.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch part {
		case "", "none":
			continue
		case "all":
			f |= All
			continue
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == part {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return None, fmt.Errorf("unknown partition flag %q", part)
		}
	}
	return f, nil
}

// Default budgets keep local indices addressable with 16 bits.
const (
	DefaultMaxNumTrianglesPerNode = 21845
	DefaultMaxNumIndicesPerNode   = 65535
)

// SurfaceIndexer decides which surfaces may be merged before partitioning.
// Surfaces with different hashes are never compared with Equal.
type SurfaceIndexer struct {
	Hash  func(s *scene.Surface) uint64
	Equal func(a, b *scene.Surface) bool
}

// DefaultSurfaceIndexer groups surfaces with an identical vertex layout and the same material.
func DefaultSurfaceIndexer() SurfaceIndexer {
	return SurfaceIndexer{
		Hash: func(s *scene.Surface) uint64 {
			d := xxhash.New()
			if s.Geometry != nil {
				_, _ = d.WriteString(s.Geometry.Layout.Signature())
			}
			_, _ = d.WriteString("|")
			if s.Material != nil {
				_, _ = d.WriteString(s.Material.Name)
			}
			return d.Sum64()
		},
		Equal: func(a, b *scene.Surface) bool {
			if a.Material != b.Material || a.Geometry == nil || b.Geometry == nil {
				return false
			}
			return a.Geometry.Layout.Equal(b.Geometry.Layout)
		},
	}
}

// Options configures a partitioner. They are fixed for the lifetime of a Partitioner.
type Options struct {
	Flags                  Flags
	MaxNumTrianglesPerNode int
	MaxNumIndicesPerNode   int

	// PartitionMaxSizeFunction bounds the world-space extent of any emitted partition.
	PartitionMaxSizeFunction func(root *scene.Node) vmath.Vec3

	// WorldBoundsFunction returns the world-space box partitions are aligned to.
	WorldBoundsFunction func(root *scene.Node) vmath.Box

	// NodeFilterFunction selects which nodes carrying surfaces are partitioned.
	NodeFilterFunction func(n *scene.Node) bool

	SurfaceIndexer SurfaceIndexer
}

// DefaultOptions returns options with crack-free stitching and the default budgets.
func DefaultOptions() Options {
	return Options{
		Flags:                  ApplyCrackFreePolicy,
		MaxNumTrianglesPerNode: DefaultMaxNumTrianglesPerNode,
		MaxNumIndicesPerNode:   DefaultMaxNumIndicesPerNode,
	}.withDefaults()
}

// withDefaults fills every unset budget and policy.
func (o Options) withDefaults() Options {
	if o.MaxNumTrianglesPerNode <= 0 {
		o.MaxNumTrianglesPerNode = DefaultMaxNumTrianglesPerNode
	}
	if o.MaxNumIndicesPerNode <= 0 {
		o.MaxNumIndicesPerNode = DefaultMaxNumIndicesPerNode
	}
	if o.WorldBoundsFunction == nil {
		o.WorldBoundsFunction = func(root *scene.Node) vmath.Box {
			return root.WorldBox()
		}
	}
	if o.PartitionMaxSizeFunction == nil {
		o.PartitionMaxSizeFunction = densityMaxSize(o.MaxNumTrianglesPerNode, o.WorldBoundsFunction)
	}
	if o.NodeFilterFunction == nil {
		o.NodeFilterFunction = func(*scene.Node) bool { return true }
	}
	if o.SurfaceIndexer.Hash == nil || o.SurfaceIndexer.Equal == nil {
		o.SurfaceIndexer = DefaultSurfaceIndexer()
	}
	return o
}

// densityMaxSize sizes partitions so that a uniformly dense subtree splits into cubic cells
// holding about maxTriangles each.
func densityMaxSize(maxTriangles int, bounds func(*scene.Node) vmath.Box) func(*scene.Node) vmath.Vec3 {
	return func(root *scene.Node) vmath.Vec3 {
		inf := float32(math.Inf(1))
		unbounded := vmath.Vec3{X: inf, Y: inf, Z: inf}

		extent := bounds(root).Size().MaxComponent()
		if extent <= 0 {
			return unbounded
		}

		triangles := 0
		root.Walk(func(n *scene.Node) bool {
			for _, s := range n.Surfaces() {
				if s.Geometry != nil {
					triangles += s.Geometry.NumTriangles()
				}
			}
			return true
		})

		cells := math.Ceil(float64(triangles) / float64(maxTriangles))
		perAxis := math.Floor(math.Cbrt(cells))
		if perAxis <= 1 {
			return unbounded
		}
		size := extent / float32(perAxis)
		return vmath.Vec3{X: size, Y: size, Z: size}
	}
}
