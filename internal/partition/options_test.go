package partition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshstream/internal/scene"
	"github.com/Faultbox/meshstream/pkg/geometry"
	vmath "github.com/Faultbox/meshstream/pkg/math"
)

func TestFlagBits(t *testing.T) {
	assert.Equal(t, Flags(0), None)
	assert.Equal(t, Flags(1), MergeSurfaces)
	assert.Equal(t, Flags(2), CreateOneNodePerSurface)
	assert.Equal(t, Flags(8), UniformizeSize)
	assert.Equal(t, Flags(16), ApplyCrackFreePolicy)
	assert.Equal(t, Flags(27), All)
}

func TestFlagsStringAndParse(t *testing.T) {
	tests := []struct {
		flags Flags
		text  string
	}{
		{None, "none"},
		{All, "all"},
		{ApplyCrackFreePolicy, "crack-free"},
		{MergeSurfaces | UniformizeSize, "merge,uniformize"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.flags.String())
			parsed, err := ParseFlags(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.flags, parsed)
		})
	}

	f, err := ParseFlags(" Merge , crack-free,")
	require.NoError(t, err)
	assert.Equal(t, MergeSurfaces|ApplyCrackFreePolicy, f)

	_, err = ParseFlags("merge,explode")
	assert.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, ApplyCrackFreePolicy, opts.Flags)
	assert.Equal(t, 21845, opts.MaxNumTrianglesPerNode)
	assert.Equal(t, 65535, opts.MaxNumIndicesPerNode)
	assert.True(t, opts.NodeFilterFunction(scene.NewNode("any")))

	p := New(Options{MaxNumTrianglesPerNode: 10})
	assert.Equal(t, 10, p.Options().MaxNumTrianglesPerNode)
	assert.Equal(t, DefaultMaxNumIndicesPerNode, p.Options().MaxNumIndicesPerNode)
	assert.Equal(t, None, p.Options().Flags)
}

func TestDensityMaxSize(t *testing.T) {
	root := scene.NewNode("root")
	root.AddComponent(scene.NewSurface("s", plane(10, 10, 20, 20, 0), nil))

	bounds := func(*scene.Node) vmath.Box {
		return vmath.Box{Max: vmath.Vec3{X: 12, Y: 12, Z: 12}}
	}

	// 800 triangles in cells of 100 make 8 cells, two per axis.
	size := densityMaxSize(100, bounds)(root)
	assert.Equal(t, vmath.Vec3{X: 6, Y: 6, Z: 6}, size)

	size = densityMaxSize(800, bounds)(root)
	assert.True(t, math.IsInf(float64(size.X), 1))

	flat := func(*scene.Node) vmath.Box { return vmath.Box{} }
	size = densityMaxSize(1, flat)(root)
	assert.True(t, math.IsInf(float64(size.Y), 1))
}

func TestMergeSurfaces(t *testing.T) {
	stone := &scene.Material{Name: "stone"}
	grass := &scene.Material{Name: "grass"}

	a := scene.NewSurface("a", plane(1, 1, 1, 1, 0), stone)
	b := scene.NewSurface("b", plane(1, 1, 1, 1, 1), grass)
	c := scene.NewSurface("c", plane(1, 1, 1, 1, 2), stone)
	d := scene.NewSurface("d", triangleGeometry(), stone)

	groups := mergeSurfaces([]*scene.Surface{a, b, c, d}, DefaultSurfaceIndexer())
	require.Len(t, groups, 3)
	assert.Equal(t, []*scene.Surface{a, c}, groups[0])
	assert.Equal(t, []*scene.Surface{b}, groups[1])
	assert.Equal(t, []*scene.Surface{d}, groups[2])

	singles := singletonGroups([]*scene.Surface{a, b})
	assert.Equal(t, [][]*scene.Surface{{a}, {b}}, singles)
}

func TestCustomSurfaceIndexer(t *testing.T) {
	byLayout := SurfaceIndexer{
		Hash: func(s *scene.Surface) uint64 { return uint64(s.Geometry.Layout.VertexSize) },
		Equal: func(a, b *scene.Surface) bool {
			return a.Geometry.Layout.Equal(b.Geometry.Layout)
		},
	}
	a := scene.NewSurface("a", plane(1, 1, 1, 1, 0), &scene.Material{Name: "x"})
	b := scene.NewSurface("b", plane(1, 1, 1, 1, 0), &scene.Material{Name: "y"})
	c := scene.NewSurface("c", &geometry.Geometry{Layout: positionOnly}, nil)

	groups := mergeSurfaces([]*scene.Surface{a, b, c}, byLayout)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
}
