package streaming

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshstream/pkg/geometry"
	vmath "github.com/Faultbox/meshstream/pkg/math"
)

func testGeometry() *geometry.Geometry {
	g := geometry.GeneratePlane(geometry.PlaneConfig{
		Name:      "tile",
		Width:     2,
		Height:    2,
		SegmentsX: 3,
		SegmentsY: 2,
		Origin:    vmath.Vec3{Z: 1},
	})
	g.ProtectedVertices = []uint32{0, 3, 11}
	return g
}

func TestGeometryRoundTrip(t *testing.T) {
	g := testGeometry()

	header, payload, err := EncodeGeometry(g)
	require.NoError(t, err)

	h, err := DecodeGeometryHeader(header)
	require.NoError(t, err)
	require.Equal(t, "tile", h.Name)
	require.Equal(t, 2, h.IndexWidth)
	require.Equal(t, 12, h.VertexCount)
	require.Equal(t, 36, h.IndexCount)
	require.Equal(t, 3, h.ProtectedCount)
	require.Equal(t, len(payload), h.PayloadSize())
	require.True(t, h.Layout.Equal(g.Layout))

	decoded, err := DecodeGeometry(header, payload)
	require.NoError(t, err)
	require.Equal(t, g.Name, decoded.Name)
	require.Equal(t, g.Vertices, decoded.Vertices)
	require.Equal(t, g.Indices, decoded.Indices)
	require.Equal(t, g.ProtectedVertices, decoded.ProtectedVertices)
}

func TestGeometryWideIndices(t *testing.T) {
	layout := geometry.NewLayout(geometry.Attribute{Name: geometry.AttrPosition, Size: 3})
	n := 70000
	g := &geometry.Geometry{
		Layout:   layout,
		Vertices: make([]float32, 3*n),
		Indices:  []uint32{0, 1, uint32(n - 1)},
	}

	header, payload, err := EncodeGeometry(g)
	require.NoError(t, err)

	h, err := DecodeGeometryHeader(header)
	require.NoError(t, err)
	require.Equal(t, 4, h.IndexWidth)

	decoded, err := DecodeGeometry(header, payload)
	require.NoError(t, err)
	require.Equal(t, g.Indices, decoded.Indices)
	require.Nil(t, decoded.ProtectedVertices)
}

func TestDecodeGeometryRejectsCorruption(t *testing.T) {
	header, payload, err := EncodeGeometry(testGeometry())
	require.NoError(t, err)

	_, err = DecodeGeometry(header[:len(header)-1], payload)
	require.ErrorIs(t, err, ErrMalformedGeometry)

	_, err = DecodeGeometry(header, payload[:len(payload)-2])
	require.ErrorIs(t, err, ErrMalformedGeometry)

	bad := append([]byte{99}, header[1:]...)
	_, err = DecodeGeometryHeader(bad)
	require.ErrorIs(t, err, ErrMalformedGeometry)

	// An index pointing past the vertex buffer.
	corrupt := append([]byte(nil), payload...)
	at := 4 * 12 * 8
	corrupt[at], corrupt[at+1] = 0xff, 0x00
	_, err = DecodeGeometry(header, corrupt)
	require.ErrorIs(t, err, ErrMalformedGeometry)
	require.ErrorIs(t, err, geometry.ErrIndexOutOfRange)
}

func TestEncodeGeometryValidates(t *testing.T) {
	g := testGeometry()
	g.Indices = g.Indices[:len(g.Indices)-1]
	_, _, err := EncodeGeometry(g)
	require.ErrorIs(t, err, geometry.ErrIndexCount)
}
