package streaming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTrip(t *testing.T) {
	types := []AssetType{UnknownAsset, GeometryAsset, TextureAsset, 7, 0xffff}
	for _, hasHeader := range []bool{false, true} {
		for _, assetType := range types {
			for size := 0; size <= MaxInlineHeaderSize; size++ {
				m, err := EncodeMetadata(hasHeader, size, assetType)
				require.NoError(t, err)

				h, s, a := m.Decode()
				require.Equal(t, hasHeader, h)
				require.Equal(t, size, s)
				require.Equal(t, assetType, a)
				require.Zero(t, uint32(m)&0x70000000, "reserved bits set")
			}
		}
	}
}

func TestMetadataBitLayout(t *testing.T) {
	m, err := EncodeMetadata(true, 1, 7)
	require.NoError(t, err)
	require.Equal(t, Metadata(0x80010007), m)

	// Bits 16-27 hold the header size, so 0x10 there is 16 bytes.
	h, s, a := Metadata(0x80100007).Decode()
	require.True(t, h)
	require.Equal(t, 16, s)
	require.Equal(t, AssetType(7), a)
	require.Equal(t, 16, Metadata(0x80100007).HeaderSize())

	h, s, a = Metadata(0x0fff0001).Decode()
	require.False(t, h)
	require.Equal(t, MaxInlineHeaderSize, s)
	require.Equal(t, GeometryAsset, a)
}

func TestEncodeMetadataRejectsOversizedHeader(t *testing.T) {
	_, err := EncodeMetadata(true, MaxInlineHeaderSize+1, GeometryAsset)
	require.ErrorIs(t, err, ErrHeaderTooLarge)

	_, err = EncodeMetadata(true, -1, GeometryAsset)
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestMetadataString(t *testing.T) {
	m, _ := EncodeMetadata(true, 42, GeometryAsset)
	require.Equal(t, "geometry inline header=42", m.String())

	m, _ = EncodeMetadata(false, 0, TextureAsset)
	require.Equal(t, "texture linked", m.String())
	require.Equal(t, "asset(9)", AssetType(9).String())
}

func TestLinkID(t *testing.T) {
	for _, id := range []int16{0, 1, 255, 256, -1, 32767, -32768} {
		content := EncodeLinkID(id)
		require.Len(t, content, 2)
		got, err := DecodeLinkID(content)
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
	require.Equal(t, []byte{0x01, 0x02}, EncodeLinkID(0x0102))

	_, err := DecodeLinkID([]byte{1})
	require.ErrorIs(t, err, ErrMalformedLink)
}

func TestDependencies(t *testing.T) {
	deps := NewDependencies()
	a := &LinkedAsset{Filename: "a.msa", LinkType: LinkExternal}
	b := &LinkedAsset{Filename: "b.msa", LinkType: LinkExternal}

	idA, err := deps.Register(a)
	require.NoError(t, err)
	idB, err := deps.Register(b)
	require.NoError(t, err)
	require.Equal(t, int16(0), idA)
	require.Equal(t, int16(1), idB)

	got, err := deps.LinkedAsset(idB)
	require.NoError(t, err)
	require.Same(t, b, got)

	_, err = deps.LinkedAsset(2)
	require.ErrorIs(t, err, ErrUnknownLinkedAsset)
	_, err = deps.LinkedAsset(-1)
	require.ErrorIs(t, err, ErrUnknownLinkedAsset)

	require.Equal(t, []*LinkedAsset{a, b}, deps.LinkedAssets())
	require.Equal(t, 2, deps.Len())
}
