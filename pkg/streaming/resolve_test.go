package streaming

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errFetch = errors.New("network unreachable")

// memoryFetcher serves linked assets from memory and fails the call numbered failAt.
type memoryFetcher struct {
	files  map[string][]byte
	calls  [][2]int64
	failAt int
}

func (m *memoryFetcher) Fetch(_ context.Context, asset *LinkedAsset, offset, length int64) ([]byte, error) {
	m.calls = append(m.calls, [2]int64{asset.Offset + offset, length})
	if len(m.calls) == m.failAt {
		return nil, errFetch
	}
	data := m.files[asset.Filename]
	start := asset.Offset + offset
	if start+length > int64(len(data)) {
		return data[start:], nil
	}
	return data[start : start+length], nil
}

func linkedChunk(t *testing.T, header, payload []byte) (*Dependencies, []byte, *memoryFetcher) {
	t.Helper()
	deps := NewDependencies()
	_, err := deps.Register(&LinkedAsset{Filename: "pad.msa", LinkType: LinkExternal})
	require.NoError(t, err)
	id, err := deps.Register(&LinkedAsset{
		Filename: "chunk.msa",
		LinkType: LinkExternal,
		Length:   int64(len(payload)),
	})
	require.NoError(t, err)

	fetcher := &memoryFetcher{files: map[string][]byte{
		"chunk.msa": encodeLinked(GeometryAsset, header, payload),
	}}
	return deps, EncodeLinkID(id), fetcher
}

func TestResolveInlineHeader(t *testing.T) {
	meta, err := EncodeMetadata(true, 3, GeometryAsset)
	require.NoError(t, err)

	r, err := ResolveHeader(context.Background(), meta, []byte{1, 2, 3, 4, 5}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, r.Header)
	require.Equal(t, []byte{4, 5}, r.Inline)
	require.Nil(t, r.Linked)

	payload, err := r.ReadPayload(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5}, payload)

	_, err = ResolveHeader(context.Background(), meta, []byte{1}, nil, nil)
	require.ErrorIs(t, err, ErrResolutionFailed)
}

func TestResolveLinkedHeader(t *testing.T) {
	header := []byte("known header bytes")
	payload := []byte{9, 8, 7, 6}
	deps, content, fetcher := linkedChunk(t, header, payload)
	meta, _ := EncodeMetadata(false, 0, GeometryAsset)

	r, err := ResolveHeader(context.Background(), meta, content, deps, fetcher)
	require.NoError(t, err)
	require.Equal(t, header, r.Header)

	probe := int64(SceneHeaderSize + 2)
	require.Equal(t, [][2]int64{{0, probe}, {0, probe + int64(len(header))}}, fetcher.calls)

	require.NotNil(t, r.Linked)
	require.Equal(t, probe+int64(len(header)), r.Linked.Offset)

	original, err := deps.LinkedAsset(1)
	require.NoError(t, err)
	require.Zero(t, original.Offset, "the dependency table must not move")

	got, err := r.ReadPayload(context.Background(), fetcher)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestResolveLinkedEmptyHeader(t *testing.T) {
	deps, content, fetcher := linkedChunk(t, nil, []byte{1})
	meta, _ := EncodeMetadata(false, 0, GeometryAsset)

	r, err := ResolveHeader(context.Background(), meta, content, deps, fetcher)
	require.NoError(t, err)
	require.Empty(t, r.Header)
	require.Equal(t, int64(SceneHeaderSize+2), r.Linked.Offset)
}

func TestResolveLinkedFailures(t *testing.T) {
	meta, _ := EncodeMetadata(false, 0, GeometryAsset)

	t.Run("probe fetch fails", func(t *testing.T) {
		deps, content, fetcher := linkedChunk(t, []byte("header"), nil)
		fetcher.failAt = 1

		r, err := ResolveHeader(context.Background(), meta, content, deps, fetcher)
		require.ErrorIs(t, err, ErrResolutionFailed)
		require.ErrorIs(t, err, errFetch)
		require.Nil(t, r)
		require.Len(t, fetcher.calls, 1)
	})

	t.Run("header fetch fails", func(t *testing.T) {
		deps, content, fetcher := linkedChunk(t, []byte("header"), nil)
		fetcher.failAt = 2

		r, err := ResolveHeader(context.Background(), meta, content, deps, fetcher)
		require.ErrorIs(t, err, ErrResolutionFailed)
		require.Nil(t, r)
		require.Len(t, fetcher.calls, 2)
	})

	t.Run("short probe", func(t *testing.T) {
		deps, content, fetcher := linkedChunk(t, nil, nil)
		fetcher.files["chunk.msa"] = fetcher.files["chunk.msa"][:SceneHeaderSize]

		_, err := ResolveHeader(context.Background(), meta, content, deps, fetcher)
		require.ErrorIs(t, err, ErrResolutionFailed)
	})

	t.Run("truncated header", func(t *testing.T) {
		deps, content, fetcher := linkedChunk(t, []byte("header"), nil)
		fetcher.files["chunk.msa"] = fetcher.files["chunk.msa"][:SceneHeaderSize+4]

		_, err := ResolveHeader(context.Background(), meta, content, deps, fetcher)
		require.ErrorIs(t, err, ErrResolutionFailed)
	})

	t.Run("unknown id", func(t *testing.T) {
		deps, _, fetcher := linkedChunk(t, nil, nil)

		_, err := ResolveHeader(context.Background(), meta, EncodeLinkID(42), deps, fetcher)
		require.ErrorIs(t, err, ErrResolutionFailed)
		require.ErrorIs(t, err, ErrUnknownLinkedAsset)
		require.Empty(t, fetcher.calls)
	})

	t.Run("malformed content", func(t *testing.T) {
		deps, _, fetcher := linkedChunk(t, nil, nil)

		_, err := ResolveHeader(context.Background(), meta, []byte{0, 1, 2}, deps, fetcher)
		require.ErrorIs(t, err, ErrMalformedLink)
	})

	t.Run("no fetcher", func(t *testing.T) {
		deps, content, _ := linkedChunk(t, nil, nil)

		_, err := ResolveHeader(context.Background(), meta, content, deps, nil)
		require.ErrorIs(t, err, ErrResolutionFailed)
	})
}

func TestFetcherFunc(t *testing.T) {
	var f Fetcher = FetcherFunc(func(_ context.Context, a *LinkedAsset, offset, length int64) ([]byte, error) {
		return []byte(a.Filename)[offset : offset+length], nil
	})
	data, err := f.Fetch(context.Background(), &LinkedAsset{Filename: "abcdef"}, 1, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("bcd"), data)
}
