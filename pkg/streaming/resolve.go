package streaming

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/meshstream/internal/logger"
)

// SceneHeaderSize is the size of the fixed header every linked file starts with.
// A big-endian uint16 holding the asset header size follows it.
const SceneHeaderSize = 16

const headerSizeFieldSize = 2

// ErrResolutionFailed is returned when the header of a chunk cannot be produced.
var ErrResolutionFailed = errors.New("header resolution failed")

// Fetcher reads byte ranges of linked assets. Offsets are relative to asset.Offset.
// Fetch blocks until the bytes are available; cancellation is left to ctx.
type Fetcher interface {
	Fetch(ctx context.Context, asset *LinkedAsset, offset, length int64) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, asset *LinkedAsset, offset, length int64) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, asset *LinkedAsset, offset, length int64) ([]byte, error) {
	return f(ctx, asset, offset, length)
}

// Resolved is the outcome of a successful ResolveHeader.
type Resolved struct {
	Header []byte

	// Inline is the chunk content following the embedded header. It is nil for linked chunks.
	Inline []byte

	// Linked is a copy of the referenced asset with its offset moved to the payload.
	// It is nil for inline chunks.
	Linked *LinkedAsset
}

// ResolveHeader returns the header of a chunk. Inline headers are sliced from content.
// Otherwise content names a linked asset in deps whose header is fetched in two steps:
// a probe of SceneHeaderSize+2 bytes reveals the header size, then the header is
// fetched in full. Any failure wraps ErrResolutionFailed and no header is returned.
func ResolveHeader(ctx context.Context, meta Metadata, content []byte, deps *Dependencies, fetcher Fetcher) (*Resolved, error) {
	if meta.HasHeader() {
		size := meta.HeaderSize()
		if len(content) < size {
			instrumentResolution(outcomeFailed)
			return nil, fmt.Errorf("%w: inline header of %d bytes in %d bytes of content",
				ErrResolutionFailed, size, len(content))
		}
		instrumentResolution(outcomeInline)
		return &Resolved{Header: content[:size], Inline: content[size:]}, nil
	}

	r, err := resolveLink(ctx, content, deps, fetcher)
	if err != nil {
		instrumentResolution(outcomeFailed)
		logger.Debug("linked header resolution failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	instrumentResolution(outcomeLinked)
	return r, nil
}

func resolveLink(ctx context.Context, content []byte, deps *Dependencies, fetcher Fetcher) (*Resolved, error) {
	if deps == nil || fetcher == nil {
		return nil, errors.New("no dependency table or fetcher for linked chunk")
	}
	id, err := DecodeLinkID(content)
	if err != nil {
		return nil, err
	}
	asset, err := deps.LinkedAsset(id)
	if err != nil {
		return nil, err
	}

	probeSize := int64(SceneHeaderSize + headerSizeFieldSize)
	probe, err := fetcher.Fetch(ctx, asset, 0, probeSize)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", asset.Filename, err)
	}
	if int64(len(probe)) < probeSize {
		return nil, fmt.Errorf("probing %s: short read of %d bytes", asset.Filename, len(probe))
	}
	size := int64(binary.BigEndian.Uint16(probe[SceneHeaderSize:]))

	full, err := fetcher.Fetch(ctx, asset, 0, probeSize+size)
	if err != nil {
		return nil, fmt.Errorf("fetching header of %s: %w", asset.Filename, err)
	}
	if int64(len(full)) < probeSize+size {
		return nil, fmt.Errorf("fetching header of %s: short read of %d bytes", asset.Filename, len(full))
	}

	linked := *asset
	linked.Offset += probeSize + size
	return &Resolved{
		Header: full[probeSize : probeSize+size],
		Linked: &linked,
	}, nil
}

// ReadPayload returns the bytes following the header of a resolved chunk.
func (r *Resolved) ReadPayload(ctx context.Context, fetcher Fetcher) ([]byte, error) {
	if r.Linked == nil {
		return r.Inline, nil
	}
	if fetcher == nil {
		return nil, errors.New("no fetcher for linked payload")
	}
	data, err := fetcher.Fetch(ctx, r.Linked, 0, r.Linked.Length)
	if err != nil {
		return nil, fmt.Errorf("fetching payload of %s: %w", r.Linked.Filename, err)
	}
	return data, nil
}
