// Package streaming encodes partitioned geometries as independently streamable chunks
// and resolves their headers at load time, whether embedded inline or stored in an
// externally linked file.
package streaming

import (
	"errors"
	"fmt"
)

// AssetType enumerates the kinds of streamed assets.
type AssetType uint16

// Streamed asset kinds.
const (
	UnknownAsset AssetType = iota
	GeometryAsset
	TextureAsset
)

func (t AssetType) String() string {
	switch t {
	case GeometryAsset:
		return "geometry"
	case TextureAsset:
		return "texture"
	default:
		return fmt.Sprintf("asset(%d)", uint16(t))
	}
}

// MaxInlineHeaderSize is the largest header the metadata word can describe.
const MaxInlineHeaderSize = 0x0fff

const (
	hasHeaderBit    = 1 << 31
	headerSizeShift = 16
	headerSizeMask  = 0x0fff
	assetTypeMask   = 0xffff
)

// ErrHeaderTooLarge is returned when a header does not fit the field meant to describe it.
var ErrHeaderTooLarge = errors.New("header too large")

// Metadata is the 32-bit word stored next to every streamed chunk.
//
//	bit 31      hasHeader: the header is embedded in the chunk content
//	bits 16-27  headerSize: size of the embedded header in bytes
//	bits 0-15   assetType
//
// Bits 28-30 are reserved and always zero.
type Metadata uint32

// EncodeMetadata packs the metadata word. headerSize must be in [0, MaxInlineHeaderSize].
func EncodeMetadata(hasHeader bool, headerSize int, assetType AssetType) (Metadata, error) {
	if headerSize < 0 || headerSize > MaxInlineHeaderSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	m := Metadata(uint32(headerSize)<<headerSizeShift | uint32(assetType))
	if hasHeader {
		m |= hasHeaderBit
	}
	return m, nil
}

// Decode unpacks the three fields of the word.
func (m Metadata) Decode() (hasHeader bool, headerSize int, assetType AssetType) {
	return m.HasHeader(), m.HeaderSize(), m.AssetType()
}

// HasHeader reports whether the chunk content starts with its header.
func (m Metadata) HasHeader() bool {
	return m&hasHeaderBit != 0
}

// HeaderSize is only meaningful when HasHeader is true. It is read from bits 16-27
// as laid out above, so 0x80100007 carries a 16-byte header.
func (m Metadata) HeaderSize() int {
	return int(uint32(m)>>headerSizeShift) & headerSizeMask
}

func (m Metadata) AssetType() AssetType {
	return AssetType(uint32(m) & assetTypeMask)
}

func (m Metadata) String() string {
	if !m.HasHeader() {
		return fmt.Sprintf("%s linked", m.AssetType())
	}
	return fmt.Sprintf("%s inline header=%d", m.AssetType(), m.HeaderSize())
}
