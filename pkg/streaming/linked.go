package streaming

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// LinkType tells where the bytes of a linked asset live.
type LinkType uint8

const (
	// LinkInternal assets are stored inside the document itself.
	LinkInternal LinkType = iota
	// LinkExternal assets are stored in a separate file next to the document.
	LinkExternal
)

func (t LinkType) String() string {
	if t == LinkExternal {
		return "external"
	}
	return "internal"
}

// LinkedAsset is a separately fetchable byte range referenced by id from chunk content.
type LinkedAsset struct {
	Filename string
	LinkType LinkType

	// Offset is where reads of this asset start. Resolving a header moves it past the
	// header so later reads land on the payload.
	Offset int64

	// Length is the payload size in bytes.
	Length int64
}

// Linked-asset errors.
var (
	ErrMalformedLink       = errors.New("malformed linked asset reference")
	ErrUnknownLinkedAsset  = errors.New("unknown linked asset")
	ErrTooManyDependencies = errors.New("too many linked assets")
)

// linkIDSize is the size of chunk content that refers to a linked asset.
const linkIDSize = 2

// EncodeLinkID returns the chunk content referring to linked asset id.
func EncodeLinkID(id int16) []byte {
	buf := make([]byte, linkIDSize)
	binary.BigEndian.PutUint16(buf, uint16(id))
	return buf
}

// DecodeLinkID reads the linked asset id from chunk content.
func DecodeLinkID(content []byte) (int16, error) {
	if len(content) != linkIDSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedLink, len(content))
	}
	return int16(binary.BigEndian.Uint16(content)), nil
}

// Dependencies is the per-document table of linked assets.
type Dependencies struct {
	mu     sync.RWMutex
	linked []*LinkedAsset
}

// NewDependencies creates an empty table.
func NewDependencies() *Dependencies {
	return &Dependencies{}
}

// Register adds a linked asset and returns its id.
func (d *Dependencies) Register(a *LinkedAsset) (int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.linked) > math.MaxInt16 {
		return 0, ErrTooManyDependencies
	}
	d.linked = append(d.linked, a)
	return int16(len(d.linked) - 1), nil
}

// LinkedAsset looks up a linked asset by id.
func (d *Dependencies) LinkedAsset(id int16) (*LinkedAsset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id < 0 || int(id) >= len(d.linked) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownLinkedAsset, id)
	}
	return d.linked[id], nil
}

// LinkedAssets returns every registered asset in id order.
func (d *Dependencies) LinkedAssets() []*LinkedAsset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*LinkedAsset(nil), d.linked...)
}

// Len returns the number of registered assets.
func (d *Dependencies) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.linked)
}
