package scene

import (
	"fmt"

	"github.com/Faultbox/meshstream/pkg/math"
)

// BoundingBox caches the model-space and world-space boxes of its target's surfaces.
// Adding or removing a surface invalidates both; a transform change invalidates the world box.
type BoundingBox struct {
	target *Node
	fixed  bool

	box        math.Box
	worldBox   math.Box
	boxValid   bool
	worldValid bool
}

// NewBoundingBox creates a box computed from the target's surfaces.
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{}
}

// NewFixedBoundingBox creates a box that ignores surfaces and always reports box in model space.
func NewFixedBoundingBox(box math.Box) *BoundingBox {
	return &BoundingBox{fixed: true, box: box, boxValid: true}
}

// Kind implements Component.
func (b *BoundingBox) Kind() ComponentKind { return KindBoundingBox }

// Box returns the model-space box.
func (b *BoundingBox) Box() math.Box {
	if !b.boxValid {
		b.box = b.computeBox()
		b.boxValid = true
	}
	return b.box
}

// WorldBox returns the box of the eight model-space corners transformed to world space.
func (b *BoundingBox) WorldBox() math.Box {
	if !b.worldValid {
		m := math.Identity()
		if b.target != nil {
			m = b.target.ModelToWorld()
		}
		b.worldBox = b.Box().Transform(m)
		b.worldValid = true
	}
	return b.worldBox
}

// Invalidate forces both boxes to be recomputed on next access.
func (b *BoundingBox) Invalidate() {
	if !b.fixed {
		b.boxValid = false
	}
	b.worldValid = false
}

func (b *BoundingBox) computeBox() math.Box {
	if b.target == nil {
		return math.Box{}
	}
	box := math.EmptyBox()
	for _, s := range b.target.Surfaces() {
		if s.Geometry == nil {
			continue
		}
		sb, ok := s.Geometry.Bounds()
		if !ok {
			return math.Box{}
		}
		box = box.Union(sb)
	}
	if box.IsEmpty() {
		return math.Box{}
	}
	return box
}

func (b *BoundingBox) targetAdded(n *Node) {
	if b.target != nil && b.target != n {
		panic(fmt.Sprintf("scene: bounding box already attached to %q, cannot attach to %q", b.target.Name, n.Name))
	}
	b.target = n
	b.Invalidate()
}

func (b *BoundingBox) targetRemoved(*Node) {
	b.target = nil
	b.Invalidate()
}

func (b *BoundingBox) componentChanged(kind ComponentKind) {
	switch kind {
	case KindSurface:
		b.Invalidate()
	case KindTransform:
		b.worldValid = false
	}
}
