package math

import "math"

// Box is an axis-aligned bounding box.
// The zero value is a degenerate box at the origin; use EmptyBox to start an accumulation.
type Box struct {
	Min, Max Vec3
}

// EmptyBox returns an inverted box that any Extend call will replace.
func EmptyBox() Box {
	inf := float32(math.Inf(1))
	return Box{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// IsEmpty reports whether the box has not been extended by any point.
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend grows the box to include p.
func (b Box) Extend(p Vec3) Box {
	return Box{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(other Box) Box {
	if other.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return other
	}
	return Box{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Size returns the box extent on each axis.
func (b Box) Size() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Center returns the box midpoint.
func (b Box) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Corners returns the eight box corners, indexed with bit 0 = x, bit 1 = y, bit 2 = z.
func (b Box) Corners() [8]Vec3 {
	var out [8]Vec3
	for i := range out {
		c := b.Min
		if i&1 != 0 {
			c.X = b.Max.X
		}
		if i&2 != 0 {
			c.Y = b.Max.Y
		}
		if i&4 != 0 {
			c.Z = b.Max.Z
		}
		out[i] = c
	}
	return out
}

// Transform returns the axis-aligned box enclosing all corners of b transformed by m.
func (b Box) Transform(m Mat4) Box {
	if b.IsEmpty() {
		return b
	}
	out := EmptyBox()
	for _, c := range b.Corners() {
		out = out.Extend(m.TransformVec3(c))
	}
	return out
}
