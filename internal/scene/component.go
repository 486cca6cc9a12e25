package scene

import (
	"fmt"

	"github.com/Faultbox/meshstream/pkg/geometry"
	"github.com/Faultbox/meshstream/pkg/math"
)

// ComponentKind is the closed set of component types a node can carry.
type ComponentKind int

// Component kinds.
const (
	KindTransform ComponentKind = iota
	KindSurface
	KindBoundingBox
)

// String returns the kind name.
func (k ComponentKind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindSurface:
		return "surface"
	case KindBoundingBox:
		return "bounding_box"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Component is anything attached to a node.
type Component interface {
	Kind() ComponentKind
}

// targetAware components are told when they are attached to or detached from a node.
type targetAware interface {
	targetAdded(n *Node)
	targetRemoved(n *Node)
}

// componentListener components observe sibling components being added or removed,
// and transform changes anywhere above them.
type componentListener interface {
	componentChanged(kind ComponentKind)
}

// Material is the shading reference a surface carries through partitioning untouched.
type Material struct {
	Name string
}

// Surface binds a geometry to a material.
type Surface struct {
	Name     string
	Geometry *geometry.Geometry
	Material *Material
}

// NewSurface creates a surface.
func NewSurface(name string, geom *geometry.Geometry, mat *Material) *Surface {
	return &Surface{Name: name, Geometry: geom, Material: mat}
}

// Kind implements Component.
func (s *Surface) Kind() ComponentKind { return KindSurface }

// Transform holds a node's local-to-parent matrix.
type Transform struct {
	matrix math.Mat4
	target *Node
}

// NewTransform creates a transform component.
func NewTransform(m math.Mat4) *Transform {
	return &Transform{matrix: m}
}

// Kind implements Component.
func (t *Transform) Kind() ComponentKind { return KindTransform }

// Matrix returns the local matrix.
func (t *Transform) Matrix() math.Mat4 { return t.matrix }

// SetMatrix replaces the local matrix and invalidates world-space state below the target.
func (t *Transform) SetMatrix(m math.Mat4) {
	t.matrix = m
	if t.target == nil {
		return
	}
	t.target.transformChanged()
}

func (t *Transform) targetAdded(n *Node) {
	if t.target != nil && t.target != n {
		panic(fmt.Sprintf("scene: transform already attached to %q, cannot attach to %q", t.target.Name, n.Name))
	}
	t.target = n
}

func (t *Transform) targetRemoved(*Node) {
	t.target = nil
}
