// Package scene is the minimal scene graph the partitioner works on: nodes carrying
// transform, surface and bounding box components.
package scene

import "github.com/Faultbox/meshstream/pkg/math"

// Node is a scene graph node. The parent owns its children.
type Node struct {
	Name string

	parent     *Node
	children   []*Node
	components []Component
}

// NewNode creates a detached node.
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the direct children. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// AddChild attaches child, detaching it from any previous parent.
func (n *Node) AddChild(child *Node) *Node {
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = n
	n.children = append(n.children, child)
	child.transformChanged()
	return n
}

// RemoveChild detaches child. It reports whether child was found.
func (n *Node) RemoveChild(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// AddComponent attaches c and notifies the other components.
func (n *Node) AddComponent(c Component) *Node {
	n.components = append(n.components, c)
	if ta, ok := c.(targetAware); ok {
		ta.targetAdded(n)
	}
	n.notify(c)
	return n
}

// RemoveComponent detaches c. It reports whether c was found.
func (n *Node) RemoveComponent(c Component) bool {
	for i, existing := range n.components {
		if existing != c {
			continue
		}
		n.components = append(n.components[:i], n.components[i+1:]...)
		if ta, ok := c.(targetAware); ok {
			ta.targetRemoved(n)
		}
		n.notify(c)
		return true
	}
	return false
}

// Components returns all attached components.
func (n *Node) Components() []Component { return n.components }

// Surfaces returns the surface components in attachment order.
func (n *Node) Surfaces() []*Surface {
	var out []*Surface
	for _, c := range n.components {
		if c.Kind() == KindSurface {
			out = append(out, c.(*Surface))
		}
	}
	return out
}

// Transform returns the node's transform component, or nil.
func (n *Node) Transform() *Transform {
	for _, c := range n.components {
		if c.Kind() == KindTransform {
			return c.(*Transform)
		}
	}
	return nil
}

// BoundingBox returns the node's bounding box component, or nil.
func (n *Node) BoundingBox() *BoundingBox {
	for _, c := range n.components {
		if c.Kind() == KindBoundingBox {
			return c.(*BoundingBox)
		}
	}
	return nil
}

// ModelToWorld composes the transforms from the root down to n.
func (n *Node) ModelToWorld() math.Mat4 {
	local := math.Identity()
	if t := n.Transform(); t != nil {
		local = t.Matrix()
	}
	if n.parent == nil {
		return local
	}
	return n.parent.ModelToWorld().Mul(local)
}

// Walk visits n and its descendants depth-first. Returning false skips the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Descendants returns n and every node below it in depth-first order.
func (n *Node) Descendants() []*Node {
	var out []*Node
	n.Walk(func(d *Node) bool {
		out = append(out, d)
		return true
	})
	return out
}

// WorldBox returns the world-space box enclosing every surface in the subtree rooted at n.
func (n *Node) WorldBox() math.Box {
	box := math.EmptyBox()
	n.Walk(func(d *Node) bool {
		if len(d.Surfaces()) == 0 {
			return true
		}
		bb := d.BoundingBox()
		if bb == nil {
			bb = NewBoundingBox()
			bb.target = d
		}
		box = box.Union(bb.WorldBox())
		return true
	})
	return box
}

func (n *Node) notify(c Component) {
	for _, other := range n.components {
		if l, ok := other.(componentListener); ok && other != c {
			l.componentChanged(c.Kind())
		}
	}
	if c.Kind() == KindTransform {
		for _, child := range n.children {
			child.transformChanged()
		}
	}
}

// transformChanged tells every component in the subtree that world matrices moved.
func (n *Node) transformChanged() {
	n.Walk(func(d *Node) bool {
		d.notifyKind(KindTransform)
		return true
	})
}

func (n *Node) notifyKind(kind ComponentKind) {
	for _, other := range n.components {
		if l, ok := other.(componentListener); ok {
			l.componentChanged(kind)
		}
	}
}
