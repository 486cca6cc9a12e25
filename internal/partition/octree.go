package partition

import (
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// noParent is the parent id of the tree root.
	noParent = -1

	// maxOctreeDepth stops subdivision of triangles that cannot be separated.
	maxOctreeDepth = 24
)

// OctreeNode is an arena entry. Nodes refer to each other by id; the arena owns them all.
type OctreeNode struct {
	ID       int
	Depth    int
	Bounds   r3.Box
	Parent   int
	Children []int

	Triangles       []uint32
	SharedTriangles []uint32
	Indices         indexSet
	SharedIndices   indexSet
}

// IsLeaf reports whether the node has no children.
func (n *OctreeNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// IsEmpty reports whether the node holds no triangle at all.
func (n *OctreeNode) IsEmpty() bool {
	return len(n.Triangles) == 0 && len(n.SharedTriangles) == 0
}

// TriangleCount is the owned plus shared count checked against the triangle budget.
func (n *OctreeNode) TriangleCount() int {
	return len(n.Triangles) + len(n.SharedTriangles)
}

// IndexCount is the number of distinct vertices the node's geometry needs.
func (n *OctreeNode) IndexCount() int {
	count := len(n.Indices)
	for i := range n.SharedIndices {
		if !n.Indices.has(i) {
			count++
		}
	}
	return count
}

// octree subdivides the triangles of one PartitionInfo.
type octree struct {
	nodes        []OctreeNode
	info         *PartitionInfo
	maxTriangles int
	maxIndices   int

	// base is the node triangles are inserted from; the root unless a world grid is used.
	base int
}

func newOctree(info *PartitionInfo, bounds r3.Box, maxTriangles, maxIndices int) *octree {
	o := &octree{
		info:         info,
		maxTriangles: maxTriangles,
		maxIndices:   maxIndices,
	}
	o.newNode(noParent, 0, bounds)
	return o
}

func (o *octree) newNode(parent, depth int, bounds r3.Box) int {
	id := len(o.nodes)
	o.nodes = append(o.nodes, OctreeNode{
		ID:            id,
		Depth:         depth,
		Bounds:        bounds,
		Parent:        parent,
		Indices:       make(indexSet),
		SharedIndices: make(indexSet),
	})
	return id
}

func (o *octree) node(id int) *OctreeNode {
	return &o.nodes[id]
}

// indexAt maps an octant position in {0,1}³ to a child slot: bit 0 is x, bit 1 is y, bit 2 is z.
func indexAt(x, y, z int) int {
	return x | y<<1 | z<<2
}

// octantAt is the inverse of indexAt.
func octantAt(index int) (x, y, z int) {
	return index & 1, index >> 1 & 1, index >> 2 & 1
}

// octantFor returns the child slot of node id containing p. A coordinate on the split
// plane belongs to the lower half.
func (o *octree) octantFor(id int, p r3.Vec) int {
	c := o.node(id).Bounds.Center()
	x, y, z := 0, 0, 0
	if p.X > c.X {
		x = 1
	}
	if p.Y > c.Y {
		y = 1
	}
	if p.Z > c.Z {
		z = 1
	}
	return indexAt(x, y, z)
}

// childBounds returns the bounds of octant index of b.
func childBounds(b r3.Box, index int) r3.Box {
	c := b.Center()
	x, y, z := octantAt(index)
	out := b
	if x == 0 {
		out.Max.X = c.X
	} else {
		out.Min.X = c.X
	}
	if y == 0 {
		out.Max.Y = c.Y
	} else {
		out.Min.Y = c.Y
	}
	if z == 0 {
		out.Max.Z = c.Z
	} else {
		out.Min.Z = c.Z
	}
	return out
}

// childAt returns the child of id in octant slot, or -1 when it was pruned.
func (o *octree) childAt(id, slot int) int {
	want := childBounds(o.node(id).Bounds, slot)
	for _, c := range o.node(id).Children {
		if o.node(c).Bounds == want {
			return c
		}
	}
	return -1
}

// insert places triangle t in the deepest node below id containing its centroid and
// splits that leaf when it goes over budget.
func (o *octree) insert(id int, t uint32) {
	c := o.info.centroid(t)
	for !o.node(id).IsLeaf() {
		next := o.childAt(id, o.octantFor(id, c))
		if next < 0 {
			break
		}
		id = next
	}

	n := o.node(id)
	n.Triangles = append(n.Triangles, t)
	for _, idx := range o.info.triangle(t) {
		n.Indices.add(idx)
	}

	if o.overBudget(id) && o.canSplit(id) {
		o.split(id)
	}
}

func (o *octree) overBudget(id int) bool {
	n := o.node(id)
	return n.TriangleCount() > o.maxTriangles || n.IndexCount() > o.maxIndices
}

// canSplit is false for leaves holding at most one owned triangle and at the depth limit.
func (o *octree) canSplit(id int) bool {
	n := o.node(id)
	return n.IsLeaf() && len(n.Triangles) > 1 && n.Depth < maxOctreeDepth
}

// split creates the eight octants of a leaf and redistributes its owned triangles.
// Shared triangles are dropped; they are recomputed once the tree is final.
func (o *octree) split(id int) {
	bounds := o.node(id).Bounds
	depth := o.node(id).Depth
	children := make([]int, 8)
	for slot := range children {
		children[slot] = o.newNode(id, depth+1, childBounds(bounds, slot))
	}

	n := o.node(id)
	n.Children = children
	triangles := n.Triangles
	n.Triangles = nil
	n.SharedTriangles = nil
	n.Indices = make(indexSet)
	n.SharedIndices = make(indexSet)

	for _, t := range triangles {
		o.insert(id, t)
	}
}

// leafAt returns the leaf below the base node containing p.
func (o *octree) leafAt(p r3.Vec) int {
	id := o.base
	for !o.node(id).IsLeaf() {
		next := o.childAt(id, o.octantFor(id, p))
		if next < 0 {
			return id
		}
		id = next
	}
	return id
}

// leaves returns the leaves below id in depth-first slot order.
func (o *octree) leaves(id int) []int {
	n := o.node(id)
	if n.IsLeaf() {
		return []int{id}
	}
	var out []int
	for _, c := range n.Children {
		out = append(out, o.leaves(c)...)
	}
	return out
}

// registerSharedTriangle records t as shared by leaf id.
func (o *octree) registerSharedTriangle(id int, t uint32) {
	n := o.node(id)
	n.SharedTriangles = append(n.SharedTriangles, t)
	for _, idx := range o.info.triangle(t) {
		n.SharedIndices.add(idx)
	}
}

// clearShared drops every shared registration below the base node.
func (o *octree) clearShared() {
	for _, id := range o.leaves(o.base) {
		n := o.node(id)
		n.SharedTriangles = nil
		n.SharedIndices = make(indexSet)
	}
}

// owners maps each triangle to the leaf owning it.
func (o *octree) owners() []int {
	owner := make([]int, o.info.NumTriangles())
	for _, id := range o.leaves(o.base) {
		for _, t := range o.node(id).Triangles {
			owner[t] = id
		}
	}
	return owner
}

// shareBoundaryTriangles registers every triangle whose vertices fall in more than one
// owning leaf as shared by each of those leaves, and protects its vertices.
// Leaves owning nothing are not given shared triangles.
func (o *octree) shareBoundaryTriangles() {
	o.clearShared()
	o.info.ProtectedIndices = make(indexSet)
	for _, id := range o.leaves(o.base) {
		for _, t := range o.node(id).Triangles {
			touched := o.touchedLeaves(id, t)
			if len(touched) < 2 {
				continue
			}
			for _, leaf := range touched {
				o.registerSharedTriangle(leaf, t)
			}
			for _, idx := range o.info.triangle(t) {
				o.info.ProtectedIndices.add(idx)
			}
		}
	}
}

// touchedLeaves returns owner followed by the other non-empty leaves holding a vertex of t.
func (o *octree) touchedLeaves(owner int, t uint32) []int {
	touched := []int{owner}
	for _, idx := range o.info.triangle(t) {
		leaf := o.leafAt(positionAt(idx, o.info))
		if len(o.node(leaf).Triangles) == 0 {
			continue
		}
		seen := false
		for _, l := range touched {
			if l == leaf {
				seen = true
				break
			}
		}
		if !seen {
			touched = append(touched, leaf)
		}
	}
	return touched
}

// prune removes empty leaves below id and reports whether id itself ended up empty.
func (o *octree) prune(id int) bool {
	n := o.node(id)
	if n.IsLeaf() {
		return n.IsEmpty()
	}
	kept := n.Children[:0]
	for _, c := range n.Children {
		if !o.prune(c) {
			kept = append(kept, c)
		}
	}
	n = o.node(id)
	n.Children = kept
	return len(kept) == 0 && n.IsEmpty()
}

// computeDepth returns how many levels the deepest leaf lies below id.
func (o *octree) computeDepth(id int) int {
	n := o.node(id)
	deepest := 0
	for _, c := range n.Children {
		deepest = max(deepest, 1+o.computeDepth(c))
	}
	return deepest
}
