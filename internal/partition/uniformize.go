package partition

import "gonum.org/v1/gonum/spatial/r3"

// sizeTolerance absorbs rounding in halved cell bounds.
const sizeTolerance = 1e-6

// uniformize re-splits shallow leaves until every non-empty leaf lies as deep as the
// deepest one, so partitions at one depth cover cells of one size. Only splits are
// performed, so the triangle budget is never exceeded to reach uniformity; leaves that
// cannot split keep their size.
func (o *octree) uniformize() {
	o.deepen(o.base, o.computeDepth(o.base))
}

// deepen splits the non-empty leaves below id until they are levels deep.
func (o *octree) deepen(id, levels int) {
	if levels <= 0 {
		return
	}
	if o.node(id).IsLeaf() {
		if len(o.node(id).Triangles) == 0 || !o.canSplit(id) {
			return
		}
		o.split(id)
	}
	for _, c := range o.node(id).Children {
		o.deepen(c, levels-1)
	}
}

// ensurePartitionSizeIsValid splits every non-empty leaf below id whose cell is larger
// than maxSize on any axis, regardless of its triangle count.
func (o *octree) ensurePartitionSizeIsValid(id int, maxSize r3.Vec) {
	if o.node(id).IsLeaf() {
		if len(o.node(id).Triangles) == 0 || !o.tooLarge(id, maxSize) || !o.canSplit(id) {
			return
		}
		o.split(id)
	}
	for _, c := range o.node(id).Children {
		o.ensurePartitionSizeIsValid(c, maxSize)
	}
}

func (o *octree) tooLarge(id int, maxSize r3.Vec) bool {
	s := o.node(id).Bounds.Size()
	return s.X > maxSize.X*(1+sizeTolerance) ||
		s.Y > maxSize.Y*(1+sizeTolerance) ||
		s.Z > maxSize.Z*(1+sizeTolerance)
}

// pickBestPartitions descends from the world root to the deepest cell that contains the
// whole mesh and makes it the insertion base. The chain of cells above it is kept so leaf
// depths stay comparable between meshes sharing the world grid.
func (o *octree) pickBestPartitions(mesh r3.Box) int {
	id := 0
	for o.node(id).Depth < maxOctreeDepth {
		lo := o.octantFor(id, mesh.Min)
		if lo != o.octantFor(id, mesh.Max) {
			break
		}
		child := o.newNode(id, o.node(id).Depth+1, childBounds(o.node(id).Bounds, lo))
		o.node(id).Children = []int{child}
		id = child
	}
	o.base = id
	return id
}

// finalize re-splits leaves pushed over budget, sharing boundary triangles first when
// crackFree is set, until no leaf can improve.
func (o *octree) finalize(crackFree bool) {
	for {
		if crackFree {
			o.shareBoundaryTriangles()
		}
		split := false
		for _, id := range o.leaves(o.base) {
			if o.overBudget(id) && o.canSplit(id) {
				o.split(id)
				split = true
			}
		}
		if !split {
			return
		}
	}
}

// cube grows b into a cube anchored at its minimum corner.
func cube(b r3.Box) r3.Box {
	s := b.Size()
	edge := max(s.X, s.Y, s.Z)
	return r3.Box{Min: b.Min, Max: r3.Add(b.Min, r3.Vec{X: edge, Y: edge, Z: edge})}
}

func union(a, b r3.Box) r3.Box {
	return r3.Box{
		Min: r3.Vec{X: min(a.Min.X, b.Min.X), Y: min(a.Min.Y, b.Min.Y), Z: min(a.Min.Z, b.Min.Z)},
		Max: r3.Vec{X: max(a.Max.X, b.Max.X), Y: max(a.Max.Y, b.Max.Y), Z: max(a.Max.Z, b.Max.Z)},
	}
}
