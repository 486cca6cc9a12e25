package partition

import "github.com/Faultbox/meshstream/internal/scene"

// mergeSurfaces buckets surfaces the indexer considers compatible, in first-appearance order.
// A surface matching nothing forms its own group.
func mergeSurfaces(surfaces []*scene.Surface, indexer SurfaceIndexer) [][]*scene.Surface {
	var groups [][]*scene.Surface
	buckets := make(map[uint64][]int)

	for _, s := range surfaces {
		h := indexer.Hash(s)
		placed := false
		for _, gi := range buckets[h] {
			if indexer.Equal(groups[gi][0], s) {
				groups[gi] = append(groups[gi], s)
				placed = true
				break
			}
		}
		if !placed {
			buckets[h] = append(buckets[h], len(groups))
			groups = append(groups, []*scene.Surface{s})
		}
	}
	return groups
}

// singletonGroups wraps each surface in its own group.
func singletonGroups(surfaces []*scene.Surface) [][]*scene.Surface {
	groups := make([][]*scene.Surface, len(surfaces))
	for i, s := range surfaces {
		groups[i] = []*scene.Surface{s}
	}
	return groups
}
