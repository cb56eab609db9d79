package gridgoblin

import "golang.org/x/exp/constraints"

var orthogonalNeighbors = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// fillDefaultOpenness sets every cell's SPATIAL_INFO openness to maxOpenness
// on a freshly synthesized chunk. A cell that has never been touched by an
// edit has no nearby obstruction by construction, so its true openness is
// the saturated maximum, not the zero value Go's zero-initialization would
// otherwise leave it at -- which would misread as "obstructed" and corrupt
// neighbor propagation for any later recomputeOpennessAround.
func fillDefaultOpenness(c *Chunk, maxOpenness uint8) {
	if !c.mask.Has(BlockSpatialInfo) {
		return
	}
	for i := range c.spatialInfo {
		c.spatialInfo[i].Openness = maxOpenness
	}
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// computeOpennessAt derives one cell's openness from its wall shape and its
// four orthogonal neighbors, per §3's Openness definition. A missing
// neighbor (unloaded chunk or world edge) counts as obstructed (openness 0).
func (w *World) computeOpennessAt(gx, gy int) uint8 {
	info, ok := w.getSpatial(gx, gy)
	if !ok {
		return 0
	}
	if info.Obstructed() {
		return 0
	}

	minNeighbor := uint8(255)
	for _, d := range orthogonalNeighbors {
		n, ok := w.getSpatial(gx+d[0], gy+d[1])
		var no uint8
		if ok && !n.Obstructed() {
			no = n.Openness
		}
		if no < minNeighbor {
			minNeighbor = no
		}
	}
	return clamp(minNeighbor+1, 0, w.contents.MaxCellOpenness)
}

// recomputeOpennessAround refreshes every cell's openness within
// maxCellOpenness rings of (gx, gy), in increasing-distance order, the
// "bounded flood fill bounded by maxCellOpenness rings" from §4.E.
func (w *World) recomputeOpennessAround(gx, gy int) {
	maxRing := int(w.contents.MaxCellOpenness)

	type point struct{ x, y, dist int }
	visited := map[[2]int]bool{{gx, gy}: true}
	queue := []point{{gx, gy, 0}}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		openness := w.computeOpennessAt(p.x, p.y)
		w.setOpenness(p.x, p.y, openness)

		if p.dist >= maxRing {
			continue
		}
		for _, d := range orthogonalNeighbors {
			nx, ny := p.x+d[0], p.y+d[1]
			key := [2]int{nx, ny}
			if visited[key] {
				continue
			}
			visited[key] = true
			queue = append(queue, point{nx, ny, p.dist + 1})
		}
	}
}
