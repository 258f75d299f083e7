package postprocess

import (
	"sort"

	"github.com/samber/lo"
	"github.com/swdee/go-streamdetect/detection"
)

// Cleanup applies the final filters to the stabilized detections
type Cleanup struct {
	cfg CleanupConfig
}

// NewCleanup returns a CleanupStage for the given parameters
func NewCleanup(cfg CleanupConfig) *Cleanup {
	return &Cleanup{cfg: cfg}
}

// Configure replaces the cleanup parameters
func (c *Cleanup) Configure(cfg CleanupConfig) {
	c.cfg = cfg
}

// Apply runs, in order, the aspect ratio filter, spatial clustering, hue
// exclusion and the max detections limit
func (c *Cleanup) Apply(dets []detection.Detection) []detection.Detection {

	if c.cfg.EnableAspectRatioFilter {
		dets = FilterAspectRatio(dets, c.cfg.MinAspectRatio, c.cfg.MaxAspectRatio)
	}

	if c.cfg.EnableClustering {
		dets = ClusterByDistance(dets, c.cfg.ClusteringDistance)
	}

	if len(c.cfg.HueExclusions) > 0 {
		dets = ExcludeHues(dets, c.cfg.HueExclusions)
	}

	if c.cfg.MaxDetections > 0 && len(dets) > c.cfg.MaxDetections {
		dets = MostConfident(dets, c.cfg.MaxDetections)
	}

	return dets
}

// FilterAspectRatio drops detections whose width/height ratio falls outside
// [minRatio, maxRatio]
func FilterAspectRatio(dets []detection.Detection, minRatio, maxRatio float64) []detection.Detection {
	return lo.Filter(dets, func(d detection.Detection, _ int) bool {
		r := d.AspectRatio()
		return r >= minRatio && r <= maxRatio
	})
}

// ClusterByDistance merges detections whose centroids are within distance
// pixels of each other.  Merging is transitive so chains of nearby
// detections collapse into a single detection.
func ClusterByDistance(dets []detection.Detection, distance float64) []detection.Detection {

	if len(dets) < 2 {
		return dets
	}

	uf := newUnionFind(len(dets))

	for i := 0; i < len(dets); i++ {
		for j := i + 1; j < len(dets); j++ {
			if dets[i].Centroid.Distance(dets[j].Centroid) <= distance {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	roots := make([]int, 0)

	for i := range dets {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	out := make([]detection.Detection, 0, len(roots))

	for _, r := range roots {
		members := lo.Map(groups[r], func(i int, _ int) detection.Detection {
			return dets[i]
		})

		if len(members) == 1 {
			out = append(out, members[0])
			continue
		}

		out = append(out, detection.Merge(clusterType(members), members...))
	}

	return out
}

// clusterType keeps the member type when all members agree, otherwise the
// cluster is fused
func clusterType(members []detection.Detection) detection.Type {
	typ := members[0].Type
	for _, m := range members[1:] {
		if m.Type != typ {
			return detection.Fused
		}
	}
	return typ
}

// ExcludeHues drops detections whose hue metadata lies in any of the ranges.
// Detections without hue metadata are kept.
func ExcludeHues(dets []detection.Detection, ranges []HueRange) []detection.Detection {
	return lo.Reject(dets, func(d detection.Detection, _ int) bool {
		v, ok := d.Meta(detection.MetaHue)
		if !ok {
			return false
		}

		hue, ok := v.(float64)
		if !ok {
			return false
		}

		return lo.SomeBy(ranges, func(r HueRange) bool {
			return r.Contains(hue)
		})
	})
}

// MostConfident returns the n most confident detections
func MostConfident(dets []detection.Detection, n int) []detection.Detection {
	sorted := make([]detection.Detection, len(dets))
	copy(sorted, dets)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	return sorted[:min(n, len(sorted))]
}

// unionFind is a disjoint set forest with path halving
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}

	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
