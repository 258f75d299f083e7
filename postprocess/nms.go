package postprocess

import (
	"sort"

	"github.com/swdee/go-streamdetect/detection"
)

// Overlap reports whether candidate j should be grouped with the higher
// ranked candidate i
type Overlap func(i, j int) bool

// GreedyClusters groups n candidates the non-maximum suppression way.
// Candidates are visited in descending score order; each candidate not yet
// claimed starts a new cluster and claims every remaining candidate for which
// overlaps(seed, other) holds.  The first index of each cluster is its seed.
func GreedyClusters(n int, scores []float64, overlaps Overlap) [][]int {

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	claimed := make([]bool, n)
	clusters := make([][]int, 0, n)

	for a, i := range order {
		if claimed[i] {
			continue
		}

		claimed[i] = true
		cluster := []int{i}

		for _, j := range order[a+1:] {
			if claimed[j] {
				continue
			}

			if overlaps(i, j) {
				claimed[j] = true
				cluster = append(cluster, j)
			}
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

// IoUAbove returns an Overlap matching boxes with an IoU greater than the
// threshold
func IoUAbove(boxes []detection.BBox, threshold float64) Overlap {
	return func(i, j int) bool {
		return detection.IoU(boxes[i], boxes[j]) > threshold
	}
}

// SmallBoxCovered returns an Overlap matching when more than the given
// fraction of the lower ranked box area lies inside the seed box.  This
// catches boxes cut in half by a tile boundary whose IoU stays low.
func SmallBoxCovered(boxes []detection.BBox, fraction float64) Overlap {
	return func(i, j int) bool {
		area := boxes[j].Area()
		if area == 0 {
			return false
		}
		inter := boxes[i].Intersect(boxes[j]).Area()
		return float64(inter)/float64(area) > fraction
	}
}

// SameLabel restricts an Overlap to candidates of the same label.  A nil
// labels slice makes the overlap class agnostic.
func SameLabel(labels []int, overlaps Overlap) Overlap {
	if labels == nil {
		return overlaps
	}
	return func(i, j int) bool {
		return labels[i] == labels[j] && overlaps(i, j)
	}
}

// AnyOf matches when at least one of the given overlaps matches
func AnyOf(overlaps ...Overlap) Overlap {
	return func(i, j int) bool {
		for _, o := range overlaps {
			if o(i, j) {
				return true
			}
		}
		return false
	}
}

// NMS runs greedy, score ordered, label aware non-maximum suppression and
// returns the indices of the kept boxes in descending score order
func NMS(boxes []detection.BBox, scores []float64, labels []int, iouThreshold float64) []int {

	clusters := GreedyClusters(len(boxes), scores,
		SameLabel(labels, IoUAbove(boxes, iouThreshold)))

	keep := make([]int, len(clusters))
	for i, c := range clusters {
		keep[i] = c[0]
	}

	return keep
}

// MergedBox is a box kept by MergeBoxes
type MergedBox struct {
	// Index of the kept input box
	Index int
	// BBox is the union of the kept box and every box it suppressed
	BBox detection.BBox
	// Score is the highest score of the cluster
	Score float64
	Label int
	// Members are the input indices merged into this box, seed first
	Members []int
}

// MergeBoxes works like NMS but instead of discarding suppressed boxes it
// grows the kept box to cover them
func MergeBoxes(boxes []detection.BBox, scores []float64, labels []int, iouThreshold float64) []MergedBox {
	return MergeClusters(boxes, scores, labels,
		GreedyClusters(len(boxes), scores, SameLabel(labels, IoUAbove(boxes, iouThreshold))))
}

// MergeClusters converts clusters from GreedyClusters into MergedBoxes
func MergeClusters(boxes []detection.BBox, scores []float64, labels []int, clusters [][]int) []MergedBox {

	out := make([]MergedBox, 0, len(clusters))

	for _, c := range clusters {
		seed := c[0]
		mb := MergedBox{
			Index:   seed,
			BBox:    boxes[seed],
			Score:   scores[seed],
			Members: c,
		}

		if labels != nil {
			mb.Label = labels[seed]
		}

		for _, j := range c[1:] {
			mb.BBox = mb.BBox.Union(boxes[j])
			if scores[j] > mb.Score {
				mb.Score = scores[j]
			}
		}

		out = append(out, mb)
	}

	return out
}
