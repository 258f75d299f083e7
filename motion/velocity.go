package motion

import (
	"math"

	"github.com/swdee/go-streamdetect/detection"
	"github.com/swdee/go-streamdetect/tracker"
)

// velocityTracker estimates per detection velocity in pixels per frame by
// associating centroids with those of the previous frame
type velocityTracker struct {
	maxDistance float64
	prev        []detection.Point
}

// update sets the Velocity of dets whose centroid matches a centroid of the
// previous frame and remembers the centroids for the next frame
func (v *velocityTracker) update(dets []detection.Detection) error {

	cur := make([]detection.Point, len(dets))
	for i, d := range dets {
		cur[i] = d.Centroid
	}

	defer func() {
		v.prev = cur
	}()

	if len(cur) == 0 || len(v.prev) == 0 {
		return nil
	}

	cost := make([][]float64, len(cur))
	for i, c := range cur {
		cost[i] = make([]float64, len(v.prev))
		for j, p := range v.prev {
			cost[i][j] = c.Distance(p)
		}
	}

	limit := v.maxDistance
	if limit <= 0 {
		limit = math.Inf(1)
	}

	res, err := tracker.LinearAssignment(cost, limit)
	if err != nil {
		return err
	}

	for _, m := range res.Matches {
		c, p := cur[m[0]], v.prev[m[1]]
		dets[m[0]].Velocity = &detection.Velocity{VX: c.X - p.X, VY: c.Y - p.Y}
	}

	return nil
}

func (v *velocityTracker) reset() {
	v.prev = nil
}
