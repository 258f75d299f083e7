package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// column layout of the stats Mat returned by ConnectedComponentsWithStats
const (
	ccStatLeft   = 0
	ccStatTop    = 1
	ccStatWidth  = 2
	ccStatHeight = 3
	ccStatArea   = 4
)

// Component is one connected region of a binary mask
type Component struct {
	// Label is the value of the component in the label image
	Label int
	BBox  BBox
	Area  int
	// Centroid is the centre of mass from the component moments
	Centroid Point
}

// ComponentOptions controls how a binary mask is turned into Detections
type ComponentOptions struct {
	Type      Type
	MinArea   int
	MaxArea   int
	Timestamp float64
	// Contours enables extraction of the external outline of each component
	Contours bool
	// Confidence scores a component, when nil area/MaxArea is used
	Confidence func(c Component) float64
}

// Components returns the 8-connected components of the binary 8-bit mask
// whose pixel area lies within [minArea, maxArea].  A maxArea of zero
// disables the upper bound.  The returned label image must be closed by the
// caller.
func Components(mask gocv.Mat, minArea, maxArea int) ([]Component, gocv.Mat) {

	labels := gocv.NewMat()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(mask, &labels, &stats, &centroids)

	comps := make([]Component, 0, n)

	// label 0 is the background
	for i := 1; i < n; i++ {
		area := int(stats.GetIntAt(i, ccStatArea))

		if area < minArea || (maxArea > 0 && area > maxArea) {
			continue
		}

		comps = append(comps, Component{
			Label: i,
			BBox: BBox{
				X:      int(stats.GetIntAt(i, ccStatLeft)),
				Y:      int(stats.GetIntAt(i, ccStatTop)),
				Width:  int(stats.GetIntAt(i, ccStatWidth)),
				Height: int(stats.GetIntAt(i, ccStatHeight)),
			},
			Area: area,
			Centroid: Point{
				X: centroids.GetDoubleAt(i, 0),
				Y: centroids.GetDoubleAt(i, 1),
			},
		})
	}

	return comps, labels
}

// FromMask extracts one Detection per connected component of the binary mask
// that passes the area filter
func FromMask(mask gocv.Mat, opts ComponentOptions) []Detection {

	comps, labels := Components(mask, opts.MinArea, opts.MaxArea)
	defer labels.Close()

	if len(comps) == 0 {
		return nil
	}

	var outlines map[int][]image.Point
	if opts.Contours {
		outlines = contoursByLabel(mask, labels)
	}

	score := opts.Confidence
	if score == nil {
		score = func(c Component) float64 {
			if opts.MaxArea <= 0 {
				return 1
			}
			return float64(c.Area) / float64(opts.MaxArea)
		}
	}

	dets := make([]Detection, 0, len(comps))

	for _, c := range comps {
		d := Detection{
			BBox:       c.BBox,
			Centroid:   c.BBox.Center(),
			Area:       c.Area,
			Confidence: clamp01(score(c)),
			Timestamp:  opts.Timestamp,
			Type:       opts.Type,
		}

		if outline, ok := outlines[c.Label]; ok {
			d.Contour = outline
		}

		dets = append(dets, d)
	}

	return dets
}

// contoursByLabel finds the external contour of every labelled component by
// reading the label under the first vertex of each contour
func contoursByLabel(mask, labels gocv.Mat) map[int][]image.Point {

	pv := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer pv.Close()

	out := make(map[int][]image.Point, pv.Size())

	for _, contour := range pv.ToPoints() {
		if len(contour) == 0 {
			continue
		}

		first := contour[0]
		label := int(labels.GetIntAt(first.Y, first.X))

		if label == 0 {
			continue
		}

		if _, ok := out[label]; !ok {
			out[label] = contour
		}
	}

	return out
}
