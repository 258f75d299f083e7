package preprocess

import (
	"image"
	"math"
	"sync"

	"github.com/samber/lo"
	"github.com/swdee/go-streamdetect/detection"
	"github.com/swdee/go-streamdetect/postprocess"
	"gocv.io/x/gocv"
)

// SAHI defines the struct used for Slicing Aided Hyper Inference, where a
// large still image is cut into overlapping tiles, each tile is run through a
// detector and the per tile results are merged back into image coordinates
type SAHI struct {
	// sliceWidth is the width of each image slice
	sliceWidth int
	// sliceHeight is the height of each image slice
	sliceHeight int
	// overlapWidth is a ratio from 0.0 to 1.0 to represent the number of pixels
	// to overlap each slice.  A value of 0.2 represents 20% of sliceWidth's pixels
	overlapWidth float64
	// overlapHeight is a ratio from 0.0 to 1.0 to represent the number of pixels
	// to overlap each slice.  A value of 0.2 represents 20% of sliceHeight's pixels
	overlapHeight float64
	// results stores a slices detection results
	results []sahiResult
	mu      sync.Mutex
	idGen   *detection.IDGenerator
}

// sahiResult defines a struct to store a slice and its detection results
type sahiResult struct {
	slice Slice
	det   []detection.Detection
}

// Slice defines the struct used to store the coordinates for a slice of the
// source image
type Slice struct {
	// X is the coordinate of the slices left corner
	X int
	// Y is the coordinate of the slices top corner
	Y int
	// X2 is the coordinate of the slices right corner
	X2 int
	// Y2 is the coordinate of the slices bottom corner
	Y2 int
	// slice is a region of the source Mat, it shares memory with the source
	slice gocv.Mat
}

// NewSAHI returns a SAHI instance for slicing a source image into a series of
// tiles of at least sliceWidth x sliceHeight
func NewSAHI(sliceWidth, sliceHeight int, overlapWidth, overlapHeight float64) *SAHI {
	return &SAHI{
		sliceWidth:    sliceWidth,
		sliceHeight:   sliceHeight,
		overlapWidth:  overlapWidth,
		overlapHeight: overlapHeight,
		results:       make([]sahiResult, 0),
		idGen:         detection.NewIDGenerator(),
	}
}

// computePositions returns the start coordinates (0 based) of each tile
// along one axis, and the computed tile length.  It guarantees:
//
//   - you get the smallest n tiles so that n*tileLen – (n−1)*step >= srcLen
//   - step = (srcLen−tileLen)/(n−1) is =< sliceLen
//   - thus overlap = tileLen − step >= sliceLen*overlapRatio
//
// any leftover pixels to cover the image get spread evenly via rounding.
// An axis shorter than one tile yields a single tile of the axis length.
func (s *SAHI) computePositions(srcLen, sliceLen int, overlapRatio float64) ([]int, int) {

	// minimum pixel overlap
	minOv := int(math.Ceil(float64(sliceLen) * overlapRatio))

	tileLen := sliceLen + minOv

	if tileLen >= srcLen {
		return []int{0}, srcLen
	}

	// number of tiles needed when stepping by sliceLen, this ensures
	// step =< sliceLen and so overlap >= minOv
	n := int(math.Ceil(float64(srcLen-tileLen)/float64(sliceLen))) + 1

	step := float64(srcLen-tileLen) / float64(n-1)

	positions := make([]int, n)

	for i := 0; i < n; i++ {
		p := int(math.Round(step * float64(i)))
		positions[i] = min(max(p, 0), srcLen-tileLen)
	}

	return positions, tileLen
}

// Slice slices the given input image into a series of tiles
func (s *SAHI) Slice(src gocv.Mat) []Slice {

	srcH, srcW := src.Rows(), src.Cols()

	xs, tileW := s.computePositions(srcW, s.sliceWidth, s.overlapWidth)
	ys, tileH := s.computePositions(srcH, s.sliceHeight, s.overlapHeight)

	slices := make([]Slice, 0, len(xs)*len(ys))

	for _, y := range ys {
		for _, x := range xs {
			rect := image.Rect(x, y, x+tileW, y+tileH)

			slices = append(slices, Slice{
				X:     x,
				Y:     y,
				X2:    x + tileW,
				Y2:    y + tileH,
				slice: src.Region(rect),
			})
		}
	}

	return slices
}

// AddResult adds the slice and its detection results, it is safe to call from
// multiple goroutines
func (s *SAHI) AddResult(slice Slice, dets []detection.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, sahiResult{
		slice: slice,
		det:   dets,
	})
}

// Detections returns the detections of all slices mapped back onto the
// source image.  Overlapping detections of the same type are merged with the
// shared greedy overlap utility.
//   - iouThreshold is the IoU above which two boxes are the same object
//   - smallBoxOverlapThresh is the fraction from 0 to 1 of a smaller box that
//     must lie inside a higher scoring box to be merged into it, which occurs
//     when an object sits on the slice/tile overlap boundary
func (s *SAHI) Detections(iouThreshold, smallBoxOverlapThresh float64) []detection.Detection {

	s.mu.Lock()
	defer s.mu.Unlock()

	group := make([]detection.Detection, 0)

	for _, sr := range s.results {
		for _, d := range sr.det {
			g := d.Clone()
			g.BBox = d.BBox.Translate(sr.slice.X, sr.slice.Y)
			g.Centroid = detection.Point{
				X: d.Centroid.X + float64(sr.slice.X),
				Y: d.Centroid.Y + float64(sr.slice.Y),
			}
			for i, pt := range g.Contour {
				g.Contour[i] = pt.Add(image.Pt(sr.slice.X, sr.slice.Y))
			}
			group = append(group, g)
		}
	}

	boxes := detection.Boxes(group)
	scores := lo.Map(group, func(d detection.Detection, _ int) float64 { return d.Confidence })

	clusters := postprocess.GreedyClusters(len(group), scores,
		func(i, j int) bool {
			return group[i].Type == group[j].Type &&
				postprocess.AnyOf(
					postprocess.IoUAbove(boxes, iouThreshold),
					postprocess.SmallBoxCovered(boxes, smallBoxOverlapThresh),
				)(i, j)
		})

	out := make([]detection.Detection, 0, len(clusters))

	for _, c := range clusters {
		var d detection.Detection

		if len(c) == 1 {
			d = group[c[0]]
		} else {
			members := lo.Map(c, func(i int, _ int) detection.Detection { return group[i] })
			d = detection.Merge(members[0].Type, members...)
		}

		d.ID = s.idGen.GetNext()
		out = append(out, d)
	}

	return out
}

// FreeResults releases stored detection results.  This should be called after
// processing of each image to clear out results added by AddResult().
func (s *SAHI) FreeResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = s.results[:0]
}

// Mat returns the slice region to run detection on
func (s *Slice) Mat() *gocv.Mat {
	return &s.slice
}

// Rect returns the slice bounds in source image coordinates
func (s *Slice) Rect() image.Rectangle {
	return image.Rect(s.X, s.Y, s.X2, s.Y2)
}

// Free releases the slice region
func (s *Slice) Free() error {
	return s.slice.Close()
}
