package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/samber/lo"
	"github.com/swdee/go-streamdetect/detection"
	"gocv.io/x/gocv"
)

// ProcessingMask limits detection output to a region of interest.  A
// detection is kept when its centroid lies further than the border buffer
// from the frame edge and on a non-zero pixel of the optional mask image.
type ProcessingMask struct {
	border int
	// src is the loaded mask image, empty when no mask file is used
	src gocv.Mat
	// scaled is src resized to the most recent frame size
	scaled gocv.Mat
}

// NewProcessingMask returns a mask that only applies a border buffer
func NewProcessingMask(border int) *ProcessingMask {
	return &ProcessingMask{
		border: border,
		src:    gocv.NewMat(),
		scaled: gocv.NewMat(),
	}
}

// LoadProcessingMask reads a mask image where black pixels mark regions to
// ignore
func LoadProcessingMask(path string, border int) (*ProcessingMask, error) {

	src := gocv.IMRead(path, gocv.IMReadGrayScale)
	if src.Empty() {
		src.Close()
		return nil, fmt.Errorf("error reading mask image from %s", path)
	}

	return &ProcessingMask{
		border: border,
		src:    src,
		scaled: gocv.NewMat(),
	}, nil
}

// Active reports whether the mask would filter anything
func (p *ProcessingMask) Active() bool {
	return p.border > 0 || !p.src.Empty()
}

// Filter drops detections whose centroid falls in an excluded region of a
// width x height frame
func (p *ProcessingMask) Filter(dets []detection.Detection, width, height int) []detection.Detection {

	if !p.Active() || len(dets) == 0 {
		return dets
	}

	useMask := !p.src.Empty()
	if useMask && (p.scaled.Cols() != width || p.scaled.Rows() != height) {
		gocv.Resize(p.src, &p.scaled, image.Pt(width, height), 0, 0, gocv.InterpolationNearestNeighbor)
	}

	inner := image.Rect(p.border, p.border, width-p.border, height-p.border)

	return lo.Filter(dets, func(d detection.Detection, _ int) bool {
		pt := image.Pt(int(d.Centroid.X), int(d.Centroid.Y))

		if !pt.In(inner) {
			return false
		}

		return !useMask || p.scaled.GetUCharAt(pt.Y, pt.X) != 0
	})
}

// Region returns a single channel width x height Mat that is 255 where
// detections are kept and 0 in the excluded regions.  The caller must close
// the returned Mat.
func (p *ProcessingMask) Region(width, height int) gocv.Mat {

	region := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC1)

	inner := image.Rect(p.border, p.border, width-p.border, height-p.border)
	if inner.Empty() {
		return region
	}

	gocv.Rectangle(&region, inner, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	if !p.src.Empty() {
		scaled := gocv.NewMat()
		defer scaled.Close()

		gocv.Resize(p.src, &scaled, image.Pt(width, height), 0, 0, gocv.InterpolationNearestNeighbor)
		gocv.BitwiseAnd(region, scaled, &region)
	}

	return region
}

// Close frees the mask images
func (p *ProcessingMask) Close() error {
	p.scaled.Close()
	return p.src.Close()
}
