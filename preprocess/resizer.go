package preprocess

import (
	"image"

	"github.com/swdee/go-streamdetect/detection"
	"gocv.io/x/gocv"
)

// Resizer scales frames down to the processing resolution and maps
// detections found at that resolution back onto the source frame
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// maxWidth and maxHeight bound the processing resolution
	maxWidth  int
	maxHeight int
	// scale is the factor applied to the source dimensions
	scale float64
	// resize dimensions
	resizeW int
	resizeH int
}

// NewResizer returns a resizer that fits a srcWidth x srcHeight frame inside
// maxWidth x maxHeight whilst maintaining aspect.  Frames are never scaled
// up.  A zero max dimension leaves that axis unconstrained.
func NewResizer(srcWidth, srcHeight, maxWidth, maxHeight int) *Resizer {
	r := &Resizer{
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// preCalc the scale factor and resized dimensions
func (r *Resizer) preCalc() {

	r.scale = 1.0

	if r.maxWidth > 0 && r.srcWidth > r.maxWidth {
		r.scale = float64(r.maxWidth) / float64(r.srcWidth)
	}

	if r.maxHeight > 0 && r.srcHeight > r.maxHeight {
		if s := float64(r.maxHeight) / float64(r.srcHeight); s < r.scale {
			r.scale = s
		}
	}

	r.resizeW = max(1, int(float64(r.srcWidth)*r.scale+0.5))
	r.resizeH = max(1, int(float64(r.srcHeight)*r.scale+0.5))
}

// Matches reports whether the resizer was built for frames of the given size
func (r *Resizer) Matches(width, height int) bool {
	return r.srcWidth == width && r.srcHeight == height
}

// Passthrough reports whether frames are processed at source resolution
func (r *Resizer) Passthrough() bool {
	return r.resizeW == r.srcWidth && r.resizeH == r.srcHeight
}

// Resize scales src into dest.  When no scaling is needed dest becomes a
// copy of src.
func (r *Resizer) Resize(src gocv.Mat, dest *gocv.Mat) {

	if r.Passthrough() {
		src.CopyTo(dest)
		return
	}

	gocv.Resize(src, dest, image.Pt(r.resizeW, r.resizeH), 0, 0, gocv.InterpolationArea)
}

// ToSource maps detections from processing resolution back onto the source
// frame
func (r *Resizer) ToSource(dets []detection.Detection) []detection.Detection {

	if r.Passthrough() || len(dets) == 0 {
		return dets
	}

	sx := float64(r.srcWidth) / float64(r.resizeW)
	sy := float64(r.srcHeight) / float64(r.resizeH)

	out := make([]detection.Detection, len(dets))
	for i, d := range dets {
		out[i] = d.Scaled(sx, sy, r.srcWidth, r.srcHeight)
	}

	return out
}

// ScaleFactor returns the scale factor applied to source frames
func (r *Resizer) ScaleFactor() float64 {
	return r.scale
}

// Size returns the processing resolution
func (r *Resizer) Size() (width, height int) {
	return r.resizeW, r.resizeH
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}
