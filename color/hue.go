package color

import (
	"github.com/swdee/go-streamdetect/detection"
	"gocv.io/x/gocv"
)

// minimum saturation and value for a pixel to carry a meaningful hue
const (
	hueMinSaturation = 50
	hueMinValue      = 50
)

// expandHue grows det to cover the connected region of similar hue that
// contains its centroid.  OpenCV stores hue as degrees/2 in [0,180).
func (d *Detector) expandHue(hsv gocv.Mat, det detection.Detection) detection.Detection {

	hue, ok := det.Metadata[detection.MetaHue].(float64)
	if !ok {
		return det
	}

	center := hue / 2
	span := d.cfg.HueExpansion.Range / 2

	mask := gocv.NewMat()
	defer mask.Close()

	inRangeHue(hsv, center-span, center+span, &mask)

	comps, labels := detection.Components(mask, 1, 0)
	defer labels.Close()

	cx, cy := int(det.Centroid.X), int(det.Centroid.Y)
	if cx < 0 || cy < 0 || cx >= labels.Cols() || cy >= labels.Rows() {
		return det
	}

	label := int(labels.GetIntAt(cy, cx))
	if label == 0 {
		return det
	}

	for _, c := range comps {
		if c.Label != label {
			continue
		}

		if d.cfg.MaxArea > 0 && c.Area > d.cfg.MaxArea {
			return det
		}

		out := det.Clone()
		out.BBox = det.BBox.Union(c.BBox)
		out.Centroid = out.BBox.Center()
		out.Area = max(det.Area, c.Area)
		out.Contour = nil

		return out
	}

	return det
}

// inRangeHue writes a mask of pixels with hue in [lo,hi] (OpenCV units),
// wrapping through 0
func inRangeHue(hsv gocv.Mat, lo, hi float64, dst *gocv.Mat) {

	band := func(l, h float64, out *gocv.Mat) {
		gocv.InRangeWithScalar(hsv,
			gocv.NewScalar(l, hueMinSaturation, hueMinValue, 0),
			gocv.NewScalar(h, 255, 255, 0), out)
	}

	switch {
	case lo < 0:
		band(0, hi, dst)
		wrap := gocv.NewMat()
		defer wrap.Close()
		band(180+lo, 179, &wrap)
		gocv.BitwiseOr(*dst, wrap, dst)
	case hi > 179:
		band(lo, 179, dst)
		wrap := gocv.NewMat()
		defer wrap.Close()
		band(0, hi-180, &wrap)
		gocv.BitwiseOr(*dst, wrap, dst)
	default:
		band(lo, hi, dst)
	}
}
