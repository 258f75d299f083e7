package motion

import (
	"gocv.io/x/gocv"
)

// frameDiff marks pixels whose gray level changed from the previous frame
type frameDiff struct {
	threshold float32
	prev      gocv.Mat
	diff      gocv.Mat
}

func newFrameDiff(p modelParams) *frameDiff {
	return &frameDiff{
		threshold: float32(p.diffThreshold()),
		prev:      gocv.NewMat(),
		diff:      gocv.NewMat(),
	}
}

func (f *frameDiff) Apply(gray gocv.Mat, mask *gocv.Mat) error {

	if f.prev.Empty() || !sameSize(f.prev, gray) {
		gray.CopyTo(&f.prev)
		zeroMask(gray, mask)
		return nil
	}

	gocv.AbsDiff(f.prev, gray, &f.diff)
	gocv.Threshold(f.diff, mask, f.threshold, 255, gocv.ThresholdBinary)
	gray.CopyTo(&f.prev)

	return nil
}

func (f *frameDiff) Reset() {
	f.prev.Close()
	f.prev = gocv.NewMat()
}

func (f *frameDiff) Close() error {
	f.diff.Close()
	return f.prev.Close()
}

func (f *frameDiff) Algorithm() Algorithm {
	return FrameDiff
}
