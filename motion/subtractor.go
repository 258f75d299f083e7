package motion

import (
	"gocv.io/x/gocv"
)

// shadowLevel separates foreground (255) from shadow (127) in subtractor
// output
const shadowLevel = 200

// subtractor is the common surface of the OpenCV background subtractors
type subtractor interface {
	Apply(src gocv.Mat, dst *gocv.Mat)
	Close() error
}

// subtractorModel adapts an OpenCV background subtractor (MOG2 or KNN)
type subtractorModel struct {
	algo  Algorithm
	build func() subtractor
	sub   subtractor
	raw   gocv.Mat
}

func newSubtractorModel(algo Algorithm, build func() subtractor) *subtractorModel {
	return &subtractorModel{
		algo:  algo,
		build: build,
		sub:   build(),
		raw:   gocv.NewMat(),
	}
}

func (s *subtractorModel) Apply(gray gocv.Mat, mask *gocv.Mat) error {
	s.sub.Apply(gray, &s.raw)
	gocv.Threshold(s.raw, mask, shadowLevel, 255, gocv.ThresholdBinary)
	return nil
}

// Reset rebuilds the subtractor, OpenCV has no way to clear its model
func (s *subtractorModel) Reset() {
	s.sub.Close()
	s.sub = s.build()
}

func (s *subtractorModel) Close() error {
	s.raw.Close()
	return s.sub.Close()
}

func (s *subtractorModel) Algorithm() Algorithm {
	return s.algo
}
