package motion

import (
	"image"
	"image/color"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// featureModel registers the previous frame onto the current one with
// matched keypoints every frame and differences the aligned pair.  When
// registration fails the frames are differenced unaligned.
type featureModel struct {
	threshold float32
	logger    *zap.Logger
	est       *sparseEstimator
	prev      gocv.Mat
	aligned   gocv.Mat
	diff      gocv.Mat
}

func newFeatureModel(p modelParams, logger *zap.Logger) *featureModel {
	return &featureModel{
		threshold: float32(p.diffThreshold()),
		logger:    logger,
		est:       newSparseEstimator(),
		prev:      gocv.NewMat(),
		aligned:   gocv.NewMat(),
		diff:      gocv.NewMat(),
	}
}

// setMoving is a no-op, registration runs on every frame
func (f *featureModel) setMoving(bool) {}

func (f *featureModel) Apply(gray gocv.Mat, mask *gocv.Mat) error {

	if f.prev.Empty() || !sameSize(f.prev, gray) {
		gray.CopyTo(&f.prev)
		zeroMask(gray, mask)
		return nil
	}

	t, err := f.est.estimate(f.prev, gray)

	if err != nil {
		f.logger.Debug("registration failed, differencing unaligned frames", zap.Error(err))
		gocv.AbsDiff(f.prev, gray, &f.diff)
	} else {
		affine := toAffineMat(t)
		gocv.WarpAffineWithParams(f.prev, &f.aligned, affine, image.Pt(gray.Cols(), gray.Rows()), gocv.InterpolationLinear,
			gocv.BorderReplicate, color.RGBA{})
		affine.Close()

		gocv.AbsDiff(f.aligned, gray, &f.diff)
	}

	gocv.Threshold(f.diff, mask, f.threshold, 255, gocv.ThresholdBinary)
	gray.CopyTo(&f.prev)

	return nil
}

func (f *featureModel) Reset() {
	f.prev.Close()
	f.prev = gocv.NewMat()
}

func (f *featureModel) Close() error {
	f.aligned.Close()
	f.diff.Close()
	f.est.Close()
	return f.prev.Close()
}

func (f *featureModel) Algorithm() Algorithm {
	return FeatureMatching
}
