package motion

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrAlgorithmUnavailable is returned when the preferred execution path of
	// an algorithm can not be used on this host
	ErrAlgorithmUnavailable = errors.New("algorithm unavailable")

	// ErrEstimationFailed is returned when the camera motion between two
	// frames could not be estimated
	ErrEstimationFailed = errors.New("camera motion estimation failed")
)

// execution paths reported by the detector
const (
	PathCPU  = "cpu"
	PathCUDA = "cuda"
)

// BackgroundModel turns a gray frame into a binary foreground mask while
// adapting its model of the expected scene
type BackgroundModel interface {
	// Apply updates the model with gray and writes the foreground mask, 255
	// for foreground and 0 otherwise
	Apply(gray gocv.Mat, mask *gocv.Mat) error
	// Reset discards the learnt model
	Reset()
	Close() error
	Algorithm() Algorithm
}

// selfRegistering is implemented by models that compensate camera motion
// themselves, the detector does not warp frames for them
type selfRegistering interface {
	setMoving(moving bool)
}

// velocitySource is implemented by models that measure the motion of a
// region directly
type velocitySource interface {
	regionVelocity(x, y, w, h int) (vx, vy float64, ok bool)
}

// newCPUModel builds the CPU implementation of the algorithm, which always
// exists
func newCPUModel(p modelParams, logger *zap.Logger) BackgroundModel {

	switch p.algorithm {
	case GaussianMixture:
		return newSubtractorModel(GaussianMixture, func() subtractor {
			s := gocv.NewBackgroundSubtractorMOG2WithParams(p.history, p.varThreshold(), p.detectShadows)
			return &s
		})

	case KNNBackground:
		return newSubtractorModel(KNNBackground, func() subtractor {
			s := gocv.NewBackgroundSubtractorKNNWithParams(p.history, p.dist2Threshold(), p.detectShadows)
			return &s
		})

	case OpticalFlow:
		return newFlowModel(p)

	case FeatureMatching:
		return newFeatureModel(p, logger)

	default:
		return newFrameDiff(p)
	}
}

// newGPUModel builds the GPU implementation of the algorithm or returns
// ErrAlgorithmUnavailable
func newGPUModel(p modelParams) (BackgroundModel, error) {

	if p.algorithm == GaussianMixture {
		if err := checkGPUMixture(p); err != nil {
			return nil, err
		}
		return newGPUMixture(p)
	}

	return nil, fmt.Errorf("%w: no GPU implementation of %s", ErrAlgorithmUnavailable, p.algorithm)
}

// the CUDA gaussian mixture is created with OpenCV's default parameters,
// gocv has no constructor or setters taking them
const (
	cudaMixtureHistory       = 500
	cudaMixtureVarThreshold  = 16
	cudaMixtureDetectShadows = true
)

// checkGPUMixture returns ErrAlgorithmUnavailable when p asks for a
// gaussian mixture the CUDA subtractor would not run as configured, so the
// CPU model is used instead of silently different parameters
func checkGPUMixture(p modelParams) error {

	if p.history != cudaMixtureHistory ||
		math.Abs(p.varThreshold()-cudaMixtureVarThreshold) > 0.5 ||
		p.detectShadows != cudaMixtureDetectShadows {
		return fmt.Errorf("%w: CUDA gaussian mixture only runs with history %d, sensitivity 0.85 and shadow detection",
			ErrAlgorithmUnavailable, cudaMixtureHistory)
	}

	return nil
}

// zeroMask sets mask to an all background mask the size of like
func zeroMask(like gocv.Mat, mask *gocv.Mat) {
	z := gocv.Zeros(like.Rows(), like.Cols(), gocv.MatTypeCV8UC1)
	defer z.Close()
	z.CopyTo(mask)
}

// sameSize reports whether two Mats have equal dimensions
func sameSize(a, b gocv.Mat) bool {
	return a.Rows() == b.Rows() && a.Cols() == b.Cols()
}
