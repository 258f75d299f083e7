package motion

import (
	"errors"
	"fmt"
)

// Mode is the camera assumption the detector runs under
type Mode string

const (
	// Static assumes a fixed camera
	Static Mode = "static"
	// Moving registers each frame to the previous one before differencing
	Moving Mode = "moving"
	// Auto switches between Static and Moving from the measured global
	// motion
	Auto Mode = "auto"
)

// Algorithm selects the background model
type Algorithm string

const (
	FrameDiff       Algorithm = "frame-diff"
	GaussianMixture Algorithm = "gaussian-mixture"
	KNNBackground   Algorithm = "knn-background"
	OpticalFlow     Algorithm = "optical-flow"
	FeatureMatching Algorithm = "feature-matching"
)

// Registration selects the camera motion estimator used in Moving mode
type Registration string

const (
	// Sparse matches ORB keypoints and fits a similarity transform
	Sparse Registration = "sparse"
	// Dense takes the median of a dense optical flow field
	Dense Registration = "dense"
)

// Hysteresis controls switching between Static and Moving in Auto mode.
// Thresholds are in pixels per frame at processing resolution.
type Hysteresis struct {
	Window         int     `yaml:"window"`
	EnterThreshold float64 `yaml:"enter_threshold"`
	ExitThreshold  float64 `yaml:"exit_threshold"`
	EnterFrames    int     `yaml:"enter_frames"`
	ExitFrames     int     `yaml:"exit_frames"`
}

// Config holds the MotionDetector parameters
type Config struct {
	Mode      Mode      `yaml:"mode"`
	Algorithm Algorithm `yaml:"algorithm"`
	// Sensitivity in [0,1] maps onto the threshold of each algorithm, higher
	// values report smaller changes
	Sensitivity float64 `yaml:"sensitivity"`
	MinArea     int     `yaml:"min_area"`
	MaxArea     int     `yaml:"max_area"`
	// BlurSize is the gaussian kernel applied to the gray frame, 1 disables
	BlurSize       int `yaml:"blur_size"`
	MorphologySize int `yaml:"morphology_size"`
	// LearningFrames is the number of frames after a reset that only update
	// the model
	LearningFrames int  `yaml:"learning_frames"`
	History        int  `yaml:"history"`
	DetectShadows  bool `yaml:"detect_shadows"`
	// PreferGPU requests the CUDA implementation where one exists
	PreferGPU    bool         `yaml:"prefer_gpu"`
	Registration Registration `yaml:"registration"`
	// CompensationStrength blends the estimated camera transform with the
	// identity, 1 applies it fully
	CompensationStrength float64    `yaml:"compensation_strength"`
	Hysteresis           Hysteresis `yaml:"hysteresis"`
	// MaxMatchDistance gates centroid association for velocity estimates
	MaxMatchDistance float64 `yaml:"max_match_distance"`
}

// DefaultConfig returns the default motion parameters
func DefaultConfig() Config {
	return Config{
		Mode:                 Auto,
		Algorithm:            GaussianMixture,
		Sensitivity:          0.5,
		MinArea:              100,
		MaxArea:              100000,
		BlurSize:             5,
		MorphologySize:       3,
		LearningFrames:       5,
		History:              100,
		Registration:         Sparse,
		CompensationStrength: 0.8,
		Hysteresis: Hysteresis{
			Window:         10,
			EnterThreshold: 2.0,
			ExitThreshold:  1.0,
			EnterFrames:    3,
			ExitFrames:     5,
		},
		MaxMatchDistance: 50,
	}
}

// Validate checks the parameters are within their legal ranges
func (c Config) Validate() error {

	var errs []error

	switch c.Mode {
	case Static, Moving, Auto:
	default:
		errs = append(errs, fmt.Errorf("unknown motion mode %q", c.Mode))
	}

	switch c.Algorithm {
	case FrameDiff, GaussianMixture, KNNBackground, OpticalFlow, FeatureMatching:
	default:
		errs = append(errs, fmt.Errorf("unknown motion algorithm %q", c.Algorithm))
	}

	switch c.Registration {
	case Sparse, Dense:
	default:
		errs = append(errs, fmt.Errorf("unknown registration %q", c.Registration))
	}

	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("sensitivity %v outside [0,1]", c.Sensitivity))
	}

	if c.MinArea <= 0 || c.MaxArea < c.MinArea {
		errs = append(errs, fmt.Errorf("area range [%d,%d] is invalid", c.MinArea, c.MaxArea))
	}

	if c.BlurSize < 1 || c.BlurSize%2 == 0 {
		errs = append(errs, fmt.Errorf("blur_size %d must be odd and at least 1", c.BlurSize))
	}

	if c.MorphologySize < 0 {
		errs = append(errs, fmt.Errorf("morphology_size %d is negative", c.MorphologySize))
	}

	if c.LearningFrames < 0 {
		errs = append(errs, fmt.Errorf("learning_frames %d is negative", c.LearningFrames))
	}

	if c.History < 1 {
		errs = append(errs, fmt.Errorf("history %d must be at least 1", c.History))
	}

	if c.CompensationStrength < 0 || c.CompensationStrength > 1 {
		errs = append(errs, fmt.Errorf("compensation_strength %v outside [0,1]", c.CompensationStrength))
	}

	if c.MaxMatchDistance < 0 {
		errs = append(errs, fmt.Errorf("max_match_distance %v is negative", c.MaxMatchDistance))
	}

	if err := c.Hysteresis.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Validate checks the hysteresis thresholds form a band
func (h Hysteresis) Validate() error {

	if h.Window < 1 {
		return fmt.Errorf("hysteresis window %d must be at least 1", h.Window)
	}

	if h.EnterFrames < 1 || h.ExitFrames < 1 {
		return fmt.Errorf("hysteresis enter/exit frames must be at least 1")
	}

	if h.ExitThreshold < 0 || h.ExitThreshold > h.EnterThreshold {
		return fmt.Errorf("hysteresis exit threshold %v must be within [0,%v]",
			h.ExitThreshold, h.EnterThreshold)
	}

	return nil
}

// modelParams are the fields a background model is built from, a change in
// any of them rebuilds the model
type modelParams struct {
	algorithm     Algorithm
	sensitivity   float64
	history       int
	detectShadows bool
	preferGPU     bool
}

func (c Config) modelParams() modelParams {
	return modelParams{
		algorithm:     c.Algorithm,
		sensitivity:   c.Sensitivity,
		history:       c.History,
		detectShadows: c.DetectShadows,
		preferGPU:     c.PreferGPU,
	}
}

// diffThreshold is the gray level change counted as motion by frame
// differencing
func (p modelParams) diffThreshold() float64 {
	return 40 - 30*p.sensitivity
}

// varThreshold is the squared Mahalanobis distance used by the gaussian
// mixture model
func (p modelParams) varThreshold() float64 {
	return 50 - 40*p.sensitivity
}

// dist2Threshold is the squared distance used by the KNN model
func (p modelParams) dist2Threshold() float64 {
	return 800 - 600*p.sensitivity
}

// flowThreshold is the residual flow magnitude in pixels counted as motion
func (p modelParams) flowThreshold() float64 {
	return 4 - 3*p.sensitivity
}
