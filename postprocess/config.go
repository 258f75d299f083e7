package postprocess

import (
	"errors"
	"fmt"
)

// FusionMode is the policy used to combine motion and color detections
type FusionMode string

const (
	FusionUnion          FusionMode = "union"
	FusionIntersection   FusionMode = "intersection"
	FusionColorPriority  FusionMode = "color-priority"
	FusionMotionPriority FusionMode = "motion-priority"
)

// FusionConfig holds the FusionEngine parameters
type FusionConfig struct {
	Mode FusionMode `yaml:"mode"`
	// MergeIoUThreshold is the IoU above which a motion and a color
	// detection are considered the same region
	MergeIoUThreshold float64 `yaml:"merge_iou_threshold"`
}

// DefaultFusionConfig returns the default fusion parameters
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		Mode:              FusionUnion,
		MergeIoUThreshold: 0.3,
	}
}

// Validate checks the parameters are within their legal ranges
func (c FusionConfig) Validate() error {
	switch c.Mode {
	case FusionUnion, FusionIntersection, FusionColorPriority, FusionMotionPriority:
	default:
		return fmt.Errorf("unknown fusion mode %q", c.Mode)
	}

	if c.MergeIoUThreshold <= 0 || c.MergeIoUThreshold >= 1 {
		return fmt.Errorf("merge_iou_threshold %v outside (0,1)", c.MergeIoUThreshold)
	}

	return nil
}

// HueRange is an inclusive range of hues in degrees [0,360).  A range with
// Min greater than Max wraps through 0, eg: 340 to 20 covers reds.
type HueRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether the hue lies in the range
func (r HueRange) Contains(hue float64) bool {
	if r.Min <= r.Max {
		return hue >= r.Min && hue <= r.Max
	}
	return hue >= r.Min || hue <= r.Max
}

// CleanupConfig holds the TemporalStabilizer and CleanupStage parameters
type CleanupConfig struct {
	EnableTemporalVoting bool `yaml:"enable_temporal_voting"`
	// WindowFrames is the number of frames (M) in the voting window
	WindowFrames int `yaml:"window_frames"`
	// ThresholdFrames is the number of frames (N) a location must appear in
	ThresholdFrames int `yaml:"threshold_frames"`
	// MatchIoU is the IoU above which two detections share a location
	MatchIoU float64 `yaml:"match_iou"`
	// MatchDistance is the centroid distance in pixels at or below which two
	// detections share a location, zero disables centroid matching
	MatchDistance float64 `yaml:"match_distance"`

	EnableAspectRatioFilter bool    `yaml:"enable_aspect_ratio_filter"`
	MinAspectRatio          float64 `yaml:"min_aspect_ratio"`
	MaxAspectRatio          float64 `yaml:"max_aspect_ratio"`

	EnableClustering   bool    `yaml:"enable_clustering"`
	ClusteringDistance float64 `yaml:"clustering_distance"`

	// HueExclusions drops detections whose hue metadata falls in a range
	HueExclusions []HueRange `yaml:"hue_exclusions"`
	// MaxDetections keeps only the most confident detections, zero means no
	// limit
	MaxDetections int `yaml:"max_detections"`
}

// DefaultCleanupConfig returns the default cleanup parameters
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		EnableTemporalVoting:    true,
		WindowFrames:            3,
		ThresholdFrames:         2,
		MatchIoU:                0.3,
		MatchDistance:           25,
		EnableAspectRatioFilter: true,
		MinAspectRatio:          0.2,
		MaxAspectRatio:          5.0,
		EnableClustering:        false,
		ClusteringDistance:      50,
		MaxDetections:           20,
	}
}

// Validate checks the parameters are within their legal ranges
func (c CleanupConfig) Validate() error {

	var errs []error

	if c.WindowFrames < 2 || c.WindowFrames > 30 {
		errs = append(errs, fmt.Errorf("window_frames %d outside [2,30]", c.WindowFrames))
	}

	if c.ThresholdFrames < 1 || c.ThresholdFrames > c.WindowFrames {
		errs = append(errs, fmt.Errorf("threshold_frames %d outside [1,%d]", c.ThresholdFrames, c.WindowFrames))
	}

	if c.MatchIoU < 0 || c.MatchIoU >= 1 {
		errs = append(errs, fmt.Errorf("match_iou %v outside [0,1)", c.MatchIoU))
	}

	if c.MatchDistance < 0 {
		errs = append(errs, fmt.Errorf("match_distance %v is negative", c.MatchDistance))
	}

	if c.MinAspectRatio <= 0 || c.MaxAspectRatio < c.MinAspectRatio {
		errs = append(errs, fmt.Errorf("aspect ratio range [%v,%v] is invalid", c.MinAspectRatio, c.MaxAspectRatio))
	}

	if c.ClusteringDistance < 0 || c.ClusteringDistance > 500 {
		errs = append(errs, fmt.Errorf("clustering_distance %v outside [0,500]", c.ClusteringDistance))
	}

	for _, r := range c.HueExclusions {
		if r.Min < 0 || r.Min >= 360 || r.Max < 0 || r.Max >= 360 {
			errs = append(errs, fmt.Errorf("hue exclusion [%v,%v] outside [0,360)", r.Min, r.Max))
		}
	}

	if c.MaxDetections < 0 {
		errs = append(errs, fmt.Errorf("max_detections %d is negative", c.MaxDetections))
	}

	return errors.Join(errs...)
}
