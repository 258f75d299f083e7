package postprocess

import (
	"github.com/samber/lo"
	"github.com/swdee/go-streamdetect/detection"
)

// FusionInput is the motion and color detector output for one frame
type FusionInput struct {
	Motion        []detection.Detection
	Color         []detection.Detection
	MotionEnabled bool
	ColorEnabled  bool
}

// Fusion combines motion and color detections of the same frame
type Fusion struct {
	cfg FusionConfig
}

// NewFusion returns a FusionEngine for the given parameters
func NewFusion(cfg FusionConfig) *Fusion {
	return &Fusion{cfg: cfg}
}

// Configure replaces the fusion parameters
func (f *Fusion) Configure(cfg FusionConfig) {
	f.cfg = cfg
}

// Config returns the active parameters
func (f *Fusion) Config() FusionConfig {
	return f.cfg
}

// Fuse merges the two sets under the configured policy.  When only one
// detector is enabled its set is passed through unchanged.
func (f *Fusion) Fuse(in FusionInput) []detection.Detection {

	switch {
	case in.MotionEnabled && !in.ColorEnabled:
		return in.Motion
	case in.ColorEnabled && !in.MotionEnabled:
		return in.Color
	case !in.MotionEnabled && !in.ColorEnabled:
		return nil
	}

	cands := make([]detection.Detection, 0, len(in.Motion)+len(in.Color))
	cands = append(cands, in.Motion...)
	cands = append(cands, in.Color...)

	nMotion := len(in.Motion)
	fromMotion := func(i int) bool { return i < nMotion }

	boxes := detection.Boxes(cands)
	scores := lo.Map(cands, func(d detection.Detection, _ int) float64 {
		return d.Confidence
	})

	// only pairs drawn from different detectors are merge candidates
	iou := IoUAbove(boxes, f.cfg.MergeIoUThreshold)
	clusters := GreedyClusters(len(cands), scores, func(i, j int) bool {
		return fromMotion(i) != fromMotion(j) && iou(i, j)
	})

	out := make([]detection.Detection, 0, len(clusters))

	for _, c := range clusters {
		if len(c) == 1 {
			if f.cfg.Mode != FusionIntersection {
				out = append(out, cands[c[0]])
			}
			continue
		}

		switch f.cfg.Mode {
		case FusionColorPriority:
			out = append(out, keepSource(cands, c, false, fromMotion)...)
		case FusionMotionPriority:
			out = append(out, keepSource(cands, c, true, fromMotion)...)
		default:
			members := lo.Map(c, func(i int, _ int) detection.Detection {
				return cands[i]
			})
			out = append(out, detection.Merge(detection.Fused, orderMotionFirst(members)...))
		}
	}

	return out
}

// keepSource returns the members of a cluster produced by the priority
// detector.  The cluster seed and its members always come from different
// detectors.
func keepSource(cands []detection.Detection, cluster []int, motion bool,
	fromMotion func(int) bool) []detection.Detection {

	kept := make([]detection.Detection, 0, len(cluster))

	for _, i := range cluster {
		if fromMotion(i) == motion {
			kept = append(kept, cands[i])
		}
	}

	return kept
}

// orderMotionFirst puts motion members first so the fused result inherits
// their velocity and metadata takes motion values before color ones
func orderMotionFirst(dets []detection.Detection) []detection.Detection {
	motion, rest := lo.FilterReject(dets, func(d detection.Detection, _ int) bool {
		return d.Type == detection.Motion
	})
	return append(motion, rest...)
}
