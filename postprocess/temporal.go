package postprocess

import (
	"github.com/swdee/go-streamdetect/detection"
)

// Temporal suppresses detections that do not persist at the same location
// across a sliding window of frames
type Temporal struct {
	cfg CleanupConfig
	// history holds the fused sets of the previous WindowFrames-1 frames
	history *ring[[]detection.Detection]
}

// NewTemporal returns a TemporalStabilizer using the voting fields of cfg
func NewTemporal(cfg CleanupConfig) *Temporal {
	return &Temporal{
		cfg:     cfg,
		history: newRing[[]detection.Detection](cfg.WindowFrames - 1),
	}
}

// Configure applies new parameters.  The window is cleared when voting is
// toggled or the window or threshold sizes change.
func (t *Temporal) Configure(cfg CleanupConfig) {

	old := t.cfg
	t.cfg = cfg

	if old.EnableTemporalVoting != cfg.EnableTemporalVoting ||
		old.WindowFrames != cfg.WindowFrames ||
		old.ThresholdFrames != cfg.ThresholdFrames {
		t.history = newRing[[]detection.Detection](cfg.WindowFrames - 1)
	}
}

// Reset clears the voting window
func (t *Temporal) Reset() {
	t.history.clear()
}

// Depth returns the number of past frames currently held
func (t *Temporal) Depth() int {
	return t.history.len()
}

// Stabilize returns the detections of the current frame whose location
// appears in at least ThresholdFrames of the last WindowFrames frames, the
// current frame included.  The current set is then recorded and the oldest
// frame evicted.  With voting disabled the set passes through unchanged.
func (t *Temporal) Stabilize(dets []detection.Detection) []detection.Detection {

	if !t.cfg.EnableTemporalVoting {
		return dets
	}

	out := make([]detection.Detection, 0, len(dets))

	for _, d := range dets {
		// the current frame counts as one appearance
		votes := 1

		t.history.each(func(past []detection.Detection) {
			for _, p := range past {
				if t.sameLocation(d, p) {
					votes++
					return
				}
			}
		})

		if votes >= t.cfg.ThresholdFrames {
			out = append(out, d)
		}
	}

	t.history.push(dets)

	return out
}

// sameLocation matches two detections by IoU or centroid proximity
func (t *Temporal) sameLocation(a, b detection.Detection) bool {

	if detection.IoU(a.BBox, b.BBox) > t.cfg.MatchIoU {
		return true
	}

	return t.cfg.MatchDistance > 0 &&
		a.Centroid.Distance(b.Centroid) <= t.cfg.MatchDistance
}
