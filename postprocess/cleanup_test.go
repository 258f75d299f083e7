package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-streamdetect/detection"
)

func cleanupConfig() CleanupConfig {
	cfg := DefaultCleanupConfig()
	cfg.EnableTemporalVoting = false
	cfg.EnableAspectRatioFilter = false
	cfg.EnableClustering = false
	cfg.MaxDetections = 0
	return cfg
}

func TestAspectRatioFilterToggle(t *testing.T) {

	wide := colorDet(0, 0, 60, 10, 0.5)
	square := colorDet(50, 50, 10, 10, 0.5)
	dets := []detection.Detection{wide, square}

	cfg := cleanupConfig()
	cfg.MinAspectRatio = 0.2
	cfg.MaxAspectRatio = 5

	out := NewCleanup(cfg).Apply(dets)
	assert.Len(t, out, 2)

	cfg.EnableAspectRatioFilter = true
	out = NewCleanup(cfg).Apply(dets)
	require.Len(t, out, 1)
	assert.Equal(t, square.BBox, out[0].BBox)
}

func TestClusteringMergesNearbyDetections(t *testing.T) {

	a := colorDet(0, 0, 10, 10, 0.3)
	b := colorDet(30, 0, 10, 10, 0.6)

	cfg := cleanupConfig()
	cfg.EnableClustering = true
	cfg.ClusteringDistance = 30

	out := NewCleanup(cfg).Apply([]detection.Detection{a, b})
	require.Len(t, out, 1)

	assert.True(t, out[0].BBox.Contains(a.BBox))
	assert.True(t, out[0].BBox.Contains(b.BBox))
	assert.Equal(t, 0.6, out[0].Confidence)
	assert.Equal(t, detection.Color, out[0].Type)

	cfg.ClusteringDistance = 29
	out = NewCleanup(cfg).Apply([]detection.Detection{a, b})
	assert.Len(t, out, 2)
}

func TestClusteringIsTransitive(t *testing.T) {

	// a-b and b-c are close, a-c are not
	a := colorDet(0, 0, 10, 10, 0.3)
	b := motionDet(40, 0, 10, 10, 0.5)
	c := colorDet(80, 0, 10, 10, 0.4)
	far := colorDet(300, 300, 10, 10, 0.9)

	out := ClusterByDistance([]detection.Detection{a, b, c, far}, 45)
	require.Len(t, out, 2)

	assert.Equal(t, detection.Fused, out[0].Type)
	assert.Equal(t, detection.BBox{X: 0, Y: 0, Width: 90, Height: 10}, out[0].BBox)
	assert.NotNil(t, out[0].Velocity)
	assert.Equal(t, far, out[1])
}

func TestExcludeHues(t *testing.T) {

	sky := colorDet(0, 0, 10, 10, 0.5).WithMeta(detection.MetaHue, 210.0)
	red := colorDet(0, 0, 10, 10, 0.5).WithMeta(detection.MetaHue, 355.0)
	plain := motionDet(0, 0, 10, 10, 0.5)

	out := ExcludeHues([]detection.Detection{sky, red, plain},
		[]HueRange{{Min: 180, Max: 250}})
	assert.Len(t, out, 2)

	out = ExcludeHues([]detection.Detection{sky, red, plain},
		[]HueRange{{Min: 340, Max: 20}})
	assert.Len(t, out, 2)
	assert.Equal(t, 210.0, out[0].Metadata[detection.MetaHue])
}

func TestMaxDetections(t *testing.T) {

	cfg := cleanupConfig()
	cfg.MaxDetections = 2

	dets := []detection.Detection{
		colorDet(0, 0, 10, 10, 0.1),
		colorDet(20, 0, 10, 10, 0.9),
		colorDet(40, 0, 10, 10, 0.5),
	}

	out := NewCleanup(cfg).Apply(dets)
	require.Len(t, out, 2)
	assert.Equal(t, 0.9, out[0].Confidence)
	assert.Equal(t, 0.5, out[1].Confidence)
	assert.Equal(t, 0.1, dets[0].Confidence)
}

func TestCleanupConfigValidate(t *testing.T) {

	assert.NoError(t, DefaultCleanupConfig().Validate())

	cfg := DefaultCleanupConfig()
	cfg.WindowFrames = 31
	assert.Error(t, cfg.Validate())

	cfg = DefaultCleanupConfig()
	cfg.ThresholdFrames = cfg.WindowFrames + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultCleanupConfig()
	cfg.ClusteringDistance = 501
	assert.Error(t, cfg.Validate())

	cfg = DefaultCleanupConfig()
	cfg.HueExclusions = []HueRange{{Min: 10, Max: 400}}
	assert.Error(t, cfg.Validate())
}
