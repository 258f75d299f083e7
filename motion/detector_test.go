package motion

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-streamdetect/detection"
	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func blackFrame(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
}

func newDetector(t *testing.T, cfg Config, opts ...Option) *Detector {
	d, err := NewDetector(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func staticConfig(algo Algorithm) Config {
	cfg := DefaultConfig()
	cfg.Mode = Static
	cfg.Algorithm = algo
	cfg.MinArea = 500
	cfg.BlurSize = 1
	return cfg
}

func TestWhiteSquareOnLearntBackground(t *testing.T) {

	d := newDetector(t, staticConfig(GaussianMixture))
	assert.Equal(t, Uninitialized, d.State())

	black := blackFrame(100, 100)
	defer black.Close()

	for i := 0; i < 5; i++ {
		dets, err := d.Detect(black, float64(i))
		require.NoError(t, err)
		assert.Empty(t, dets, "frame %d", i)
	}

	assert.Equal(t, Steady, d.State())

	frame := blackFrame(100, 100)
	defer frame.Close()
	gocv.Rectangle(&frame, image.Rect(30, 30, 70, 70), white, -1)

	dets, err := d.Detect(frame, 5)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	det := dets[0]
	assert.Equal(t, detection.Motion, det.Type)
	assert.InDelta(t, 30, det.BBox.X, 3)
	assert.InDelta(t, 30, det.BBox.Y, 3)
	assert.InDelta(t, 40, det.BBox.Width, 3)
	assert.InDelta(t, 40, det.BBox.Height, 3)
	assert.InDelta(t, 1600, det.Area, 150)
	assert.Equal(t, 5.0, det.Timestamp)
	assert.Nil(t, det.Velocity)
	assert.NotEmpty(t, det.Contour)
	assert.Equal(t, PathCPU, d.ExecutionPath())
}

func TestLearningFramesEmitNothing(t *testing.T) {

	cfg := staticConfig(FrameDiff)
	cfg.LearningFrames = 3
	d := newDetector(t, cfg)

	for i := 0; i < 3; i++ {
		frame := blackFrame(100, 100)
		// every frame differs from the previous one
		gocv.Rectangle(&frame, image.Rect(i*25, 0, i*25+25, 100), white, -1)

		dets, err := d.Detect(frame, float64(i))
		frame.Close()

		require.NoError(t, err)
		assert.Empty(t, dets)
	}

	assert.Equal(t, Steady, d.State())
}

func TestResolutionChangeRelearns(t *testing.T) {

	cfg := staticConfig(FrameDiff)
	cfg.LearningFrames = 2
	d := newDetector(t, cfg)

	small := blackFrame(100, 100)
	defer small.Close()

	for i := 0; i < 3; i++ {
		_, err := d.Detect(small, float64(i))
		require.NoError(t, err)
	}
	require.Equal(t, Steady, d.State())

	big := blackFrame(160, 120)
	defer big.Close()
	gocv.Rectangle(&big, image.Rect(0, 0, 80, 120), white, -1)

	dets, err := d.Detect(big, 3)
	require.NoError(t, err)
	assert.Empty(t, dets)
	assert.Equal(t, Learning, d.State())
}

func TestResetReturnsToLearning(t *testing.T) {

	cfg := staticConfig(GaussianMixture)
	cfg.LearningFrames = 1
	d := newDetector(t, cfg)

	black := blackFrame(64, 64)
	defer black.Close()

	_, err := d.Detect(black, 0)
	require.NoError(t, err)
	require.Equal(t, Steady, d.State())

	d.Reset()
	assert.Equal(t, Reset, d.State())

	_, err = d.Detect(black, 1)
	require.NoError(t, err)
	assert.Equal(t, Steady, d.State())
}

func TestConfigureAlgorithmChangeResets(t *testing.T) {

	cfg := staticConfig(FrameDiff)
	cfg.LearningFrames = 2
	d := newDetector(t, cfg)

	black := blackFrame(64, 64)
	defer black.Close()

	for i := 0; i < 3; i++ {
		_, err := d.Detect(black, float64(i))
		require.NoError(t, err)
	}
	require.Equal(t, Steady, d.State())

	cfg.Algorithm = KNNBackground
	require.NoError(t, d.Configure(cfg))
	assert.Equal(t, Reset, d.State())
	assert.Equal(t, KNNBackground, d.Algorithm())

	_, err := d.Detect(black, 3)
	require.NoError(t, err)
	_, err = d.Detect(black, 4)
	require.NoError(t, err)
	require.Equal(t, Steady, d.State())

	// changing only the area filter keeps the model
	cfg.MinArea = 600
	require.NoError(t, d.Configure(cfg))
	assert.Equal(t, Steady, d.State())

	cfg.Sensitivity = 2
	assert.Error(t, d.Configure(cfg))
}

func TestUniformFramesNeverFail(t *testing.T) {

	for _, algo := range []Algorithm{FrameDiff, GaussianMixture, OpticalFlow, FeatureMatching} {
		t.Run(string(algo), func(t *testing.T) {

			cfg := staticConfig(algo)
			cfg.LearningFrames = 1
			d := newDetector(t, cfg)

			gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), 80, 80, gocv.MatTypeCV8UC3)
			defer gray.Close()

			for i := 0; i < 4; i++ {
				dets, err := d.Detect(gray, float64(i))
				require.NoError(t, err)
				assert.Empty(t, dets)
			}
		})
	}
}

func TestMovingModeSurvivesFailedEstimation(t *testing.T) {

	cfg := staticConfig(FrameDiff)
	cfg.Mode = Moving
	cfg.LearningFrames = 1
	d := newDetector(t, cfg)

	// a uniform frame has no keypoints so every registration fails
	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), 80, 80, gocv.MatTypeCV8UC3)
	defer gray.Close()

	for i := 0; i < 3; i++ {
		dets, err := d.Detect(gray, float64(i))
		require.NoError(t, err)
		assert.Empty(t, dets)
	}

	assert.Equal(t, Moving, d.Mode())
}

func TestAutoModeStaysStaticOnStillCamera(t *testing.T) {

	cfg := staticConfig(FrameDiff)
	cfg.Mode = Auto
	d := newDetector(t, cfg)

	black := blackFrame(160, 160)
	defer black.Close()

	for i := 0; i < 12; i++ {
		_, err := d.Detect(black, float64(i))
		require.NoError(t, err)
	}

	assert.Equal(t, Static, d.Mode())
}

func TestRejectsBadFrames(t *testing.T) {

	d := newDetector(t, staticConfig(FrameDiff))

	empty := gocv.NewMat()
	defer empty.Close()

	_, err := d.Detect(empty, 0)
	assert.Error(t, err)

	four := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC4)
	defer four.Close()

	_, err = d.Detect(four, 0)
	assert.Error(t, err)
}

func TestSparseEstimatorFailsOnUniformFrames(t *testing.T) {

	est := newSparseEstimator()
	defer est.Close()

	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 0, 0, 0), 80, 80, gocv.MatTypeCV8UC1)
	defer gray.Close()

	_, err := est.estimate(gray, gray)
	assert.True(t, errors.Is(err, ErrEstimationFailed))
}

func TestConfigValidate(t *testing.T) {

	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"mode", func(c *Config) { c.Mode = "panning" }},
		{"algorithm", func(c *Config) { c.Algorithm = "mog3" }},
		{"registration", func(c *Config) { c.Registration = "fuzzy" }},
		{"sensitivity", func(c *Config) { c.Sensitivity = -0.1 }},
		{"area", func(c *Config) { c.MaxArea = c.MinArea - 1 }},
		{"even blur", func(c *Config) { c.BlurSize = 4 }},
		{"strength", func(c *Config) { c.CompensationStrength = 1.5 }},
		{"hysteresis band", func(c *Config) { c.Hysteresis.ExitThreshold = c.Hysteresis.EnterThreshold + 1 }},
		{"hysteresis window", func(c *Config) { c.Hysteresis.Window = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGPUMixtureParams(t *testing.T) {

	p := modelParams{
		algorithm:     GaussianMixture,
		sensitivity:   0.85,
		history:       500,
		detectShadows: true,
		preferGPU:     true,
	}
	assert.NoError(t, checkGPUMixture(p))

	tests := []struct {
		name   string
		modify func(*modelParams)
	}{
		{"history", func(p *modelParams) { p.history = 100 }},
		{"sensitivity", func(p *modelParams) { p.sensitivity = 0.5 }},
		{"shadows", func(p *modelParams) { p.detectShadows = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := p
			tt.modify(&q)
			assert.ErrorIs(t, checkGPUMixture(q), ErrAlgorithmUnavailable)

			_, err := newGPUModel(q)
			assert.ErrorIs(t, err, ErrAlgorithmUnavailable)
		})
	}
}

func TestSensitivityMapping(t *testing.T) {

	lo := modelParams{sensitivity: 0}
	hi := modelParams{sensitivity: 1}

	assert.InDelta(t, 40, lo.diffThreshold(), 1e-9)
	assert.InDelta(t, 10, hi.diffThreshold(), 1e-9)
	assert.InDelta(t, 50, lo.varThreshold(), 1e-9)
	assert.InDelta(t, 10, hi.varThreshold(), 1e-9)
	assert.InDelta(t, 800, lo.dist2Threshold(), 1e-9)
	assert.InDelta(t, 200, hi.dist2Threshold(), 1e-9)
	assert.InDelta(t, 4, lo.flowThreshold(), 1e-9)
	assert.InDelta(t, 1, hi.flowThreshold(), 1e-9)
}
