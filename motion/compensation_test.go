package motion

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const (
	panWidth  = 320
	panHeight = 240
	blockSize = 16
)

// texture returns a BGR image of blurred random gray blocks, giving both
// corners for keypoint matching and smooth gradients for dense flow
func texture(w, h int) gocv.Mat {

	rng := rand.New(rand.NewSource(7))

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)

	for y := 0; y < h; y += blockSize {
		for x := 0; x < w; x += blockSize {
			v := uint8(40 + rng.Intn(160))
			gocv.Rectangle(&img, image.Rect(x, y, x+blockSize, y+blockSize),
				color.RGBA{R: v, G: v, B: v}, -1)
		}
	}

	gocv.GaussianBlur(img, &img, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	return img
}

// view returns a copy of the panWidth x panHeight window of tex starting at
// column x, a camera panning right sees increasing x
func view(tex gocv.Mat, x int) gocv.Mat {
	region := tex.Region(image.Rect(x, 0, x+panWidth, panHeight))
	defer region.Close()
	return region.Clone()
}

func panConfig(mode Mode) Config {
	cfg := staticConfig(GaussianMixture)
	cfg.Mode = mode
	cfg.Registration = Sparse
	cfg.CompensationStrength = 1
	cfg.BlurSize = 5
	cfg.LearningFrames = 5
	return cfg
}

// panDetections feeds frames panning step pixels per frame and returns the
// number of detections found after learning
func panDetections(t *testing.T, d *Detector, tex gocv.Mat, frames, step int) int {

	found := 0

	for i := 0; i < frames; i++ {
		frame := view(tex, i*step)
		dets, err := d.Detect(frame, float64(i))
		frame.Close()

		require.NoError(t, err)

		if i >= 5 {
			found += len(dets)
		}
	}

	return found
}

func TestMovingModeCompensatesPan(t *testing.T) {

	tex := texture(480, panHeight)
	defer tex.Close()

	static := newDetector(t, panConfig(Static))
	assert.NotZero(t, panDetections(t, static, tex, 15, 3),
		"a pan seen by a static model shows up as motion")

	moving := newDetector(t, panConfig(Moving))
	assert.Zero(t, panDetections(t, moving, tex, 15, 3))
	assert.Equal(t, Moving, moving.Mode())
	assert.Equal(t, Steady, moving.State())
	assert.False(t, isIdentity(moving.toModel))
	assert.InDelta(t, 42, moving.toModel.At(0, 2), 2)
	assert.InDelta(t, 0, moving.toModel.At(1, 2), 2)
}

func TestMovingModeFindsObjectDuringPan(t *testing.T) {

	tex := texture(480, panHeight)
	defer tex.Close()

	d := newDetector(t, panConfig(Moving))

	const step = 3

	for i := 0; i < 5; i++ {
		frame := view(tex, i*step)
		_, err := d.Detect(frame, float64(i))
		frame.Close()
		require.NoError(t, err)
	}
	require.Equal(t, Steady, d.State())

	// the square jumps far enough between frames that the model never sees
	// it in the same place twice
	for j, x := range []int{60, 180} {
		i := 5 + j

		frame := view(tex, i*step)
		square := image.Rect(x, 100, x+40, 140)
		gocv.Rectangle(&frame, square, white, -1)

		dets, err := d.Detect(frame, float64(i))
		frame.Close()

		require.NoError(t, err)
		require.Len(t, dets, 1, "frame %d", i)

		b := dets[0].BBox
		assert.InDelta(t, x, b.X, 4)
		assert.InDelta(t, 100, b.Y, 4)
		assert.InDelta(t, 40, b.Width, 6)
		assert.InDelta(t, 40, b.Height, 6)
	}
}

func TestAutoModeFollowsPanWithHysteresis(t *testing.T) {

	tex := texture(640, panHeight)
	defer tex.Close()

	cfg := staticConfig(FrameDiff)
	cfg.Mode = Auto
	hy := cfg.Hysteresis

	d := newDetector(t, cfg)

	const step = 8
	i := 0

	next := func(x int) {
		frame := view(tex, x)
		_, err := d.Detect(frame, float64(i))
		frame.Close()
		require.NoError(t, err)
		i++
	}

	// the first frame has nothing to compare against, so EnterFrames
	// frames give one observation too few to switch
	for i < hy.EnterFrames {
		next(i * step)
	}
	assert.Equal(t, Static, d.Mode())

	for i < 11 {
		next(i * step)
	}
	assert.Equal(t, Moving, d.Mode())

	last := (i - 1) * step

	for n := 0; n < hy.ExitFrames-1; n++ {
		next(last)
	}
	assert.Equal(t, Moving, d.Mode(), "a short pause keeps the camera moving")

	for n := 0; n < 25; n++ {
		next(last)
	}
	assert.Equal(t, Static, d.Mode())
}

func TestPanOutOfLearntViewRelearns(t *testing.T) {

	tex := texture(640, panHeight)
	defer tex.Close()

	cfg := staticConfig(FrameDiff)
	cfg.Mode = Moving
	cfg.Registration = Sparse
	cfg.CompensationStrength = 1
	cfg.LearningFrames = 3

	d := newDetector(t, cfg)

	const step = 20
	limit := float64(panWidth) / 2
	relearnt := -1

	for i := 0; i < 12 && relearnt < 0; i++ {

		before := d.State()

		frame := view(tex, i*step)
		dets, err := d.Detect(frame, float64(i))
		frame.Close()

		require.NoError(t, err)

		if before == Steady && d.State() == Learning {
			relearnt = i
			assert.Empty(t, dets)
			assert.True(t, isIdentity(d.toModel))
		} else {
			assert.LessOrEqual(t, shift(d.toModel), limit+step)
		}
	}

	// twenty pixels a frame passes half the 320 pixel width on the eighth or
	// ninth registration
	require.GreaterOrEqual(t, relearnt, 8)
	assert.LessOrEqual(t, relearnt, 9)
}
