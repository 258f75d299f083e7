package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-streamdetect"
	"github.com/swdee/go-streamdetect/detection"
	"gocv.io/x/gocv"
	"golang.org/x/image/font/gofont/goregular"
)

func blackFrame(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
}

// bgrAt returns the pixel at x,y as an RGBA color
func bgrAt(img gocv.Mat, x, y int) color.RGBA {
	v := img.GetVecbAt(y, x)
	return color.RGBA{R: v[2], G: v[1], B: v[0], A: 255}
}

func TestDetectionsUseTypeColors(t *testing.T) {

	img := blackFrame(100, 100)
	defer img.Close()

	dets := []detection.Detection{
		detection.New(detection.Motion, detection.BBox{X: 10, Y: 10, Width: 20, Height: 20}, 1, 0),
		detection.New(detection.Color, detection.BBox{X: 50, Y: 50, Width: 20, Height: 20}, 1, 0),
	}

	style := BoxStyle{LineThickness: 1}
	require.NoError(t, Detections(&img, dets, style))

	assert.Equal(t, Green, bgrAt(img, 10, 10))
	assert.Equal(t, Orange, bgrAt(img, 50, 50))
	// box interior is untouched
	assert.Equal(t, Black, bgrAt(img, 20, 20))
}

func TestDetectionsWithLabels(t *testing.T) {

	img := blackFrame(200, 200)
	defer img.Close()

	d := detection.New(detection.Fused, detection.BBox{X: 50, Y: 80, Width: 60, Height: 40}, 0.75, 0)
	d.Velocity = &detection.Velocity{VX: 2, VY: 0}

	require.NoError(t, Detections(&img, []detection.Detection{d}, DefaultBoxStyle()))

	// label background sits above the box at its left edge
	assert.Equal(t, Pink, bgrAt(img, 50, 79))
}

func TestLabelPosition(t *testing.T) {

	style := BoxStyle{LineThickness: 2, Alignment: Left}
	size := image.Pt(30, 12)

	assert.Equal(t, image.Pt(9, 38), labelPosition(image.Rect(10, 50, 60, 80), size, style))

	// no room above the box
	assert.Equal(t, image.Pt(9, 5), labelPosition(image.Rect(10, 5, 60, 80), size, style))

	style.Alignment = Center
	assert.Equal(t, image.Pt(20, 38), labelPosition(image.Rect(10, 50, 60, 80), size, style))

	style.Alignment = Right
	assert.Equal(t, image.Pt(31, 38), labelPosition(image.Rect(10, 50, 60, 80), size, style))
}

func TestTTFLabeler(t *testing.T) {

	lab, err := NewTTFLabelerFromBytes(goregular.TTF, 14)
	require.NoError(t, err)
	defer lab.Close()

	size := lab.Size("motion 0.90")
	assert.Greater(t, size.X, 8)
	assert.Greater(t, size.Y, 8)

	img := blackFrame(120, 40)
	defer img.Close()

	red := color.RGBA{R: 255, A: 255}
	require.NoError(t, lab.Label(&img, "motion 0.90", image.Pt(0, 0), red))

	// padding keeps the corner free of glyphs
	assert.Equal(t, red, bgrAt(img, 1, 1))

	// partially and fully outside the image
	assert.NoError(t, lab.Label(&img, "motion 0.90", image.Pt(100, 30), red))
	assert.NoError(t, lab.Label(&img, "motion 0.90", image.Pt(500, 500), red))
	assert.Equal(t, red, bgrAt(img, 100, 30))
}

func TestBadFontData(t *testing.T) {
	_, err := NewTTFLabelerFromBytes([]byte("not a font"), 12)
	assert.Error(t, err)

	_, err = NewTTFLabeler("does-not-exist.ttf", 12)
	assert.Error(t, err)
}

func TestMask(t *testing.T) {

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 10, 10, gocv.MatTypeCV8UC3)
	defer img.Close()

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 10, 10, gocv.MatTypeCV8UC1)
	defer mask.Close()

	gocv.Rectangle(&mask, image.Rect(5, 0, 10, 10), White, -1)

	require.NoError(t, Mask(&img, mask, Black, 1))

	assert.Equal(t, Black, bgrAt(img, 2, 5))
	assert.Equal(t, White, bgrAt(img, 7, 5))

	small := gocv.NewMatWithSize(5, 5, gocv.MatTypeCV8UC1)
	defer small.Close()

	assert.Error(t, Mask(&img, small, Black, 0.5))
}

func TestMetricsLines(t *testing.T) {

	lines := metricsLines(streamdetect.MetricsSnapshot{
		FPS:              29.5,
		Dropped:          2,
		MotionMode:       "static",
		ModelState:       "steady",
		ExecutionPath:    "cpu",
		OverBudgetStreak: 3,
		AvgStageMS: map[streamdetect.Stage]float64{
			streamdetect.StageTotal:  12.3,
			streamdetect.StageMotion: 8,
		},
	})

	assert.Equal(t, []string{
		"FPS 29.5  dropped 2",
		"motion static steady (cpu)",
		"motion 8.0ms",
		"total 12.3ms",
		"over budget x3",
	}, lines)

	img := blackFrame(200, 200)
	defer img.Close()

	assert.NoError(t, Metrics(&img, streamdetect.MetricsSnapshot{FPS: 1}, DefaultFont()))
}
