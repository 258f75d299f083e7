package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/swdee/go-streamdetect/detection"
	"gocv.io/x/gocv"
)

func TestResizerScale(t *testing.T) {

	tests := []struct {
		srcWidth      int
		srcHeight     int
		maxWidth      int
		maxHeight     int
		expectedW     int
		expectedH     int
		expectedScale float64
	}{
		{1920, 1080, 1280, 720, 1280, 720, 2.0 / 3.0},
		{1280, 720, 1280, 720, 1280, 720, 1},
		{640, 480, 1280, 720, 640, 480, 1},
		{1000, 2000, 1280, 720, 360, 720, 0.36},
		{3840, 2160, 0, 0, 3840, 2160, 1},
	}

	for _, tc := range tests {
		r := NewResizer(tc.srcWidth, tc.srcHeight, tc.maxWidth, tc.maxHeight)
		w, h := r.Size()

		assert.Equal(t, tc.expectedW, w, "src %dx%d", tc.srcWidth, tc.srcHeight)
		assert.Equal(t, tc.expectedH, h, "src %dx%d", tc.srcWidth, tc.srcHeight)
		assert.InDelta(t, tc.expectedScale, r.ScaleFactor(), 1e-9)
	}
}

func TestResizerResizeAndMapBack(t *testing.T) {

	img := gocv.NewMatWithSize(200, 400, gocv.MatTypeCV8UC3)
	defer img.Close()
	dest := gocv.NewMat()
	defer dest.Close()

	r := NewResizer(400, 200, 200, 200)
	r.Resize(img, &dest)

	assert.Equal(t, 200, dest.Cols())
	assert.Equal(t, 100, dest.Rows())
	assert.False(t, r.Passthrough())

	d := detection.New(detection.Motion, detection.BBox{X: 10, Y: 10, Width: 20, Height: 20}, 1, 0)
	out := r.ToSource([]detection.Detection{d})

	assert.Equal(t, detection.BBox{X: 20, Y: 20, Width: 40, Height: 40}, out[0].BBox)
	assert.Equal(t, detection.Point{X: 40, Y: 40}, out[0].Centroid)
	assert.True(t, r.Matches(400, 200))
}
