package preprocess

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-streamdetect/detection"
	"gocv.io/x/gocv"
)

func TestComputePositionsCoverAxis(t *testing.T) {

	s := NewSAHI(640, 640, 0.2, 0.2)

	tests := []struct {
		srcLen int
	}{
		{1920}, {4000}, {800}, {769},
	}

	for _, tc := range tests {
		pos, tileLen := s.computePositions(tc.srcLen, 640, 0.2)

		require.NotEmpty(t, pos)
		assert.Equal(t, 0, pos[0])
		assert.Equal(t, tc.srcLen, pos[len(pos)-1]+tileLen, "src %d not covered", tc.srcLen)

		for i := 1; i < len(pos); i++ {
			overlap := pos[i-1] + tileLen - pos[i]
			assert.GreaterOrEqual(t, overlap, 128, "src %d overlap too small", tc.srcLen)
		}
	}
}

func TestComputePositionsShortAxis(t *testing.T) {

	s := NewSAHI(640, 640, 0.2, 0.2)
	pos, tileLen := s.computePositions(500, 640, 0.2)

	assert.Equal(t, []int{0}, pos)
	assert.Equal(t, 500, tileLen)
}

func TestSAHIMergesAcrossTiles(t *testing.T) {

	img := gocv.NewMatWithSize(400, 1000, gocv.MatTypeCV8UC3)
	defer img.Close()

	s := NewSAHI(400, 400, 0.2, 0.2)
	slices := s.Slice(img)
	require.Len(t, slices, 3)

	for _, sl := range slices {
		assert.True(t, sl.Rect().In(image.Rect(0, 0, 1000, 400)))
	}

	// the same object seen by two neighbouring tiles
	first, second := slices[0], slices[1]
	objX := second.X + 10

	s.AddResult(first, []detection.Detection{
		detection.New(detection.Color, detection.BBox{X: objX - first.X, Y: 100, Width: 30, Height: 30}, 0.6, 0),
	})
	s.AddResult(second, []detection.Detection{
		detection.New(detection.Color, detection.BBox{X: 10, Y: 100, Width: 30, Height: 30}, 0.8, 0),
		detection.New(detection.Color, detection.BBox{X: 200, Y: 10, Width: 10, Height: 10}, 0.3, 0),
	})

	out := s.Detections(0.5, 0.7)
	require.Len(t, out, 2)

	assert.Equal(t, detection.BBox{X: objX, Y: 100, Width: 30, Height: 30}, out[0].BBox)
	assert.Equal(t, 0.8, out[0].Confidence)
	assert.NotEqual(t, out[0].ID, out[1].ID)

	s.FreeResults()
	assert.Empty(t, s.Detections(0.5, 0.7))

	for _, sl := range slices {
		assert.NoError(t, sl.Free())
	}
}
