package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/swdee/go-streamdetect/detection"
)

func TestNMSKeepsHighestScoringPerLabel(t *testing.T) {

	boxes := []detection.BBox{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 1, Y: 1, Width: 10, Height: 10},
		{X: 50, Y: 50, Width: 10, Height: 10},
		// overlaps box 0 but carries another label
		{X: 0, Y: 0, Width: 10, Height: 10},
	}
	scores := []float64{0.6, 0.9, 0.5, 0.7}
	labels := []int{1, 1, 1, 2}

	keep := NMS(boxes, scores, labels, 0.5)

	assert.Equal(t, []int{1, 3, 2}, keep)
}

func TestNMSClassAgnostic(t *testing.T) {

	boxes := []detection.BBox{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: 0, Width: 10, Height: 10},
	}

	keep := NMS(boxes, []float64{0.2, 0.8}, nil, 0.5)

	assert.Equal(t, []int{1}, keep)
}

func TestMergeBoxesGrowsKeptBox(t *testing.T) {

	boxes := []detection.BBox{
		{X: 0, Y: 0, Width: 10, Height: 10},
		{X: 2, Y: 0, Width: 10, Height: 10},
		{X: 40, Y: 40, Width: 5, Height: 5},
	}
	scores := []float64{0.4, 0.8, 0.3}

	merged := MergeBoxes(boxes, scores, nil, 0.5)

	assert.Len(t, merged, 2)
	assert.Equal(t, 1, merged[0].Index)
	assert.Equal(t, detection.BBox{X: 0, Y: 0, Width: 12, Height: 10}, merged[0].BBox)
	assert.Equal(t, 0.8, merged[0].Score)
	assert.Equal(t, []int{1, 0}, merged[0].Members)
	assert.Equal(t, boxes[2], merged[1].BBox)
}

func TestSmallBoxCovered(t *testing.T) {

	boxes := []detection.BBox{
		{X: 0, Y: 0, Width: 100, Height: 100},
		{X: 90, Y: 10, Width: 12, Height: 10},
	}

	// IoU is tiny yet most of the small box sits inside the large one
	assert.False(t, IoUAbove(boxes, 0.5)(0, 1))
	assert.True(t, SmallBoxCovered(boxes, 0.7)(0, 1))

	clusters := GreedyClusters(2, []float64{0.9, 0.8},
		AnyOf(IoUAbove(boxes, 0.5), SmallBoxCovered(boxes, 0.7)))
	assert.Equal(t, [][]int{{0, 1}}, clusters)
}
