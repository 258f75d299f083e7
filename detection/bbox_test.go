package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoU(t *testing.T) {

	tests := []struct {
		name string
		a, b BBox
		want float64
	}{
		{"identical", BBox{0, 0, 10, 10}, BBox{0, 0, 10, 10}, 1},
		{"disjoint", BBox{0, 0, 10, 10}, BBox{20, 20, 10, 10}, 0},
		{"touching", BBox{0, 0, 10, 10}, BBox{10, 0, 10, 10}, 0},
		{"half", BBox{0, 0, 10, 10}, BBox{5, 0, 10, 10}, 50.0 / 150.0},
		{"contained", BBox{0, 0, 10, 10}, BBox{0, 0, 5, 10}, 0.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, IoU(tc.a, tc.b), 1e-9)
			assert.InDelta(t, tc.want, IoU(tc.b, tc.a), 1e-9)
		})
	}
}

func TestBBoxGeometry(t *testing.T) {

	a := BBox{X: 10, Y: 10, Width: 20, Height: 10}
	b := BBox{X: 25, Y: 5, Width: 10, Height: 10}

	assert.Equal(t, BBox{X: 10, Y: 5, Width: 25, Height: 15}, a.Union(b))
	assert.Equal(t, BBox{X: 25, Y: 10, Width: 5, Height: 5}, a.Intersect(b))
	assert.Equal(t, Point{X: 20, Y: 15}, a.Center())
	assert.InDelta(t, 2.0, a.AspectRatio(), 1e-9)
	assert.True(t, a.Union(b).Contains(a))
	assert.True(t, a.Union(b).Contains(b))
	assert.Equal(t, a, BBox{}.Union(a))
}

func TestBBoxClampAndScale(t *testing.T) {

	b := BBox{X: -5, Y: 90, Width: 20, Height: 20}
	assert.Equal(t, BBox{X: 0, Y: 90, Width: 15, Height: 10}, b.Clamp(100, 100))

	s := BBox{X: 10, Y: 20, Width: 30, Height: 40}.Scale(2, 0.5)
	assert.Equal(t, BBox{X: 20, Y: 10, Width: 60, Height: 20}, s)

	// rounding outward keeps the scaled region covered
	s = BBox{X: 1, Y: 1, Width: 1, Height: 1}.Scale(1.5, 1.5)
	assert.Equal(t, BBox{X: 1, Y: 1, Width: 2, Height: 2}, s)
}
