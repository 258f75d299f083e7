package detection

import (
	"image"
	"math"
)

// BBox is an axis aligned bounding box in frame pixel coordinates
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromRect converts an image.Rectangle to a BBox
func FromRect(r image.Rectangle) BBox {
	r = r.Canon()
	return BBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the box as an image.Rectangle
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Right returns the exclusive right edge
func (b BBox) Right() int {
	return b.X + b.Width
}

// Bottom returns the exclusive bottom edge
func (b BBox) Bottom() int {
	return b.Y + b.Height
}

// Area of the box in pixels
func (b BBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Empty reports whether the box has no area
func (b BBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Center returns the centre point of the box
func (b BBox) Center() Point {
	return Point{
		X: float64(b.X) + float64(b.Width)/2,
		Y: float64(b.Y) + float64(b.Height)/2,
	}
}

// AspectRatio returns width/height, or 0 for a degenerate box
func (b BBox) AspectRatio() float64 {
	if b.Height <= 0 {
		return 0
	}
	return float64(b.Width) / float64(b.Height)
}

// Union returns the smallest box containing both boxes
func (b BBox) Union(o BBox) BBox {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return FromRect(b.Rect().Union(o.Rect()))
}

// Intersect returns the overlapping region of both boxes, which is empty when
// they do not overlap
func (b BBox) Intersect(o BBox) BBox {
	return FromRect(b.Rect().Intersect(o.Rect()))
}

// Contains reports whether o lies fully inside b
func (b BBox) Contains(o BBox) bool {
	return o.Rect().In(b.Rect())
}

// Clamp restricts the box to the given frame bounds
func (b BBox) Clamp(width, height int) BBox {
	return FromRect(b.Rect().Intersect(image.Rect(0, 0, width, height)))
}

// Scale multiplies the box coordinates by the given factors, rounding outward
// so the scaled box still covers the original region
func (b BBox) Scale(sx, sy float64) BBox {
	x1 := int(math.Floor(float64(b.X) * sx))
	y1 := int(math.Floor(float64(b.Y) * sy))
	x2 := int(math.Ceil(float64(b.Right()) * sx))
	y2 := int(math.Ceil(float64(b.Bottom()) * sy))
	return BBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Translate offsets the box by dx, dy
func (b BBox) Translate(dx, dy int) BBox {
	b.X += dx
	b.Y += dy
	return b
}

// IoU calculates the Intersection over Union of two boxes
func IoU(a, b BBox) float64 {
	inter := a.Intersect(b).Area()
	if inter == 0 {
		return 0
	}

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}

	return float64(inter) / float64(union)
}

// Point is a sub-pixel location in frame coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the euclidean distance between two points
func (p Point) Distance(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}
