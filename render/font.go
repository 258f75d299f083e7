package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Labeler draws text labels on a filled background
type Labeler interface {
	// Size returns the dimensions of the label box for text, including
	// padding
	Size(text string) image.Point
	// Label draws text on a box filled with bg whose top left corner is at
	// pt.  The box is clipped to the image.
	Label(img *gocv.Mat, text string, pt image.Point, bg color.RGBA) error
}

type Alignment int

const (
	Left   Alignment = 1
	Center Alignment = 2
	Right  Alignment = 3
)

// Font defines the parameters for rendering text on an image using one of
// the Hershey fonts built into OpenCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
	}
}

// Size implements Labeler
func (f Font) Size(text string) image.Point {
	sz := gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)
	return image.Pt(sz.X+f.LeftPad+f.RightPad, sz.Y+f.TopPad+f.BottomPad)
}

// Label implements Labeler
func (f Font) Label(img *gocv.Mat, text string, pt image.Point, bg color.RGBA) error {

	sz := f.Size(text)
	gocv.Rectangle(img, image.Rectangle{Min: pt, Max: pt.Add(sz)}, bg, -1)

	// text origin is the bottom left corner of the baseline
	gocv.PutTextWithParams(img, text, image.Pt(pt.X+f.LeftPad, pt.Y+sz.Y-f.BottomPad),
		f.Face, f.Scale, f.Color, f.Thickness, f.LineType, false)

	return nil
}
