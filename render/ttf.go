package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// TTFLabeler draws labels with a TrueType or OpenType font.  It is slower
// than the Hershey Font but can render any glyph in the font file.
type TTFLabeler struct {
	face    font.Face
	color   color.RGBA
	padding int
	ascent  int
	height  int
}

// NewTTFLabeler loads the font file at path and creates a face of the given
// point size
func NewTTFLabeler(path string, size float64) (*TTFLabeler, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	return NewTTFLabelerFromBytes(data, size)
}

// NewTTFLabelerFromBytes creates a labeler from font file data
func NewTTFLabelerFromBytes(data []byte, size float64) (*TTFLabeler, error) {

	f, err := opentype.Parse(data)

	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create type face: %w", err)
	}

	m := face.Metrics()

	return &TTFLabeler{
		face:    face,
		color:   White,
		padding: 4,
		ascent:  m.Ascent.Ceil(),
		height:  m.Ascent.Ceil() + m.Descent.Ceil(),
	}, nil
}

// SetColor sets the text color
func (t *TTFLabeler) SetColor(c color.RGBA) {
	t.color = c
}

// Size implements Labeler
func (t *TTFLabeler) Size(text string) image.Point {
	w := font.MeasureString(t.face, text).Ceil()
	return image.Pt(w+2*t.padding, t.height+2*t.padding)
}

// Label implements Labeler.  The label is drawn into an RGBA patch the size
// of the box and copied over the image region.
func (t *TTFLabeler) Label(img *gocv.Mat, text string, pt image.Point, bg color.RGBA) error {

	box := image.Rectangle{Min: pt, Max: pt.Add(t.Size(text))}
	clipped := box.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	if clipped.Empty() {
		return nil
	}

	rgba := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(t.color),
		Face: t.face,
		Dot:  fixed.P(t.padding, t.padding+t.ascent),
	}
	dr.DrawString(text)

	// only the part of the patch inside the image is copied
	visible := rgba.SubImage(clipped.Sub(pt)).(*image.RGBA)
	patch := image.NewRGBA(image.Rect(0, 0, clipped.Dx(), clipped.Dy()))
	draw.Draw(patch, patch.Bounds(), visible, visible.Bounds().Min, draw.Src)

	src, err := gocv.NewMatFromBytes(patch.Bounds().Dy(), patch.Bounds().Dx(), gocv.MatTypeCV8UC4, patch.Pix)

	if err != nil {
		return fmt.Errorf("error creating Mat from RGBA: %w", err)
	}

	defer src.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()

	gocv.CvtColor(src, &bgr, gocv.ColorRGBAToBGR)

	roi := img.Region(clipped)
	defer roi.Close()

	bgr.CopyTo(&roi)

	return nil
}

// Close frees the font face
func (t *TTFLabeler) Close() error {
	return t.face.Close()
}
