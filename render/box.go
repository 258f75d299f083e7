package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-streamdetect/detection"
	"gocv.io/x/gocv"
)

// BoxStyle defines how detection boxes are drawn
type BoxStyle struct {
	Labeler       Labeler
	LineThickness int
	// Alignment of the text label to the bounding box
	Alignment Alignment
	// ColorByID uses the detection ID to pick the box color instead of the
	// detection type
	ColorByID bool
	// Contours draws the region outline when the detection has one
	Contours bool
	// Velocity draws an arrow from the centroid along the velocity vector
	// scaled by VelocityScale frames
	Velocity      bool
	VelocityScale float64
}

// DefaultBoxStyle returns default box style settings
func DefaultBoxStyle() BoxStyle {
	return BoxStyle{
		Labeler:       DefaultFont(),
		LineThickness: 2,
		Alignment:     Left,
		Contours:      true,
		Velocity:      true,
		VelocityScale: 5,
	}
}

// boxLabel defines where the detection label should be rendered on the
// source image
type boxLabel struct {
	pt   image.Point
	clr  color.RGBA
	text string
}

// Detections renders the bounding boxes, outlines and labels of the
// detections onto img
func Detections(img *gocv.Mat, dets []detection.Detection, style BoxStyle) error {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dets))

	for _, det := range dets {

		useClr := TypeColor(det.Type)
		if style.ColorByID {
			useClr = IDColor(det.ID)
		}

		rect := det.BBox.Rect()
		gocv.Rectangle(img, rect, useClr, style.LineThickness)

		if style.Contours && len(det.Contour) > 2 {
			pv := gocv.NewPointsVectorFromPoints([][]image.Point{det.Contour})
			gocv.DrawContours(img, pv, -1, useClr, 1)
			pv.Close()
		}

		if style.Velocity && det.Velocity != nil {
			from := image.Pt(int(det.Centroid.X), int(det.Centroid.Y))
			to := image.Pt(
				int(det.Centroid.X+det.Velocity.VX*style.VelocityScale),
				int(det.Centroid.Y+det.Velocity.VY*style.VelocityScale),
			)

			if from != to {
				gocv.ArrowedLine(img, from, to, Cyan, style.LineThickness)
			}
		}

		if style.Labeler == nil {
			continue
		}

		text := fmt.Sprintf("%s %.2f", det.Type, det.Confidence)
		size := style.Labeler.Size(text)

		boxLabels = append(boxLabels, boxLabel{
			pt:   labelPosition(rect, size, style),
			clr:  useClr,
			text: text,
		})
	}

	// draw all labels last so they are the top most layer and don't get
	// overlapped by the boxes of neighbouring detections
	for _, lbl := range boxLabels {
		if err := style.Labeler.Label(img, lbl.text, lbl.pt, lbl.clr); err != nil {
			return fmt.Errorf("error drawing label: %w", err)
		}
	}

	return nil
}

// labelPosition returns the top left corner of a label of the given size
// sitting on top of the box
func labelPosition(rect image.Rectangle, size image.Point, style BoxStyle) image.Point {

	var x int

	switch style.Alignment {
	case Center:
		x = (rect.Min.X+rect.Max.X)/2 - size.X/2

	case Right:
		x = rect.Max.X - size.X + style.LineThickness/2

	case Left:
		fallthrough
	default:
		x = rect.Min.X - style.LineThickness/2
	}

	y := rect.Min.Y - size.Y

	// labels at the top of the frame go inside the box
	if y < 0 {
		y = rect.Min.Y
	}

	return image.Pt(x, y)
}
