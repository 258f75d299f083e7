package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-streamdetect"
	"gocv.io/x/gocv"
)

// Metrics renders the pipeline state and the average stage timings as a
// column of labels in the top left corner of img
func Metrics(img *gocv.Mat, m streamdetect.MetricsSnapshot, lab Labeler) error {
	return textPanel(img, metricsLines(m), lab, image.Pt(0, 0))
}

// metricsLines formats a snapshot one value per line
func metricsLines(m streamdetect.MetricsSnapshot) []string {

	lines := []string{
		fmt.Sprintf("FPS %.1f  dropped %d", m.FPS, m.Dropped),
	}

	if m.MotionMode != "" {
		lines = append(lines, fmt.Sprintf("motion %s %s (%s)", m.MotionMode, m.ModelState, m.ExecutionPath))
	}

	// stages in pipeline order, total last
	stages := []streamdetect.Stage{
		streamdetect.StagePreprocess, streamdetect.StageMotion, streamdetect.StageColor,
		streamdetect.StageFusion, streamdetect.StageTemporal, streamdetect.StageCleanup,
		streamdetect.StageMask,
		streamdetect.StageTotal,
	}

	for _, s := range stages {
		if ms, ok := m.AvgStageMS[s]; ok {
			lines = append(lines, fmt.Sprintf("%s %.1fms", s, ms))
		}
	}

	if m.OverBudgetStreak > 0 {
		lines = append(lines, fmt.Sprintf("over budget x%d", m.OverBudgetStreak))
	}

	return lines
}

// textPanel stacks one label per line starting at origin
func textPanel(img *gocv.Mat, lines []string, lab Labeler, origin image.Point) error {

	bg := color.RGBA{R: 0, G: 0, B: 0, A: 255}
	pt := origin

	for _, line := range lines {
		if err := lab.Label(img, line, pt, bg); err != nil {
			return fmt.Errorf("error drawing metrics: %w", err)
		}
		pt.Y += lab.Size(line).Y
	}

	return nil
}

// Mask shades the pixels of img where mask is zero with clr at the given
// alpha transparency.  mask must be a single channel Mat of the same size
// as img.
func Mask(img *gocv.Mat, mask gocv.Mat, clr color.RGBA, alpha float32) error {

	width := img.Cols()
	height := img.Rows()

	if img.Channels() != 3 || mask.Cols() != width || mask.Rows() != height || mask.Channels() != 1 {
		return fmt.Errorf("mask size %dx%d does not match image %dx%d", mask.Cols(), mask.Rows(), width, height)
	}

	// it is too slow to manipulate pixel by pixel using GoCV due to slowness
	// over CGO.  So we copy the bytes from the source image and manipulate
	// the bytes directly before copying back to a Mat
	imgData := img.ToBytes()
	maskData := mask.ToBytes()

	for idx, m := range maskData {

		if m != 0 {
			continue
		}

		pixelPos := idx * 3

		b, g, r := imgData[pixelPos+0], imgData[pixelPos+1], imgData[pixelPos+2]

		imgData[pixelPos+0] = uint8(float32(b)*(1-alpha) + float32(clr.B)*alpha)
		imgData[pixelPos+1] = uint8(float32(g)*(1-alpha) + float32(clr.G)*alpha)
		imgData[pixelPos+2] = uint8(float32(r)*(1-alpha) + float32(clr.R)*alpha)
	}

	tmpImg, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, imgData)

	if err != nil {
		return fmt.Errorf("error creating Mat: %w", err)
	}

	defer tmpImg.Close()
	tmpImg.CopyTo(img)

	return nil
}
