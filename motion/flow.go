package motion

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// flowModel marks pixels whose dense optical flow exceeds a threshold.  In
// Moving mode the median flow, taken to be the camera, is subtracted first.
type flowModel struct {
	threshold float64
	moving    bool
	prev      gocv.Mat
	flow      gocv.Mat
	// residual holds the last interleaved x,y flow after compensation
	residual []float64
	cols     int
	rows     int
}

func newFlowModel(p modelParams) *flowModel {
	return &flowModel{
		threshold: p.flowThreshold(),
		prev:      gocv.NewMat(),
		flow:      gocv.NewMat(),
	}
}

func (f *flowModel) setMoving(moving bool) {
	f.moving = moving
}

func (f *flowModel) Apply(gray gocv.Mat, mask *gocv.Mat) error {

	if f.prev.Empty() || !sameSize(f.prev, gray) {
		gray.CopyTo(&f.prev)
		f.residual = nil
		zeroMask(gray, mask)
		return nil
	}

	gocv.CalcOpticalFlowFarneback(f.prev, gray, &f.flow, 0.5, 3, 15, 3, 5, 1.2, 0)
	gray.CopyTo(&f.prev)

	data, err := f.flow.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("error reading flow field: %w", err)
	}

	f.cols, f.rows = gray.Cols(), gray.Rows()
	n := f.cols * f.rows

	if cap(f.residual) < 2*n {
		f.residual = make([]float64, 2*n)
	}
	f.residual = f.residual[:2*n]

	var camX, camY float64

	if f.moving {
		dx := make([]float64, n)
		dy := make([]float64, n)
		for i := 0; i < n; i++ {
			dx[i] = float64(data[2*i])
			dy[i] = float64(data[2*i+1])
		}
		camX, camY = median(dx), median(dy)
	}

	out := make([]byte, n)

	for i := 0; i < n; i++ {
		x := float64(data[2*i]) - camX
		y := float64(data[2*i+1]) - camY
		f.residual[2*i], f.residual[2*i+1] = x, y

		if math.Hypot(x, y) > f.threshold {
			out[i] = 255
		}
	}

	m, err := gocv.NewMatFromBytes(f.rows, f.cols, gocv.MatTypeCV8UC1, out)
	if err != nil {
		return fmt.Errorf("error building flow mask: %w", err)
	}
	defer m.Close()

	m.CopyTo(mask)

	return nil
}

// regionVelocity returns the mean residual flow inside the box
func (f *flowModel) regionVelocity(x, y, w, h int) (float64, float64, bool) {

	if f.residual == nil {
		return 0, 0, false
	}

	var sx, sy float64
	n := 0

	for r := max(0, y); r < min(f.rows, y+h); r++ {
		for c := max(0, x); c < min(f.cols, x+w); c++ {
			i := 2 * (r*f.cols + c)
			sx += f.residual[i]
			sy += f.residual[i+1]
			n++
		}
	}

	if n == 0 {
		return 0, 0, false
	}

	return sx / float64(n), sy / float64(n), true
}

func (f *flowModel) Reset() {
	f.prev.Close()
	f.prev = gocv.NewMat()
	f.residual = nil
}

func (f *flowModel) Close() error {
	f.flow.Close()
	return f.prev.Close()
}

func (f *flowModel) Algorithm() Algorithm {
	return OpticalFlow
}
