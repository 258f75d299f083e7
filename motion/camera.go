package motion

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// ratioTest is the Lowe ratio between the best and second best match
	ratioTest = 0.7
	// minMatches is the fewest good matches a transform is fitted to
	minMatches = 8
	// flowScale is the downscale factor of the dense flow field
	flowScale = 4
)

// estimator measures the camera motion between two gray frames as a
// transform mapping points of prev onto cur
type estimator interface {
	estimate(prev, cur gocv.Mat) (*mat.Dense, error)
	Close() error
}

// sparseEstimator fits a similarity transform to matched ORB keypoints
type sparseEstimator struct {
	orb     gocv.ORB
	matcher gocv.BFMatcher
	noMask  gocv.Mat
}

func newSparseEstimator() *sparseEstimator {
	return &sparseEstimator{
		orb:     gocv.NewORB(),
		matcher: gocv.NewBFMatcherWithParams(gocv.NormHamming, false),
		noMask:  gocv.NewMat(),
	}
}

func (s *sparseEstimator) estimate(prev, cur gocv.Mat) (*mat.Dense, error) {

	kp1, desc1 := s.orb.DetectAndCompute(prev, s.noMask)
	defer desc1.Close()

	kp2, desc2 := s.orb.DetectAndCompute(cur, s.noMask)
	defer desc2.Close()

	if len(kp1) < minMatches || len(kp2) < minMatches || desc1.Empty() || desc2.Empty() {
		return nil, fmt.Errorf("%w: too few keypoints (%d, %d)", ErrEstimationFailed, len(kp1), len(kp2))
	}

	var from, to []gocv.Point2f

	for _, m := range s.matcher.KnnMatch(desc1, desc2, 2) {
		if len(m) < 2 || m[0].Distance >= ratioTest*m[1].Distance {
			continue
		}

		a := kp1[m[0].QueryIdx]
		b := kp2[m[0].TrainIdx]

		from = append(from, gocv.Point2f{X: float32(a.X), Y: float32(a.Y)})
		to = append(to, gocv.Point2f{X: float32(b.X), Y: float32(b.Y)})
	}

	if len(from) < minMatches {
		return nil, fmt.Errorf("%w: %d good matches", ErrEstimationFailed, len(from))
	}

	fromVec := gocv.NewPoint2fVectorFromPoints(from)
	defer fromVec.Close()

	toVec := gocv.NewPoint2fVectorFromPoints(to)
	defer toVec.Close()

	affine := gocv.EstimateAffinePartial2D(fromVec, toVec)
	defer affine.Close()

	if affine.Empty() {
		return nil, fmt.Errorf("%w: no consistent transform", ErrEstimationFailed)
	}

	return fromAffineMat(affine), nil
}

func (s *sparseEstimator) Close() error {
	s.noMask.Close()
	s.matcher.Close()
	return s.orb.Close()
}

// denseEstimator measures camera motion from a downscaled Farneback flow
// field
type denseEstimator struct {
	prev gocv.Mat
	cur  gocv.Mat
	flow gocv.Mat
}

func newDenseEstimator() *denseEstimator {
	return &denseEstimator{
		prev: gocv.NewMat(),
		cur:  gocv.NewMat(),
		flow: gocv.NewMat(),
	}
}

// field returns the x and y flow components in full resolution pixels
func (d *denseEstimator) field(prev, cur gocv.Mat) (dx, dy []float64, err error) {

	size := image.Pt(max(1, prev.Cols()/flowScale), max(1, prev.Rows()/flowScale))

	gocv.Resize(prev, &d.prev, size, 0, 0, gocv.InterpolationArea)
	gocv.Resize(cur, &d.cur, size, 0, 0, gocv.InterpolationArea)

	gocv.CalcOpticalFlowFarneback(d.prev, d.cur, &d.flow, 0.5, 3, 15, 3, 5, 1.2, 0)

	data, err := d.flow.DataPtrFloat32()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEstimationFailed, err)
	}

	n := len(data) / 2
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: empty flow field", ErrEstimationFailed)
	}

	dx = make([]float64, n)
	dy = make([]float64, n)

	for i := 0; i < n; i++ {
		dx[i] = float64(data[2*i]) * flowScale
		dy[i] = float64(data[2*i+1]) * flowScale
	}

	return dx, dy, nil
}

// estimate returns the median flow as a pure translation
func (d *denseEstimator) estimate(prev, cur gocv.Mat) (*mat.Dense, error) {

	dx, dy, err := d.field(prev, cur)
	if err != nil {
		return nil, err
	}

	return translation(median(dx), median(dy)), nil
}

// magnitude returns the mean flow magnitude between two frames
func (d *denseEstimator) magnitude(prev, cur gocv.Mat) (float64, error) {

	dx, dy, err := d.field(prev, cur)
	if err != nil {
		return 0, err
	}

	mags := make([]float64, len(dx))
	for i := range dx {
		mags[i] = math.Hypot(dx[i], dy[i])
	}

	return stat.Mean(mags, nil), nil
}

func (d *denseEstimator) Close() error {
	d.prev.Close()
	d.cur.Close()
	return d.flow.Close()
}

// median sorts x in place and returns its median
func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sort.Float64s(x)
	return stat.Quantile(0.5, stat.Empirical, x, nil)
}

// transforms are 3x3 homogeneous matrices whose last row is [0 0 1]

func identity() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func translation(tx, ty float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, tx, 0, 1, ty, 0, 0, 1})
}

// blend weights t by strength and the identity by 1-strength
func blend(t *mat.Dense, strength float64) *mat.Dense {
	var a, b mat.Dense
	a.Scale(strength, t)
	b.Scale(1-strength, identity())
	a.Add(&a, &b)
	return &a
}

func compose(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

func invert(t *mat.Dense) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(t); err != nil {
		return nil, fmt.Errorf("%w: singular transform: %v", ErrEstimationFailed, err)
	}
	return &inv, nil
}

func isIdentity(t *mat.Dense) bool {
	return mat.EqualApprox(t, identity(), 1e-9)
}

// shift returns the translation component of t
func shift(t *mat.Dense) float64 {
	return math.Hypot(t.At(0, 2), t.At(1, 2))
}

// fromAffineMat converts a 2x3 CV_64F affine Mat to a transform
func fromAffineMat(m gocv.Mat) *mat.Dense {
	t := identity()
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			t.Set(r, c, m.GetDoubleAt(r, c))
		}
	}
	return t
}

// toAffineMat converts a transform to the 2x3 CV_64F Mat WarpAffine takes.
// The caller closes the returned Mat.
func toAffineMat(t *mat.Dense) gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, t.At(r, c))
		}
	}
	return m
}
