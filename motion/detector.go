// Package motion finds regions that differ from a continuously updated model
// of the expected scene, compensating for camera motion when the camera
// moves.
package motion

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-streamdetect/detection"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ModelState is the lifecycle state of the background model
type ModelState string

const (
	Uninitialized ModelState = "uninitialized"
	// Learning frames update the model but emit no detections
	Learning ModelState = "learning"
	Steady   ModelState = "steady"
	// Reset is entered on algorithm or resolution change and left on the
	// next frame
	Reset ModelState = "reset"
)

// Detector is the MotionDetector.  It owns the background model, the camera
// motion estimators and the mode state of one stream session.
type Detector struct {
	cfg    Config
	params modelParams
	logger *zap.Logger

	model BackgroundModel
	path  string
	// warned records algorithms whose GPU fallback has been logged
	warned map[Algorithm]bool

	state    ModelState
	learned  int
	size     image.Point
	mode     Mode
	switcher *modeSwitch

	sparse *sparseEstimator
	dense  *denseEstimator
	// toModel maps current frame coordinates into the coordinates the
	// background model was learnt in
	toModel *mat.Dense

	velocity velocityTracker

	gray      gocv.Mat
	prevGray  gocv.Mat
	warped    gocv.Mat
	modelMask gocv.Mat
	mask      gocv.Mat
	kernel    gocv.Mat
}

// Option configures a Detector
type Option func(*Detector)

// WithLogger sets the logger used by the Detector
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// NewDetector returns a MotionDetector for the given parameters
func NewDetector(cfg Config, opts ...Option) (*Detector, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid motion config: %w", err)
	}

	d := &Detector{
		logger:    zap.NewNop(),
		warned:    make(map[Algorithm]bool),
		state:     Uninitialized,
		mode:      Static,
		switcher:  newModeSwitch(cfg.Hysteresis),
		sparse:    newSparseEstimator(),
		dense:     newDenseEstimator(),
		toModel:   identity(),
		gray:      gocv.NewMat(),
		prevGray:  gocv.NewMat(),
		warped:    gocv.NewMat(),
		modelMask: gocv.NewMat(),
		mask:      gocv.NewMat(),
		kernel:    gocv.NewMat(),
	}

	for _, opt := range opts {
		opt(d)
	}

	d.logger = d.logger.With(zap.String("component", "motion"))

	if err := d.apply(cfg); err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

// Configure applies new parameters between frames.  A change of algorithm or
// of any parameter the background model is built from resets the model.
func (d *Detector) Configure(cfg Config) error {

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid motion config: %w", err)
	}

	return d.apply(cfg)
}

func (d *Detector) apply(cfg Config) error {

	old := d.cfg
	d.cfg = cfg
	d.velocity.maxDistance = cfg.MaxMatchDistance

	if old.Hysteresis != cfg.Hysteresis {
		d.switcher.configure(cfg.Hysteresis)
	}

	if old.MorphologySize != cfg.MorphologySize {
		d.kernel.Close()
		if cfg.MorphologySize > 0 {
			d.kernel = gocv.GetStructuringElement(gocv.MorphEllipse,
				image.Pt(cfg.MorphologySize, cfg.MorphologySize))
		} else {
			d.kernel = gocv.NewMat()
		}
	}

	if p := cfg.modelParams(); d.model == nil || p != d.params {
		if err := d.buildModel(p); err != nil {
			return err
		}
		d.Reset()
	}

	return nil
}

// buildModel replaces the background model, trying the GPU path first when
// preferred and falling back to the CPU path
func (d *Detector) buildModel(p modelParams) error {

	var (
		model BackgroundModel
		path  = PathCPU
	)

	if p.preferGPU {
		m, err := newGPUModel(p)

		switch {
		case err == nil:
			model, path = m, PathCUDA

		case errors.Is(err, ErrAlgorithmUnavailable):
			if !d.warned[p.algorithm] {
				d.warned[p.algorithm] = true
				d.logger.Warn("GPU path unavailable, falling back to CPU",
					zap.String("algorithm", string(p.algorithm)), zap.Error(err))
			}

		default:
			return fmt.Errorf("error building %s model: %w", p.algorithm, err)
		}
	}

	if model == nil {
		model = newCPUModel(p, d.logger)
	}

	if d.model != nil {
		d.model.Close()
	}

	d.model, d.path, d.params = model, path, p

	d.logger.Info("background model ready",
		zap.String("algorithm", string(p.algorithm)), zap.String("path", path))

	return nil
}

// Reset discards the learnt model, the camera registration and the velocity
// history.  The next frame starts learning again.
func (d *Detector) Reset() {

	if d.model != nil {
		d.model.Reset()
	}

	if d.state != Uninitialized {
		d.state = Reset
	}
	d.learned = 0
	d.toModel = identity()
	d.velocity.reset()
	d.switcher.reset()
	d.mode = Static

	d.prevGray.Close()
	d.prevGray = gocv.NewMat()
}

// Mode returns the effective camera mode of the last frame, Static or Moving
func (d *Detector) Mode() Mode {
	return d.mode
}

// State returns the background model lifecycle state
func (d *Detector) State() ModelState {
	return d.state
}

// ExecutionPath returns the execution path of the background model, "cpu"
// or "cuda"
func (d *Detector) ExecutionPath() string {
	return d.path
}

// Algorithm returns the active background model algorithm
func (d *Detector) Algorithm() Algorithm {
	return d.model.Algorithm()
}

// Close frees the model and the Mats owned by the detector
func (d *Detector) Close() error {

	var errs []error

	if d.model != nil {
		errs = append(errs, d.model.Close())
	}

	errs = append(errs,
		d.sparse.Close(),
		d.dense.Close(),
		d.gray.Close(),
		d.prevGray.Close(),
		d.warped.Close(),
		d.modelMask.Close(),
		d.mask.Close(),
		d.kernel.Close(),
	)

	return errors.Join(errs...)
}

// Detect updates the model with frame and returns the motion detections.
// frame may be BGR or single channel gray.
func (d *Detector) Detect(frame gocv.Mat, ts float64) ([]detection.Detection, error) {

	if frame.Empty() {
		return nil, errors.New("motion detector given an empty frame")
	}

	switch frame.Channels() {
	case 3:
		gocv.CvtColor(frame, &d.gray, gocv.ColorBGRToGray)
	case 1:
		frame.CopyTo(&d.gray)
	default:
		return nil, fmt.Errorf("motion detector needs a 1 or 3 channel frame, got %d channels", frame.Channels())
	}

	if d.cfg.BlurSize > 1 {
		gocv.GaussianBlur(d.gray, &d.gray, image.Pt(d.cfg.BlurSize, d.cfg.BlurSize), 0, 0, gocv.BorderDefault)
	}

	if size := image.Pt(frame.Cols(), frame.Rows()); size != d.size {
		if d.size != (image.Point{}) {
			d.logger.Info("frame resolution changed, relearning background",
				zap.Int("width", size.X), zap.Int("height", size.Y))
		}
		d.Reset()
		d.size = size
	}

	if d.state == Uninitialized || d.state == Reset {
		d.state = Learning
		d.learned = 0
		if d.cfg.LearningFrames == 0 {
			d.state = Steady
		}
	}

	mode := d.effectiveMode()

	err := d.foreground(mode)
	d.gray.CopyTo(&d.prevGray)

	if err != nil {
		return nil, fmt.Errorf("error applying %s model: %w", d.params.algorithm, err)
	}

	if d.state == Learning {
		d.learned++
		if d.learned >= d.cfg.LearningFrames {
			d.state = Steady
			d.logger.Debug("background model learnt", zap.Int("frames", d.learned))
		}
		return nil, nil
	}

	if !d.kernel.Empty() {
		gocv.MorphologyEx(d.mask, &d.mask, gocv.MorphOpen, d.kernel)
		gocv.MorphologyEx(d.mask, &d.mask, gocv.MorphClose, d.kernel)
	}

	dets := detection.FromMask(d.mask, detection.ComponentOptions{
		Type:      detection.Motion,
		MinArea:   d.cfg.MinArea,
		MaxArea:   d.cfg.MaxArea,
		Timestamp: ts,
		Contours:  true,
	})

	if src, ok := d.model.(velocitySource); ok {
		for i := range dets {
			b := dets[i].BBox
			if vx, vy, ok := src.regionVelocity(b.X, b.Y, b.Width, b.Height); ok {
				dets[i].Velocity = &detection.Velocity{VX: vx, VY: vy}
			}
		}
		return dets, nil
	}

	if err := d.velocity.update(dets); err != nil {
		d.logger.Debug("velocity association failed", zap.Error(err))
	}

	return dets, nil
}

// effectiveMode resolves Auto into Static or Moving for this frame
func (d *Detector) effectiveMode() Mode {

	if d.cfg.Mode != Auto {
		d.mode = d.cfg.Mode
		return d.mode
	}

	if d.prevGray.Empty() {
		return d.mode
	}

	mag, err := d.dense.magnitude(d.prevGray, d.gray)
	if err != nil {
		d.logger.Debug("global motion estimate failed", zap.Error(err))
		return d.mode
	}

	if mode := d.switcher.observe(mag); mode != d.mode {
		d.logger.Info("camera mode changed",
			zap.String("from", string(d.mode)), zap.String("to", string(mode)),
			zap.Float64("magnitude", mag))
		d.mode = mode
	}

	return d.mode
}

// foreground writes the foreground mask of the current gray frame to d.mask
// in frame coordinates
func (d *Detector) foreground(mode Mode) error {

	if m, ok := d.model.(selfRegistering); ok {
		m.setMoving(mode == Moving)
		return d.model.Apply(d.gray, &d.mask)
	}

	if mode == Moving && !d.prevGray.Empty() {
		if err := d.register(); err != nil {
			d.logger.Debug("camera motion unknown, treating frame as static", zap.Error(err))
		}
	}

	if isIdentity(d.toModel) {
		return d.model.Apply(d.gray, &d.mask)
	}

	size := image.Pt(d.gray.Cols(), d.gray.Rows())

	fwd := toAffineMat(d.toModel)
	defer fwd.Close()

	gocv.WarpAffineWithParams(d.gray, &d.warped, fwd, size, gocv.InterpolationLinear,
		gocv.BorderReplicate, color.RGBA{})

	if err := d.model.Apply(d.warped, &d.modelMask); err != nil {
		return err
	}

	inv, err := invert(d.toModel)
	if err != nil {
		return err
	}

	back := toAffineMat(inv)
	defer back.Close()

	gocv.WarpAffineWithParams(d.modelMask, &d.mask, back, size, gocv.InterpolationNearestNeighbor,
		gocv.BorderConstant, color.RGBA{})

	return nil
}

// register estimates the camera motion since the previous frame and folds
// it into toModel.  Once the accumulated shift leaves half the frame the
// model no longer covers the view and learning restarts.
func (d *Detector) register() error {

	var est estimator = d.sparse
	if d.cfg.Registration == Dense {
		est = d.dense
	}

	step, err := est.estimate(d.prevGray, d.gray)
	if err != nil {
		return err
	}

	// step maps previous frame points onto the current frame, its inverse
	// takes the current frame back
	back, err := invert(blend(step, d.cfg.CompensationStrength))
	if err != nil {
		return err
	}

	d.toModel = compose(d.toModel, back)

	if limit := float64(max(d.size.X, d.size.Y)) / 2; shift(d.toModel) > limit {
		d.logger.Info("camera moved out of the learnt view, relearning background",
			zap.Float64("shift", shift(d.toModel)))

		d.model.Reset()
		d.toModel = identity()
		d.state = Learning
		d.learned = 0
	}

	return nil
}
