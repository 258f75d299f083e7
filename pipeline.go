package streamdetect

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/swdee/go-streamdetect/color"
	"github.com/swdee/go-streamdetect/detection"
	"github.com/swdee/go-streamdetect/motion"
	"github.com/swdee/go-streamdetect/postprocess"
	"github.com/swdee/go-streamdetect/preprocess"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Stage names a step of the per frame pipeline
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageMotion     Stage = "motion"
	StageColor      Stage = "color"
	StageFusion     Stage = "fusion"
	StageTemporal   Stage = "temporal"
	StageCleanup    Stage = "cleanup"
	// StageMask scales detections back to the frame, applies the processing
	// mask and assigns ids
	StageMask Stage = "mask"
	// StageTotal is the time of the whole Process call
	StageTotal Stage = "total"
)

// Timings holds the time in milliseconds each stage took on a frame.  Stages
// that did not run are absent.
type Timings map[Stage]float64

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger used by the pipeline and its stages
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.base = l
	}
}

// WithClock sets the clock stage timings are measured with
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithPrometheus exports the pipeline metrics through the collector
func WithPrometheus(c *PrometheusCollector) Option {
	return func(p *Pipeline) {
		p.prom = c
	}
}

// Pipeline is the Orchestrator, it runs every stage on one frame at a time
type Pipeline struct {
	// Mutex serialises Process, Reset and Close
	sync.Mutex
	cfg Config

	pendingMu sync.Mutex
	// pending is swapped in at the start of the next frame
	pending *Config

	base    *zap.Logger
	log     *zap.Logger
	clock   clock.Clock
	session uuid.UUID
	ids     *detection.IDGenerator

	motion   *motion.Detector
	color    *color.Detector
	fusion   *postprocess.Fusion
	temporal *postprocess.Temporal
	cleanup  *postprocess.Cleanup
	resizer  *preprocess.Resizer
	mask     *preprocess.ProcessingMask
	small    gocv.Mat

	lastTS float64
	seen   bool

	metrics *Metrics
	prom    *PrometheusCollector

	// beforeStage is called as each stage starts
	beforeStage func(Stage)
}

// NewPipeline validates cfg and builds every stage
func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:   cfg,
		base:  zap.NewNop(),
		clock: clock.New(),
		ids:   detection.NewIDGenerator(),
		small: gocv.NewMat(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.metrics = newMetrics(p.clock, cfg.FrameBudget)
	p.metrics.prom = p.prom
	p.newSession()

	var err error

	p.motion, err = motion.NewDetector(cfg.Motion, motion.WithLogger(p.base))
	if err != nil {
		p.Close()
		return nil, err
	}

	p.color, err = color.NewDetector(cfg.ColorConfig(), color.WithLogger(p.base))
	if err != nil {
		p.Close()
		return nil, err
	}

	p.fusion = postprocess.NewFusion(cfg.Fusion)
	p.temporal = postprocess.NewTemporal(cfg.Cleanup)
	p.cleanup = postprocess.NewCleanup(cfg.Cleanup)
	p.mask = p.loadMask(cfg.Processing)

	return p, nil
}

func (p *Pipeline) newSession() {
	p.session = uuid.New()
	p.log = p.base.With(zap.String("component", "pipeline"),
		zap.String("session", p.session.String()))
	p.metrics.setSession(p.session.String())
}

// loadMask builds the processing mask, falling back to the border buffer
// alone when the mask file can not be read
func (p *Pipeline) loadMask(cfg Processing) *preprocess.ProcessingMask {

	if cfg.MaskFile == "" {
		return preprocess.NewProcessingMask(cfg.BorderPixels)
	}

	m, err := preprocess.LoadProcessingMask(cfg.MaskFile, cfg.BorderPixels)
	if err != nil {
		p.log.Error("error loading processing mask, using border only",
			zap.String("file", cfg.MaskFile), zap.Error(err))
		return preprocess.NewProcessingMask(cfg.BorderPixels)
	}

	return m
}

// Session returns the ID of the current stream session
func (p *Pipeline) Session() string {
	p.Lock()
	defer p.Unlock()
	return p.session.String()
}

// Config returns the configuration in use, or the queued configuration when
// an update is waiting for the next frame
func (p *Pipeline) Config() Config {

	p.pendingMu.Lock()
	next := p.pending
	p.pendingMu.Unlock()

	if next != nil {
		return *next
	}

	p.Lock()
	defer p.Unlock()
	return p.cfg
}

// UpdateConfig validates cfg and queues it to take effect at the start of
// the next frame.  It may be called from any goroutine.
func (p *Pipeline) UpdateConfig(cfg Config) error {

	if err := cfg.Validate(); err != nil {
		return err
	}

	p.pendingMu.Lock()
	p.pending = &cfg
	p.pendingMu.Unlock()

	return nil
}

// applyPending swaps in a queued configuration
func (p *Pipeline) applyPending() {

	p.pendingMu.Lock()
	next := p.pending
	p.pending = nil
	p.pendingMu.Unlock()

	if next == nil {
		return
	}

	if err := p.configure(*next); err != nil {
		p.log.Error("error applying config update", zap.Error(err))
		return
	}

	p.log.Info("config updated")
}

func (p *Pipeline) configure(cfg Config) error {

	if err := p.motion.Configure(cfg.Motion); err != nil {
		return err
	}

	if err := p.color.Configure(cfg.ColorConfig()); err != nil {
		return err
	}

	p.fusion.Configure(cfg.Fusion)
	p.temporal.Configure(cfg.Cleanup)
	p.cleanup.Configure(cfg.Cleanup)

	if cfg.Processing != p.cfg.Processing {
		p.resizer = nil
		p.mask.Close()
		p.mask = p.loadMask(cfg.Processing)
	}

	p.metrics.Lock()
	p.metrics.budget = cfg.FrameBudget
	p.metrics.Unlock()

	p.cfg = cfg

	return nil
}

// Process runs the pipeline on a BGR frame taken at ts seconds and returns
// the final detections in frame coordinates with the time each stage took.
// A failing stage is logged and the output of the last completed stage is
// returned.
func (p *Pipeline) Process(frame gocv.Mat, ts float64) ([]detection.Detection, Timings, error) {

	p.Lock()
	defer p.Unlock()

	if frame.Empty() {
		return nil, nil, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	if frame.Channels() != 3 {
		return nil, nil, fmt.Errorf("%w: expected 3 channels, got %d", ErrInvalidFrame, frame.Channels())
	}

	if p.seen && ts < p.lastTS {
		return nil, nil, fmt.Errorf("%w: timestamp %.3f before previous %.3f", ErrInvalidFrame, ts, p.lastTS)
	}

	p.seen, p.lastTS = true, ts

	p.applyPending()

	start := p.clock.Now()
	timings := make(Timings)

	out := p.finish(frame, ts, p.detect(frame, ts, timings), timings)

	timings[StageTotal] = durationMS(p.clock.Since(start))

	p.metrics.observeFrame(timings)
	p.metrics.setState(p.motion.ExecutionPath(), string(p.motion.Mode()), string(p.motion.State()))

	return out, timings, nil
}

// detect runs the stages in order, stopping at the first failure
func (p *Pipeline) detect(frame gocv.Mat, ts float64, timings Timings) []detection.Detection {

	cfg := p.cfg

	if !cfg.EnableMotion && !cfg.EnableColor {
		return nil
	}

	var out, motionDets, colorDets []detection.Detection

	err := p.stage(StagePreprocess, ts, timings, func() error {
		if p.resizer == nil || !p.resizer.Matches(frame.Cols(), frame.Rows()) {
			p.resizer = preprocess.NewResizer(frame.Cols(), frame.Rows(),
				cfg.Processing.Width, cfg.Processing.Height)
		}
		p.resizer.Resize(frame, &p.small)
		return nil
	})
	if err != nil {
		return nil
	}

	if cfg.EnableMotion {
		err = p.stage(StageMotion, ts, timings, func() (err error) {
			motionDets, err = p.motion.Detect(p.small, ts)
			return err
		})
		if err != nil {
			return out
		}
		out = motionDets
	}

	if cfg.EnableColor {
		err = p.stage(StageColor, ts, timings, func() (err error) {
			colorDets, err = p.color.Detect(p.small, ts)
			return err
		})
		if err != nil {
			return out
		}
		out = append(append(slices.Grow([]detection.Detection(nil), len(motionDets)+len(colorDets)), motionDets...), colorDets...)
	}

	var fused []detection.Detection

	err = p.stage(StageFusion, ts, timings, func() error {
		fused = p.fusion.Fuse(postprocess.FusionInput{
			Motion:        motionDets,
			Color:         colorDets,
			MotionEnabled: cfg.EnableMotion,
			ColorEnabled:  cfg.EnableColor,
		})
		return nil
	})
	if err != nil {
		return out
	}
	out = fused

	err = p.stage(StageTemporal, ts, timings, func() error {
		out = p.temporal.Stabilize(out)
		return nil
	})
	if err != nil {
		return out
	}

	var cleaned []detection.Detection

	err = p.stage(StageCleanup, ts, timings, func() error {
		cleaned = p.cleanup.Apply(out)
		return nil
	})
	if err != nil {
		return out
	}

	return cleaned
}

// finish maps dets into frame coordinates, drops those outside the
// processing mask and assigns ids.  A failure leaves nothing in frame
// coordinates so an empty result is returned.
func (p *Pipeline) finish(frame gocv.Mat, ts float64, dets []detection.Detection, timings Timings) []detection.Detection {

	out := []detection.Detection{}

	p.stage(StageMask, ts, timings, func() error {

		scaled := dets
		if p.resizer != nil {
			scaled = p.resizer.ToSource(dets)
		}

		kept := p.mask.Filter(scaled, frame.Cols(), frame.Rows())
		if kept == nil {
			kept = []detection.Detection{}
		}

		p.ids.Assign(kept)
		out = kept

		return nil
	})

	return out
}

// stage runs fn as the named stage, recording its time and converting errors
// and panics into a logged StageError
func (p *Pipeline) stage(s Stage, ts float64, timings Timings, fn func() error) (err error) {

	start := p.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}

		timings[s] = durationMS(p.clock.Since(start))

		if err != nil {
			err = &StageError{Stage: s, Timestamp: ts, Err: err}
			p.metrics.recordFailure(s)
			p.log.Error("stage failed", zap.String("stage", string(s)),
				zap.Float64("timestamp", ts), zap.Error(err))
		}
	}()

	if p.beforeStage != nil {
		p.beforeStage(s)
	}

	return fn()
}

// Reset clears the temporal window, the detector models and the session
// state, use it when the stream reconnects
func (p *Pipeline) Reset() {

	p.Lock()
	defer p.Unlock()

	p.motion.Reset()
	p.color.Reset()
	p.temporal.Reset()
	p.ids.Reset()
	p.metrics.reset()

	p.seen, p.lastTS = false, 0
	p.resizer = nil

	p.newSession()
	p.log.Info("pipeline reset")
}

// Metrics returns a snapshot of the performance metrics
func (p *Pipeline) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// Close frees the detectors and Mats owned by the pipeline
func (p *Pipeline) Close() error {

	p.Lock()
	defer p.Unlock()

	var errs []error

	if p.motion != nil {
		errs = append(errs, p.motion.Close())
	}

	if p.color != nil {
		errs = append(errs, p.color.Close())
	}

	if p.mask != nil {
		errs = append(errs, p.mask.Close())
	}

	errs = append(errs, p.small.Close())

	return errors.Join(errs...)
}
