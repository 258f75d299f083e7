package streamdetect

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/swdee/go-streamdetect/detection"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Result is the outcome of processing one submitted frame
type Result struct {
	Timestamp  float64
	Detections []detection.Detection
	Timings    Timings
	Err        error
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithCPUAffinity pins the worker goroutine's OS thread to the cores in
// mask, see CPUCoreMask
func WithCPUAffinity(mask uintptr) RunnerOption {
	return func(r *Runner) {
		r.cpuMask = mask
	}
}

// WithRunnerLogger sets the logger used by the Runner
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

type job struct {
	frame gocv.Mat
	ts    float64
}

// Runner feeds a Pipeline from a live source with a single frame in flight.
// Frames submitted while a frame is being processed are dropped.
type Runner struct {
	pipeline *Pipeline
	onResult func(Result)
	logger   *zap.Logger
	cpuMask  uintptr

	// jobs holds at most the one in flight frame
	jobs chan job
	busy atomic.Bool
	done chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner starts the worker goroutine.  onResult is called from the worker
// for every processed frame, a new frame is accepted only after it returns.
func NewRunner(p *Pipeline, onResult func(Result), opts ...RunnerOption) *Runner {

	r := &Runner{
		pipeline: p,
		onResult: onResult,
		logger:   zap.NewNop(),
		jobs:     make(chan job, 1),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.With(zap.String("component", "runner"))

	r.wg.Add(1)
	go r.run()

	return r
}

// Submit hands a copy of frame to the worker and returns true, or returns
// false and counts a dropped frame when the worker is busy.  The caller keeps
// ownership of frame.
func (r *Runner) Submit(frame gocv.Mat, ts float64) bool {

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	if !r.busy.CompareAndSwap(false, true) {
		r.pipeline.metrics.recordDrop()
		return false
	}

	j := job{frame: frame.Clone(), ts: ts}

	select {
	case r.jobs <- j:
		return true
	default:
		// worker still holds a frame
		j.frame.Close()
		r.busy.Store(false)
		r.pipeline.metrics.recordDrop()
		return false
	}
}

// Busy reports whether a frame is in flight
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

func (r *Runner) run() {

	defer r.wg.Done()

	if r.cpuMask != 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := SetCPUAffinity(r.cpuMask); err != nil {
			r.logger.Warn("error pinning worker thread", zap.Error(err))
		}
	}

	for {
		select {
		case <-r.done:
			return

		case j := <-r.jobs:
			dets, timings, err := r.pipeline.Process(j.frame, j.ts)
			j.frame.Close()

			if err != nil {
				r.logger.Debug("frame rejected", zap.Float64("timestamp", j.ts), zap.Error(err))
			}

			if r.onResult != nil {
				r.onResult(Result{
					Timestamp:  j.ts,
					Detections: dets,
					Timings:    timings,
					Err:        err,
				})
			}

			r.busy.Store(false)
		}
	}
}

// Close stops the worker after the frame in flight and frees any queued
// frame.  It does not close the Pipeline.
func (r *Runner) Close() {

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()

	select {
	case j := <-r.jobs:
		j.frame.Close()
	default:
	}
}
