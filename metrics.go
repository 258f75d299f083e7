package streamdetect

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gonum.org/v1/gonum/stat"
)

// metricsWindow is the number of recent frames averages are taken over
const metricsWindow = 30

// MetricsSnapshot is a point in time copy of the pipeline performance
// metrics
type MetricsSnapshot struct {
	Session string
	// Frames is the number of frames processed
	Frames uint64
	// Dropped is the number of frames skipped because the pipeline was busy
	Dropped uint64
	// FPS is the processing rate over the recent frames
	FPS float64
	// AvgStageMS is the mean time in milliseconds of each stage over the
	// recent frames
	AvgStageMS map[Stage]float64
	// OverBudgetStreak is the number of consecutive frames whose total time
	// exceeded the frame budget
	OverBudgetStreak int
	StageFailures    map[Stage]uint64
	// ExecutionPath is the motion background model path, cpu or cuda
	ExecutionPath string
	MotionMode    string
	ModelState    string
}

// Metrics accumulates per frame timings.  It is safe for concurrent use.
type Metrics struct {
	sync.Mutex
	clock   clock.Clock
	budget  time.Duration
	session string

	frames   uint64
	dropped  uint64
	failures map[Stage]uint64
	// stageMS holds the recent timings of each stage
	stageMS map[Stage][]float64
	// completed holds the completion times of the recent frames
	completed  []time.Time
	overBudget int

	path  string
	mode  string
	state string

	prom *PrometheusCollector
}

func newMetrics(clk clock.Clock, budget time.Duration) *Metrics {
	return &Metrics{
		clock:    clk,
		budget:   budget,
		failures: make(map[Stage]uint64),
		stageMS:  make(map[Stage][]float64),
	}
}

// push appends v to a window capped at metricsWindow values
func push[T any](window []T, v T) []T {
	window = append(window, v)
	if len(window) > metricsWindow {
		window = window[len(window)-metricsWindow:]
	}
	return window
}

// observeFrame records the timings of a processed frame
func (m *Metrics) observeFrame(timings Timings) {

	m.Lock()
	defer m.Unlock()

	m.frames++
	m.completed = push(m.completed, m.clock.Now())

	for stage, ms := range timings {
		m.stageMS[stage] = push(m.stageMS[stage], ms)
	}

	over := false
	if total := timings[StageTotal]; m.budget > 0 && total > durationMS(m.budget) {
		m.overBudget++
		over = true
	} else {
		m.overBudget = 0
	}

	if m.prom != nil {
		m.prom.observeFrame(timings, over, m.fps())
	}
}

// recordDrop counts a frame skipped while the pipeline was busy
func (m *Metrics) recordDrop() {

	m.Lock()
	defer m.Unlock()

	m.dropped++

	if m.prom != nil {
		m.prom.droppedFrames.Inc()
	}
}

// recordFailure counts a failed stage
func (m *Metrics) recordFailure(stage Stage) {

	m.Lock()
	defer m.Unlock()

	m.failures[stage]++

	if m.prom != nil {
		m.prom.stageFailures.WithLabelValues(string(stage)).Inc()
	}
}

// setState records the motion detector state after a frame
func (m *Metrics) setState(path, mode, state string) {

	m.Lock()
	defer m.Unlock()

	m.path, m.mode, m.state = path, mode, state

	if m.prom != nil {
		m.prom.setState(path, mode, state)
	}
}

func (m *Metrics) setSession(id string) {
	m.Lock()
	m.session = id
	m.Unlock()
}

// fps must be called with the lock held
func (m *Metrics) fps() float64 {

	n := len(m.completed)
	if n < 2 {
		return 0
	}

	span := m.completed[n-1].Sub(m.completed[0])
	if span <= 0 {
		return 0
	}

	return float64(n-1) / span.Seconds()
}

// Snapshot returns a copy of the current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {

	m.Lock()
	defer m.Unlock()

	s := MetricsSnapshot{
		Session:          m.session,
		Frames:           m.frames,
		Dropped:          m.dropped,
		FPS:              m.fps(),
		AvgStageMS:       make(map[Stage]float64, len(m.stageMS)),
		OverBudgetStreak: m.overBudget,
		StageFailures:    make(map[Stage]uint64, len(m.failures)),
		ExecutionPath:    m.path,
		MotionMode:       m.mode,
		ModelState:       m.state,
	}

	for stage, values := range m.stageMS {
		s.AvgStageMS[stage] = stat.Mean(values, nil)
	}

	for stage, n := range m.failures {
		s.StageFailures[stage] = n
	}

	return s
}

// reset clears the frame history but keeps counters of dropped frames and
// failures
func (m *Metrics) reset() {

	m.Lock()
	defer m.Unlock()

	m.completed = nil
	m.stageMS = make(map[Stage][]float64)
	m.overBudget = 0
}

// durationMS converts a duration to fractional milliseconds
func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
