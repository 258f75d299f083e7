package streamdetect

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports pipeline metrics to Prometheus
type PrometheusCollector struct {
	framesTotal   prometheus.Counter
	droppedFrames prometheus.Counter
	stageFailures *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	overBudget    prometheus.Counter
	fps           prometheus.Gauge
	// executionPath, motionMode and modelState hold a single series, the
	// active label value set to 1
	executionPath *prometheus.GaugeVec
	motionMode    *prometheus.GaugeVec
	modelState    *prometheus.GaugeVec
}

// NewPrometheusCollector creates the pipeline metrics and registers them
// with the registerer
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {

	c := &PrometheusCollector{
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamdetect_frames_total",
			Help: "Total number of frames processed",
		}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamdetect_dropped_frames_total",
			Help: "Total number of frames dropped while the pipeline was busy",
		}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamdetect_stage_failures_total",
			Help: "Total number of stage failures recovered by the pipeline",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamdetect_stage_duration_seconds",
			Help:    "Time taken by each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5ms to ~256ms
		}, []string{"stage"}),
		overBudget: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamdetect_over_budget_frames_total",
			Help: "Total number of frames that exceeded the frame budget",
		}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamdetect_fps",
			Help: "Frames processed per second over the recent frames",
		}),
		executionPath: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamdetect_motion_execution_path",
			Help: "Active execution path of the motion background model",
		}, []string{"path"}),
		motionMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamdetect_motion_mode",
			Help: "Effective camera mode of the motion detector",
		}, []string{"mode"}),
		modelState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamdetect_motion_model_state",
			Help: "Lifecycle state of the motion background model",
		}, []string{"state"}),
	}

	if err := reg.Register(c); err != nil {
		return nil, fmt.Errorf("failed to register streamdetect metrics: %w", err)
	}

	return c, nil
}

func (c *PrometheusCollector) observeFrame(timings Timings, overBudget bool, fps float64) {

	c.framesTotal.Inc()
	c.fps.Set(fps)

	if overBudget {
		c.overBudget.Inc()
	}

	for stage, ms := range timings {
		c.stageDuration.WithLabelValues(string(stage)).Observe(ms / 1000)
	}
}

func (c *PrometheusCollector) setState(path, mode, state string) {
	setActive(c.executionPath, path)
	setActive(c.motionMode, mode)
	setActive(c.modelState, state)
}

// setActive replaces all series of g with the active label set to 1
func setActive(g *prometheus.GaugeVec, active string) {
	g.Reset()
	if active != "" {
		g.WithLabelValues(active).Set(1)
	}
}

// Describe implements the prometheus.Collector interface.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesTotal.Desc()
	ch <- c.droppedFrames.Desc()
	c.stageFailures.Describe(ch)
	c.stageDuration.Describe(ch)
	ch <- c.overBudget.Desc()
	ch <- c.fps.Desc()
	c.executionPath.Describe(ch)
	c.motionMode.Describe(ch)
	c.modelState.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- c.framesTotal
	ch <- c.droppedFrames
	c.stageFailures.Collect(ch)
	c.stageDuration.Collect(ch)
	ch <- c.overBudget
	ch <- c.fps
	c.executionPath.Collect(ch)
	c.motionMode.Collect(ch)
	c.modelState.Collect(ch)
}
