package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swdee/go-streamdetect"
	"github.com/swdee/go-streamdetect/detection"
	"github.com/swdee/go-streamdetect/preprocess"
	"github.com/swdee/go-streamdetect/render"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is the JSON message sent to websocket clients for every processed
// frame
type Event struct {
	Session    string                       `json:"session"`
	Timestamp  float64                      `json:"timestamp"`
	Detections []detection.Detection        `json:"detections"`
	Timings    streamdetect.Timings         `json:"timings"`
	Metrics    streamdetect.MetricsSnapshot `json:"metrics"`
}

// Demo reads frames from a video source, runs them through the detection
// pipeline and serves the annotated frames as an MJPEG stream
type Demo struct {
	pipeline *streamdetect.Pipeline
	runner   *streamdetect.Runner
	logger   *zap.Logger

	style    render.BoxStyle
	overlay  render.Labeler
	showMask bool
	mask     *preprocess.ProcessingMask
	region   gocv.Mat

	// pending holds a copy of each submitted frame until its result arrives
	mu      sync.Mutex
	pending map[float64]gocv.Mat

	frames *hub[[]byte]
	events *hub[Event]
}

// NewDemo creates the pipeline with metrics registered on reg
func NewDemo(cfg streamdetect.Config, reg prometheus.Registerer, logger *zap.Logger,
	cpuMask uintptr) (*Demo, error) {

	prom, err := streamdetect.NewPrometheusCollector(reg)

	if err != nil {
		return nil, err
	}

	p, err := streamdetect.NewPipeline(cfg,
		streamdetect.WithLogger(logger),
		streamdetect.WithPrometheus(prom),
	)

	if err != nil {
		return nil, fmt.Errorf("error creating pipeline: %w", err)
	}

	d := &Demo{
		pipeline: p,
		logger:   logger,
		style:    render.DefaultBoxStyle(),
		overlay:  render.DefaultFont(),
		region:   gocv.NewMat(),
		pending:  make(map[float64]gocv.Mat),
		frames:   newHub[[]byte](),
		events:   newHub[Event](),
	}

	if cfg.Processing.MaskFile != "" {
		d.mask, err = preprocess.LoadProcessingMask(cfg.Processing.MaskFile, cfg.Processing.BorderPixels)
		if err != nil {
			logger.Warn("error loading processing mask for display", zap.Error(err))
		}
	}

	if d.mask == nil {
		d.mask = preprocess.NewProcessingMask(cfg.Processing.BorderPixels)
	}

	opts := []streamdetect.RunnerOption{streamdetect.WithRunnerLogger(logger)}
	if cpuMask != 0 {
		opts = append(opts, streamdetect.WithCPUAffinity(cpuMask))
	}

	d.runner = streamdetect.NewRunner(p, d.onResult, opts...)

	return d, nil
}

// UseTTF switches the box labels to a TrueType font
func (d *Demo) UseTTF(path string, size float64) error {

	lab, err := render.NewTTFLabeler(path, size)

	if err != nil {
		return err
	}

	d.style.Labeler = lab
	return nil
}

// Capture reads frames from source until it ends or done is closed.  Files
// are played back at fps and looped when loop is set, capture devices are
// read as fast as they deliver frames.
func (d *Demo) Capture(source string, fps float64, loop bool, done <-chan struct{}) error {

	video, isFile, err := openSource(source)

	if err != nil {
		return fmt.Errorf("error opening video source: %w", err)
	}

	defer video.Close()

	img := gocv.NewMat()
	defer img.Close()

	var ticker *time.Ticker
	if isFile {
		ticker = time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()
	}

	start := time.Now()
	frameNum := 0

	for {
		if ticker != nil {
			select {
			case <-done:
				return nil
			case <-ticker.C:
			}
		} else {
			select {
			case <-done:
				return nil
			default:
			}
		}

		if ok := video.Read(&img); !ok {
			if !isFile || !loop {
				return nil
			}

			// back to the first frame, the scene is unrelated to the last
			// frame so the models relearn
			video.Set(gocv.VideoCapturePosFrames, 0)
			d.pipeline.Reset()
			frameNum = 0
			d.logger.Info("video looped")
			continue
		}

		if img.Empty() {
			continue
		}

		ts := time.Since(start).Seconds()
		if isFile {
			ts = float64(frameNum) / fps
		}
		frameNum++

		d.submit(img, ts)
	}
}

// openSource opens a device when source is a number, otherwise a file or
// stream URL
func openSource(source string) (*gocv.VideoCapture, bool, error) {

	if id, err := strconv.Atoi(source); err == nil {
		vc, err := gocv.OpenVideoCapture(id)
		return vc, false, err
	}

	vc, err := gocv.VideoCaptureFile(source)
	return vc, true, err
}

func (d *Demo) submit(img gocv.Mat, ts float64) {

	if d.runner.Busy() {
		// counts the dropped frame
		d.runner.Submit(img, ts)
		return
	}

	// keep a copy to annotate before the result can arrive
	d.mu.Lock()
	d.pending[ts] = img.Clone()
	d.mu.Unlock()

	if !d.runner.Submit(img, ts) {
		if frame, ok := d.takeFrame(ts); ok {
			frame.Close()
		}
	}
}

func (d *Demo) takeFrame(ts float64) (gocv.Mat, bool) {

	d.mu.Lock()
	defer d.mu.Unlock()

	frame, ok := d.pending[ts]
	delete(d.pending, ts)

	return frame, ok
}

// onResult is called by the runner worker for every processed frame
func (d *Demo) onResult(res streamdetect.Result) {

	frame, ok := d.takeFrame(res.Timestamp)

	if !ok {
		return
	}

	defer frame.Close()

	if res.Err != nil {
		d.logger.Warn("frame rejected", zap.Float64("timestamp", res.Timestamp), zap.Error(res.Err))
		return
	}

	metrics := d.pipeline.Metrics()

	if d.events.count() > 0 {
		d.events.publish(Event{
			Session:    metrics.Session,
			Timestamp:  res.Timestamp,
			Detections: res.Detections,
			Timings:    res.Timings,
			Metrics:    metrics,
		})
	}

	if d.frames.count() == 0 {
		return
	}

	if err := d.annotate(&frame, res.Detections, metrics); err != nil {
		d.logger.Warn("error annotating frame", zap.Error(err))
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)

	if err != nil {
		d.logger.Warn("error encoding frame", zap.Error(err))
		return
	}

	// the native buffer is freed here so subscribers get a Go copy
	jpg := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	d.frames.publish(jpg)
}

// annotate draws the processing mask, detection boxes and metrics on img
func (d *Demo) annotate(img *gocv.Mat, dets []detection.Detection,
	metrics streamdetect.MetricsSnapshot) error {

	if d.showMask && d.mask.Active() {
		if d.region.Cols() != img.Cols() || d.region.Rows() != img.Rows() {
			d.region.Close()
			d.region = d.mask.Region(img.Cols(), img.Rows())
		}

		if err := render.Mask(img, d.region, render.Black, 0.5); err != nil {
			return err
		}
	}

	if err := render.Detections(img, dets, d.style); err != nil {
		return err
	}

	return render.Metrics(img, metrics, d.overlay)
}

// Stream is the HTTP handler function used to stream video frames to browser
func (d *Demo) Stream(w http.ResponseWriter, r *http.Request) {

	d.logger.Info("new stream client", zap.String("remote", r.RemoteAddr))

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	frames, unsubscribe := d.frames.subscribe()
	defer unsubscribe()

	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-r.Context().Done():
			d.logger.Info("stream client disconnected", zap.String("remote", r.RemoteAddr))
			return

		case jpg := <-frames:
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpg))
			w.Write(jpg)
			w.Write([]byte("\r\n"))

			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// Events is the websocket handler that sends the detections of every
// processed frame as JSON
func (d *Demo) Events(w http.ResponseWriter, r *http.Request) {

	conn, err := upgrader.Upgrade(w, r, nil)

	if err != nil {
		d.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	defer conn.Close()

	events, unsubscribe := d.events.subscribe()
	defer unsubscribe()

	// reader detects the client going away
	closed := make(chan struct{})

	go func() {
		defer close(closed)

		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return

		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

			if err := conn.WriteJSON(ev); err != nil {
				d.logger.Debug("websocket write error", zap.Error(err))
				return
			}
		}
	}
}

// Config returns the pipeline config as YAML on GET and applies a YAML
// config on POST.  Fields missing from the posted document keep their
// default values.
func (d *Demo) Config(w http.ResponseWriter, r *http.Request) {

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/yaml")
		if err := yaml.NewEncoder(w).Encode(d.pipeline.Config()); err != nil {
			d.logger.Warn("error encoding config", zap.Error(err))
		}

	case http.MethodPost:
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))

		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		cfg, err := streamdetect.ParseConfig(data)

		if err == nil {
			err = d.pipeline.UpdateConfig(cfg)
		}

		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusAccepted)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Reset clears the pipeline state, use it after the camera is moved
func (d *Demo) Reset(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d.pipeline.Reset()
	fmt.Fprintln(w, d.pipeline.Session())
}

// Close stops the runner and frees the pipeline
func (d *Demo) Close() error {

	d.runner.Close()

	d.mu.Lock()
	for ts, frame := range d.pending {
		frame.Close()
		delete(d.pending, ts)
	}
	d.mu.Unlock()

	if c, ok := d.style.Labeler.(io.Closer); ok {
		c.Close()
	}

	d.region.Close()
	d.mask.Close()

	return d.pipeline.Close()
}

func main() {

	// read in cli flags
	source := flag.String("v", "../data/drone.mp4", "Video file, stream URL or capture device number to run detection on")
	cfgFile := flag.String("c", "", "YAML config file, defaults are used when not set")
	httpAddr := flag.String("a", "localhost:8080", "HTTP Address to run server on, format address:port")
	fps := flag.Float64("fps", 30, "Playback rate of video files")
	loop := flag.Bool("loop", true, "Loop video files")
	cpus := flag.String("cpus", "", "Comma delimited list of cores to pin the pipeline worker to, eg: 0,4-7")
	ttfFont := flag.String("ttf", "", "TrueType font file used for box labels")
	showMask := flag.Bool("mask", false, "Shade the regions excluded by the processing mask")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	logger, err := newLogger(*debug)

	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}

	defer logger.Sync()

	cfg := streamdetect.DefaultConfig()

	if *cfgFile != "" {
		cfg, err = streamdetect.LoadConfig(*cfgFile)

		if err != nil {
			logger.Fatal("error loading config", zap.Error(err))
		}
	}

	var cpuMask uintptr

	if *cpus != "" {
		cores, err := streamdetect.ParseCPUList(*cpus)

		if err != nil {
			logger.Fatal("invalid cpu list", zap.Error(err))
		}

		cpuMask = streamdetect.CPUCoreMask(cores)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	demo, err := NewDemo(cfg, reg, logger, cpuMask)

	if err != nil {
		logger.Fatal("error creating demo", zap.Error(err))
	}

	defer demo.Close()

	demo.showMask = *showMask

	if *ttfFont != "" {
		if err := demo.UseTTF(*ttfFont, 14); err != nil {
			logger.Fatal("error loading font", zap.Error(err))
		}
	}

	done := make(chan struct{})

	go func() {
		if err := demo.Capture(*source, *fps, *loop, done); err != nil {
			logger.Error("capture stopped", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", demo.Stream)
	mux.HandleFunc("/ws", demo.Events)
	mux.HandleFunc("/config", demo.Config)
	mux.HandleFunc("/reset", demo.Reset)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	logger.Info(fmt.Sprintf("Open browser and view video at http://%s/stream", *httpAddr),
		zap.String("session", demo.pipeline.Session()))

	err = http.ListenAndServe(*httpAddr, mux)
	close(done)

	logger.Error("http server stopped", zap.Error(err))
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
