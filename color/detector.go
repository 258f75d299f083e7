// Package color finds regions whose color is statistically rare relative to
// the rest of the frame.
package color

import (
	"fmt"
	"image"
	"math"

	"github.com/swdee/go-streamdetect/detection"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Detector is the ColorAnomalyDetector.  It owns a rarity model over a
// quantized color palette.
type Detector struct {
	cfg    Config
	logger *zap.Logger
	quant  quantizer
	// model is the blended histogram of recent frames
	model *histogram
	// modelSize is the frame size the model was built for
	modelSize image.Point
	kernel    gocv.Mat
	small     gocv.Mat
}

// Option configures a Detector
type Option func(*Detector)

// WithLogger sets the logger used by the Detector
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// NewDetector returns a ColorAnomalyDetector for the given parameters
func NewDetector(cfg Config, opts ...Option) (*Detector, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid color config: %w", err)
	}

	d := &Detector{
		logger: zap.NewNop(),
		kernel: gocv.NewMat(),
		small:  gocv.NewMat(),
	}

	for _, opt := range opts {
		opt(d)
	}

	d.logger = d.logger.With(zap.String("component", "color"))
	d.apply(cfg)

	return d, nil
}

// Configure applies new parameters between frames.  A change of
// quantization depth resets the rarity model.
func (d *Detector) Configure(cfg Config) error {

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid color config: %w", err)
	}

	d.apply(cfg)
	return nil
}

func (d *Detector) apply(cfg Config) {

	old := d.cfg
	d.cfg = cfg

	if old.QuantizationBits != cfg.QuantizationBits || old.Downsample != cfg.Downsample {
		d.quant = newQuantizer(cfg.QuantizationBits)
		d.Reset()
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
}

// Reset discards the rarity model
func (d *Detector) Reset() {
	d.model = nil
	d.modelSize = image.Point{}
}

// Close frees the Mats owned by the detector
func (d *Detector) Close() error {
	d.kernel.Close()
	return d.small.Close()
}

// Detect returns the color anomaly detections of a BGR frame
func (d *Detector) Detect(frame gocv.Mat, ts float64) ([]detection.Detection, error) {

	if frame.Empty() || frame.Channels() != 3 {
		return nil, fmt.Errorf("color detector needs a 3 channel frame, got %d channels", frame.Channels())
	}

	width, height := frame.Cols(), frame.Rows()

	if size := image.Pt(width, height); size != d.modelSize {
		d.Reset()
		d.modelSize = size
	}

	// downsample to reduce the cost of the per pixel pass
	sw := max(1, width/d.cfg.Downsample)
	sh := max(1, height/d.cfg.Downsample)

	if sw == width && sh == height {
		frame.CopyTo(&d.small)
	} else {
		gocv.Resize(frame, &d.small, image.Pt(sw, sh), 0, 0, gocv.InterpolationArea)
	}

	pixels := d.small.ToBytes()
	bins := make([]uint32, sw*sh)
	hist := newHistogram(d.cfg.QuantizationBits)

	for i := range bins {
		p := i * 3
		bins[i] = d.quant.bin(pixels[p], pixels[p+1], pixels[p+2])
		hist.add(bins[i], 1)
	}

	hist.blend(d.model, d.cfg.HistoryDecay)
	d.model = hist

	if n := hist.distinct(); n < d.cfg.MinDistinctBins {
		d.logger.Debug("frame too uniform for color anomalies", zap.Int("bins", n))
		return nil, nil
	}

	thr := hist.rarityThreshold(d.cfg.RarityPercentile, d.cfg.MaxRareFraction)

	rare := make([]byte, len(bins))
	anyRare := false

	for i, b := range bins {
		if hist.get(b) <= thr {
			rare[i] = 255
			anyRare = true
		}
	}

	if !anyRare {
		return nil, nil
	}

	mask, err := d.rareMask(rare, sw, sh, width, height)
	if err != nil {
		return nil, err
	}
	defer mask.Close()

	// scale from small image pixels to frame pixels
	sx := float64(sw) / float64(width)
	sy := float64(sh) / float64(height)
	total := hist.total

	dets := detection.FromMask(mask, detection.ComponentOptions{
		Type:      detection.Color,
		MinArea:   d.cfg.MinArea,
		MaxArea:   d.cfg.MaxArea,
		Timestamp: ts,
		Contours:  true,
		Confidence: func(c detection.Component) float64 {
			bin := dominantBin(bins, rare, sw, sh, c.BBox, sx, sy)
			return math.Min(1, (1-hist.get(bin)/total)*2)
		},
	})

	var hsv gocv.Mat
	if d.cfg.HueExpansion.Enabled && len(dets) > 0 {
		hsv = gocv.NewMat()
		defer hsv.Close()
		gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)
	}

	for i, det := range dets {
		bin := dominantBin(bins, rare, sw, sh, det.BBox, sx, sy)
		count := hist.get(bin)
		bgr := meanColor(frame, det.BBox)

		det = det.WithMeta(detection.MetaDominantColor, bgr).
			WithMeta(detection.MetaBinCount, int(count)).
			WithMeta(detection.MetaRarity, 1-count/total).
			WithMeta(detection.MetaHue, hueOf(bgr))

		if d.cfg.HueExpansion.Enabled {
			det = d.expandHue(hsv, det)
		}

		dets[i] = det
	}

	return dets, nil
}

// rareMask turns the small rare pixel buffer into a cleaned full resolution
// binary mask
func (d *Detector) rareMask(rare []byte, sw, sh, width, height int) (gocv.Mat, error) {

	small, err := gocv.NewMatFromBytes(sh, sw, gocv.MatTypeCV8UC1, rare)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("error building rarity mask: %w", err)
	}
	defer small.Close()

	mask := gocv.NewMat()

	if sw == width && sh == height {
		small.CopyTo(&mask)
	} else {
		gocv.Resize(small, &mask, image.Pt(width, height), 0, 0, gocv.InterpolationNearestNeighbor)
	}

	if !d.kernel.Empty() {
		gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, d.kernel)
		gocv.MorphologyEx(mask, &mask, gocv.MorphClose, d.kernel)
	}

	return mask, nil
}

// dominantBin returns the most frequent rare bin inside a frame box
func dominantBin(bins []uint32, rare []byte, sw, sh int, box detection.BBox, sx, sy float64) uint32 {

	r := box.Scale(sx, sy).Clamp(sw, sh)
	tally := make(map[uint32]int)

	var best uint32
	bestN := 0

	for y := r.Y; y < r.Bottom(); y++ {
		for x := r.X; x < r.Right(); x++ {
			i := y*sw + x
			if rare[i] == 0 {
				continue
			}

			b := bins[i]
			tally[b]++

			if tally[b] > bestN {
				best, bestN = b, tally[b]
			}
		}
	}

	return best
}

// meanColor returns the mean BGR color of a frame region
func meanColor(frame gocv.Mat, box detection.BBox) [3]float64 {
	region := frame.Region(box.Rect())
	defer region.Close()

	m := region.Mean()
	return [3]float64{m.Val1, m.Val2, m.Val3}
}

// hueOf converts a BGR color to a hue in degrees [0,360)
func hueOf(bgr [3]float64) float64 {

	b, g, r := bgr[0]/255, bgr[1]/255, bgr[2]/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	delta := hi - lo

	if delta == 0 {
		return 0
	}

	var h float64

	switch hi {
	case r:
		h = math.Mod((g-b)/delta, 6)
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}

	h *= 60
	if h < 0 {
		h += 360
	}

	return h
}
