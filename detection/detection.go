package detection

import (
	"image"
	"maps"
	"slices"
)

// Type is the label of the producer of a Detection
type Type string

const (
	Motion Type = "motion"
	Color  Type = "color"
	Fused  Type = "fused"
)

// Metadata keys set by the detectors
const (
	MetaDominantColor = "dominant_color"
	MetaBinCount      = "bin_count"
	MetaRarity        = "rarity"
	MetaHue           = "hue"
	MetaSources       = "sources"
	MetaMergedCount   = "merged_count"
)

// Velocity is a displacement in pixels per frame
type Velocity struct {
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// Detection describes one candidate region found in a single frame.  A
// Detection is treated as immutable once created, merges produce a new
// Detection.
type Detection struct {
	// ID is unique within a pipeline session
	ID int64 `json:"id"`
	// BBox is the bounding box in frame pixel coordinates
	BBox BBox `json:"bbox"`
	// Centroid equals the bbox centre unless overridden by a merge
	Centroid Point `json:"centroid"`
	// Area is the pixel count of the region, or the bbox area for merged
	// results
	Area int `json:"area"`
	// Confidence is in the range [0,1]
	Confidence float64 `json:"confidence"`
	// Timestamp is the frame time in seconds
	Timestamp float64 `json:"timestamp"`
	Type      Type    `json:"type"`
	// Velocity is only set by motion capable producers
	Velocity *Velocity `json:"velocity,omitempty"`
	// Contour is the optional outline of the region
	Contour  []image.Point  `json:"contour,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// New returns a Detection for the given box with its centroid at the box
// centre and area of the box
func New(typ Type, box BBox, confidence, ts float64) Detection {
	return Detection{
		BBox:       box,
		Centroid:   box.Center(),
		Area:       box.Area(),
		Confidence: clamp01(confidence),
		Timestamp:  ts,
		Type:       typ,
	}
}

// AspectRatio of the bounding box
func (d Detection) AspectRatio() float64 {
	return d.BBox.AspectRatio()
}

// Meta returns a metadata value
func (d Detection) Meta(key string) (any, bool) {
	if d.Metadata == nil {
		return nil, false
	}
	v, ok := d.Metadata[key]
	return v, ok
}

// WithMeta returns a copy of the Detection with the metadata key set
func (d Detection) WithMeta(key string, val any) Detection {
	md := make(map[string]any, len(d.Metadata)+1)
	maps.Copy(md, d.Metadata)
	md[key] = val
	d.Metadata = md
	return d
}

// Clone returns a deep copy of the Detection
func (d Detection) Clone() Detection {
	if d.Velocity != nil {
		v := *d.Velocity
		d.Velocity = &v
	}
	d.Contour = slices.Clone(d.Contour)
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

// Scaled returns a copy of the Detection mapped into another resolution by
// the given factors and clamped to the target frame size
func (d Detection) Scaled(sx, sy float64, width, height int) Detection {
	out := d.Clone()
	out.BBox = d.BBox.Scale(sx, sy).Clamp(width, height)
	out.Centroid = Point{X: d.Centroid.X * sx, Y: d.Centroid.Y * sy}
	out.Area = int(float64(d.Area) * sx * sy)

	if out.Velocity != nil {
		out.Velocity.VX *= sx
		out.Velocity.VY *= sy
	}

	for i, pt := range out.Contour {
		out.Contour[i] = image.Pt(int(float64(pt.X)*sx), int(float64(pt.Y)*sy))
	}

	return out
}

// Boxes returns the bounding boxes of the detections
func Boxes(dets []Detection) []BBox {
	boxes := make([]BBox, len(dets))
	for i, d := range dets {
		boxes[i] = d.BBox
	}
	return boxes
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
