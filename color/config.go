package color

import (
	"errors"
	"fmt"
)

// HueExpansion grows each color detection to the connected region of similar
// hue around its centroid
type HueExpansion struct {
	Enabled bool `yaml:"enabled"`
	// Range is the hue tolerance in degrees either side of the seed hue
	Range float64 `yaml:"range"`
}

// Config holds the ColorAnomalyDetector parameters
type Config struct {
	// RarityPercentile is the percentile [0,100] of palette bin frequencies
	// used as the rarity threshold, lower values only flag the rarest colors
	RarityPercentile float64 `yaml:"color_rarity_percentile"`
	// QuantizationBits is the number of bits [1,8] kept per color channel
	QuantizationBits int `yaml:"quantization_bits"`
	MinArea          int `yaml:"min_area"`
	MaxArea          int `yaml:"max_area"`
	// MinDistinctBins is the number of palette bins a frame must contain
	// before any anomaly is reported
	MinDistinctBins int `yaml:"min_distinct_bins"`
	// MaxRareFraction caps the rarity threshold to this fraction of the
	// frame pixels
	MaxRareFraction float64 `yaml:"max_rare_fraction"`
	// Downsample divides the frame dimensions before building the histogram
	Downsample int `yaml:"downsample"`
	// MorphologySize is the kernel size of the mask open/close, 0 disables
	MorphologySize int `yaml:"morphology_size"`
	// HistoryDecay blends the histogram of previous frames into the model,
	// 0 uses the current frame only
	HistoryDecay float64      `yaml:"history_decay"`
	HueExpansion HueExpansion `yaml:"hue_expansion"`
}

// DefaultConfig returns the default color anomaly parameters
func DefaultConfig() Config {
	return Config{
		RarityPercentile: 30,
		QuantizationBits: 4,
		MinArea:          15,
		MaxArea:          50000,
		MinDistinctBins:  2,
		MaxRareFraction:  0.05,
		Downsample:       2,
		MorphologySize:   3,
		HueExpansion: HueExpansion{
			Range: 5,
		},
	}
}

// Validate checks the parameters are within their legal ranges
func (c Config) Validate() error {

	var errs []error

	if c.RarityPercentile < 0 || c.RarityPercentile > 100 {
		errs = append(errs, fmt.Errorf("color_rarity_percentile %v outside [0,100]", c.RarityPercentile))
	}

	if c.QuantizationBits < 1 || c.QuantizationBits > 8 {
		errs = append(errs, fmt.Errorf("quantization_bits %d outside [1,8]", c.QuantizationBits))
	}

	if c.MinArea <= 0 || c.MaxArea < c.MinArea {
		errs = append(errs, fmt.Errorf("area range [%d,%d] is invalid", c.MinArea, c.MaxArea))
	}

	if c.MinDistinctBins < 1 {
		errs = append(errs, fmt.Errorf("min_distinct_bins %d must be at least 1", c.MinDistinctBins))
	}

	if c.MaxRareFraction <= 0 || c.MaxRareFraction > 1 {
		errs = append(errs, fmt.Errorf("max_rare_fraction %v outside (0,1]", c.MaxRareFraction))
	}

	if c.Downsample < 1 {
		errs = append(errs, fmt.Errorf("downsample %d must be at least 1", c.Downsample))
	}

	if c.MorphologySize < 0 {
		errs = append(errs, fmt.Errorf("morphology_size %d is negative", c.MorphologySize))
	}

	if c.HistoryDecay < 0 || c.HistoryDecay >= 1 {
		errs = append(errs, fmt.Errorf("history_decay %v outside [0,1)", c.HistoryDecay))
	}

	if c.HueExpansion.Enabled && (c.HueExpansion.Range <= 0 || c.HueExpansion.Range > 90) {
		errs = append(errs, fmt.Errorf("hue expansion range %v outside (0,90]", c.HueExpansion.Range))
	}

	return errors.Join(errs...)
}
