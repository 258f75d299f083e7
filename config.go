package streamdetect

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/swdee/go-streamdetect/color"
	"github.com/swdee/go-streamdetect/motion"
	"github.com/swdee/go-streamdetect/postprocess"
	"gopkg.in/yaml.v3"
)

// Processing sets the resolution detection runs at and the region of the
// frame detections are reported from
type Processing struct {
	// Width and Height bound the processing resolution, frames larger than
	// this are scaled down keeping aspect
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// MaskFile is an optional image where black pixels mark regions to
	// ignore
	MaskFile string `yaml:"mask_file"`
	// BorderPixels drops detections whose centroid is this close to the
	// frame edge
	BorderPixels int `yaml:"border_pixels"`
}

// Config is the complete pipeline configuration
type Config struct {
	EnableMotion bool                      `yaml:"enable_motion"`
	EnableColor  bool                      `yaml:"enable_color"`
	Motion       motion.Config             `yaml:"motion"`
	Color        color.Config              `yaml:"color"`
	Fusion       postprocess.FusionConfig  `yaml:"fusion"`
	Cleanup      postprocess.CleanupConfig `yaml:"cleanup"`
	Processing   Processing                `yaml:"processing"`
	// FrameBudget is the processing time allowed per frame, frames over it
	// are counted in the metrics
	FrameBudget time.Duration `yaml:"frame_budget"`
	// Aggressiveness names an entry of Presets that overrides the color
	// rarity percentile, empty uses the color config as given
	Aggressiveness string `yaml:"aggressiveness"`
	// Presets maps aggressiveness labels to rarity percentiles
	Presets map[string]float64 `yaml:"presets"`
}

// DefaultPresets returns the aggressiveness labels and their rarity
// percentiles
func DefaultPresets() map[string]float64 {
	return map[string]float64{
		"very-conservative": 5,
		"conservative":      15,
		"moderate":          30,
		"aggressive":        50,
		"very-aggressive":   80,
	}
}

// DefaultConfig returns a configuration with both detectors enabled
func DefaultConfig() Config {
	return Config{
		EnableMotion: true,
		EnableColor:  true,
		Motion:       motion.DefaultConfig(),
		Color:        color.DefaultConfig(),
		Fusion:       postprocess.DefaultFusionConfig(),
		Cleanup:      postprocess.DefaultCleanupConfig(),
		Processing: Processing{
			Width:  1280,
			Height: 720,
		},
		FrameBudget: time.Second / 30,
		Presets:     DefaultPresets(),
	}
}

// ParseConfig decodes YAML over the default configuration and validates the
// result
func ParseConfig(data []byte) (Config, error) {

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: error decoding yaml: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadConfig reads a YAML configuration file
func LoadConfig(path string) (Config, error) {

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	return ParseConfig(data)
}

// Validate checks every section of the configuration.  The returned error
// wraps ErrInvalidConfig.
func (c Config) Validate() error {

	var errs []error

	if err := c.Motion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("motion: %w", err))
	}

	if err := c.Color.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("color: %w", err))
	}

	if err := c.Fusion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fusion: %w", err))
	}

	if err := c.Cleanup.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cleanup: %w", err))
	}

	if c.Processing.Width < 0 || c.Processing.Height < 0 {
		errs = append(errs, fmt.Errorf("processing size %dx%d is negative",
			c.Processing.Width, c.Processing.Height))
	}

	if c.Processing.BorderPixels < 0 {
		errs = append(errs, fmt.Errorf("border_pixels %d is negative", c.Processing.BorderPixels))
	}

	if c.FrameBudget < 0 {
		errs = append(errs, fmt.Errorf("frame_budget %v is negative", c.FrameBudget))
	}

	if c.Aggressiveness != "" {
		p, ok := c.Presets[c.preset()]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("unknown aggressiveness %q", c.Aggressiveness))
		case p < 0 || p > 100:
			errs = append(errs, fmt.Errorf("preset %q percentile %v outside [0,100]", c.Aggressiveness, p))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

func (c Config) preset() string {
	return strings.ToLower(strings.TrimSpace(c.Aggressiveness))
}

// ColorConfig returns the color detector parameters with the aggressiveness
// preset applied
func (c Config) ColorConfig() color.Config {

	cc := c.Color

	if p, ok := c.Presets[c.preset()]; ok && c.Aggressiveness != "" {
		cc.RarityPercentile = p
	}

	return cc
}
