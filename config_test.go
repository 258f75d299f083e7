package streamdetect

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-streamdetect/motion"
	"github.com/swdee/go-streamdetect/postprocess"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestParseConfigOverridesDefaults(t *testing.T) {

	data := []byte(`
enable_color: false
frame_budget: 50ms
aggressiveness: Aggressive
motion:
  algorithm: knn-background
  hysteresis:
    enter_frames: 7
fusion:
  mode: intersection
cleanup:
  window_frames: 5
  threshold_frames: 3
processing:
  width: 640
  height: 360
presets:
  aggressive: 60
`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)

	assert.True(t, cfg.EnableMotion)
	assert.False(t, cfg.EnableColor)
	assert.Equal(t, 50*time.Millisecond, cfg.FrameBudget)
	assert.Equal(t, motion.KNNBackground, cfg.Motion.Algorithm)
	assert.Equal(t, 7, cfg.Motion.Hysteresis.EnterFrames)
	// untouched fields keep their defaults
	assert.Equal(t, 10, cfg.Motion.Hysteresis.Window)
	assert.Equal(t, postprocess.FusionIntersection, cfg.Fusion.Mode)
	assert.Equal(t, 5, cfg.Cleanup.WindowFrames)
	assert.Equal(t, 640, cfg.Processing.Width)

	// overridden preset, other presets kept
	assert.Equal(t, 60.0, cfg.ColorConfig().RarityPercentile)
	assert.Equal(t, 5.0, cfg.Presets["very-conservative"])
}

func TestPresetsSetRarityPercentile(t *testing.T) {

	cfg := DefaultConfig()
	cfg.Color.RarityPercentile = 42
	assert.Equal(t, 42.0, cfg.ColorConfig().RarityPercentile)

	for label, want := range map[string]float64{
		"very-conservative": 5,
		"conservative":      15,
		"moderate":          30,
		"aggressive":        50,
		"very-aggressive":   80,
	} {
		cfg.Aggressiveness = label
		require.NoError(t, cfg.Validate())
		assert.Equal(t, want, cfg.ColorConfig().RarityPercentile, label)
	}
}

func TestInvalidConfigs(t *testing.T) {

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown preset", func(c *Config) { c.Aggressiveness = "reckless" }},
		{"motion", func(c *Config) { c.Motion.BlurSize = 2 }},
		{"color", func(c *Config) { c.Color.QuantizationBits = 0 }},
		{"fusion", func(c *Config) { c.Fusion.Mode = "xor" }},
		{"cleanup", func(c *Config) { c.Cleanup.ThresholdFrames = c.Cleanup.WindowFrames + 1 }},
		{"processing", func(c *Config) { c.Processing.Width = -1 }},
		{"budget", func(c *Config) { c.FrameBudget = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

			_, err := NewPipeline(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig(t *testing.T) {

	path := filepath.Join(t.TempDir(), "streamdetect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enable_motion: false\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.EnableMotion)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("motion: [not, a, map]"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
