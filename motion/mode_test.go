package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModeSwitchHysteresis(t *testing.T) {

	m := newModeSwitch(Hysteresis{
		Window:         1,
		EnterThreshold: 2,
		ExitThreshold:  1,
		EnterFrames:    3,
		ExitFrames:     3,
	})

	// values alternating across the enter threshold never build a run
	for i := 0; i < 10; i++ {
		mag := 1.5
		if i%2 == 0 {
			mag = 2.5
		}
		assert.Equal(t, Static, m.observe(mag))
	}

	assert.Equal(t, Static, m.observe(3))
	assert.Equal(t, Static, m.observe(3))
	assert.Equal(t, Moving, m.observe(3))

	// between the thresholds the current mode holds
	for i := 0; i < 10; i++ {
		assert.Equal(t, Moving, m.observe(1.5))
	}

	assert.Equal(t, Moving, m.observe(0.5))
	assert.Equal(t, Moving, m.observe(0.5))
	assert.Equal(t, Static, m.observe(0.5))
}

func TestModeSwitchRollingMean(t *testing.T) {

	m := newModeSwitch(Hysteresis{
		Window:         4,
		EnterThreshold: 2,
		ExitThreshold:  1,
		EnterFrames:    1,
		ExitFrames:     1,
	})

	// a single spike is averaged away
	assert.Equal(t, Static, m.observe(0))
	assert.Equal(t, Static, m.observe(0))
	assert.Equal(t, Static, m.observe(0))
	assert.Equal(t, Static, m.observe(6))
	assert.InDelta(t, 1.5, m.mean(), 1e-9)

	// the window wraps and drops the oldest values
	assert.Equal(t, Moving, m.observe(6))
	assert.InDelta(t, 3, m.mean(), 1e-9)

	m.reset()
	assert.Equal(t, 0.0, m.mean())
	assert.Equal(t, Static, m.current)
}
