package motion

import (
	"gonum.org/v1/gonum/stat"
)

// modeSwitch decides the effective mode in Auto from the rolling mean of
// global motion magnitude.  Switching needs a run of consecutive frames
// beyond the threshold of the other side so values near one threshold do
// not flap.
type modeSwitch struct {
	cfg     Hysteresis
	window  []float64
	next    int
	full    bool
	current Mode
	// run counts consecutive frames favouring the other mode
	run int
}

func newModeSwitch(cfg Hysteresis) *modeSwitch {
	return &modeSwitch{
		cfg:     cfg,
		window:  make([]float64, cfg.Window),
		current: Static,
	}
}

// configure applies new thresholds, keeping the current mode when the window
// size is unchanged
func (m *modeSwitch) configure(cfg Hysteresis) {
	if cfg.Window != m.cfg.Window {
		m.window = make([]float64, cfg.Window)
		m.next, m.full = 0, false
	}
	m.cfg = cfg
	m.run = 0
}

func (m *modeSwitch) reset() {
	m.next, m.full, m.run = 0, false, 0
	m.current = Static
}

// mean returns the average magnitude over the filled part of the window
func (m *modeSwitch) mean() float64 {
	n := m.next
	if m.full {
		n = len(m.window)
	}
	if n == 0 {
		return 0
	}
	return stat.Mean(m.window[:n], nil)
}

// observe records the global motion magnitude of a frame and returns the
// effective mode
func (m *modeSwitch) observe(magnitude float64) Mode {

	m.window[m.next] = magnitude
	m.next++
	if m.next == len(m.window) {
		m.next, m.full = 0, true
	}

	avg := m.mean()

	switch m.current {
	case Static:
		if avg > m.cfg.EnterThreshold {
			m.run++
		} else {
			m.run = 0
		}

		if m.run >= m.cfg.EnterFrames {
			m.current, m.run = Moving, 0
		}

	case Moving:
		if avg < m.cfg.ExitThreshold {
			m.run++
		} else {
			m.run = 0
		}

		if m.run >= m.cfg.ExitFrames {
			m.current, m.run = Static, 0
		}
	}

	return m.current
}
