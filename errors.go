package streamdetect

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrame is returned by Process for empty frames, frames that
	// are not 3 channel BGR and timestamps that go backwards.  A frame whose
	// size differs from the previous one is not invalid, the detector models
	// are reset and relearn at the new resolution.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrInvalidConfig wraps every configuration validation failure
	ErrInvalidConfig = errors.New("invalid config")
)

// StageError records the failure of one pipeline stage on one frame.  The
// pipeline recovers from it and returns the output of the last completed
// stage.
type StageError struct {
	Stage     Stage
	Timestamp float64
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed on frame at %.3fs: %v", e.Stage, e.Timestamp, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
