package streamdetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRunnerProcessesFrames(t *testing.T) {

	defer goleak.VerifyNone(t)

	p := newPipeline(t, colorOnly())

	results := make(chan Result, 1)
	r := NewRunner(p, func(res Result) { results <- res })
	defer r.Close()

	frame := redPatchFrame()
	defer frame.Close()

	require.True(t, r.Submit(frame, 1))

	select {
	case res := <-results:
		require.NoError(t, res.Err)
		assert.Equal(t, 1.0, res.Timestamp)
		assert.Len(t, res.Detections, 1)
		assert.Contains(t, res.Timings, StageTotal)
	case <-time.After(5 * time.Second):
		t.Fatal("no result from runner")
	}
}

func TestRunnerDropsWhileBusy(t *testing.T) {

	defer goleak.VerifyNone(t)

	p := newPipeline(t, colorOnly())

	started := make(chan struct{})
	release := make(chan struct{})

	p.beforeStage = func(s Stage) {
		if s == StagePreprocess {
			close(started)
			<-release
		}
	}

	results := make(chan Result, 2)
	r := NewRunner(p, func(res Result) { results <- res })

	frame := redPatchFrame()
	defer frame.Close()

	require.True(t, r.Submit(frame, 1))
	<-started

	assert.True(t, r.Busy())
	assert.False(t, r.Submit(frame, 2))
	assert.False(t, r.Submit(frame, 3))
	assert.Equal(t, uint64(2), p.Metrics().Dropped)

	close(release)

	select {
	case res := <-results:
		assert.Equal(t, 1.0, res.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("no result from runner")
	}

	r.Close()
	assert.False(t, r.Submit(frame, 4))
	assert.Len(t, results, 0)

	// closing twice is safe
	r.Close()
}

func TestRunnerReportsRejectedFrames(t *testing.T) {

	defer goleak.VerifyNone(t)

	p := newPipeline(t, colorOnly())

	results := make(chan Result, 1)
	r := NewRunner(p, func(res Result) { results <- res })
	defer r.Close()

	frame := redPatchFrame()
	defer frame.Close()

	p.Lock()
	p.seen, p.lastTS = true, 10
	p.Unlock()

	require.True(t, r.Submit(frame, 5))

	select {
	case res := <-results:
		assert.ErrorIs(t, res.Err, ErrInvalidFrame)
	case <-time.After(5 * time.Second):
		t.Fatal("no result from runner")
	}
}
