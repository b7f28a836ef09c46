package detector

import (
	"math"
	"sync/atomic"
	"time"
)

// FrameRateTracker turns the duration of the latest cycle into an integer
// frame rate. Only the latest value is kept. Observe has a single writer;
// FPS may be read from any goroutine.
type FrameRateTracker struct {
	fps atomic.Int64
}

// Observe records one cycle and returns the new rate,
// round(1000 / elapsedMillis). A non-positive duration keeps the previous
// rate, which starts at 0.
//
// Arguments:
//   - elapsed: The wall time of the cycle.
//
// Returns:
//   - int: The current frames per second.
func (t *FrameRateTracker) Observe(elapsed time.Duration) int {
	if elapsed <= 0 {
		return t.FPS()
	}

	millis := float64(elapsed) / float64(time.Millisecond)
	fps := int(math.Round(1000 / millis))
	t.fps.Store(int64(fps))
	return fps
}

// FPS returns the latest rate.
func (t *FrameRateTracker) FPS() int {
	return int(t.fps.Load())
}
