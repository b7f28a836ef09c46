// Package controller - Drives detection cycles from a frame source to a renderer.
package controller

import (
	"context"
	"io"

	"github.com/nvr-ai/go-handtrack/detector"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/nvr-ai/go-handtrack/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FrameSource produces one frame per cycle. It returns io.EOF when exhausted.
type FrameSource interface {
	Frame(ctx context.Context) (images.Frame, error)
}

// Detector is the part of *detector.Detector the loop uses.
type Detector interface {
	Detect(ctx context.Context, frame images.Frame) ([]postprocess.Detection, error)
	FPS() int
	Parameters() detector.Params
}

// Renderer draws a frame with its detections and the current frame rate.
// flipHorizontal tells the renderer whether to mirror what it draws.
type Renderer interface {
	Render(frame images.Frame, detections []postprocess.Detection, fps int, flipHorizontal bool) error
}

// ErrStopLoop is returned by a source or renderer to end the loop cleanly.
var ErrStopLoop = errors.New("stop loop")

// ErrorPolicy decides what a failed cycle does to the loop.
type ErrorPolicy int

const (
	// StopOnError ends the loop with the first failed cycle.
	StopOnError ErrorPolicy = iota
	// SkipOnError logs the failure and continues with the next frame.
	SkipOnError
)

// ParseErrorPolicy maps "stop" or "skip" to an ErrorPolicy.
func ParseErrorPolicy(name string) (ErrorPolicy, error) {
	switch name {
	case "", "stop":
		return StopOnError, nil
	case "skip":
		return SkipOnError, nil
	}
	return StopOnError, errors.Errorf("unknown error policy %q", name)
}

// Loop runs detection cycles back to back until the context is cancelled or
// the source is exhausted. Cycles never overlap: the next frame is requested
// only after the previous cycle rendered.
type Loop struct {
	Source   FrameSource
	Detector Detector
	// Renderer is optional.
	Renderer Renderer
	// OnDetections is called after every successful cycle. Optional.
	OnDetections func(detections []postprocess.Detection)

	Policy ErrorPolicy
	// MaxConsecutiveErrors stops a skipping loop after this many failures in
	// a row. 0 means no limit.
	MaxConsecutiveErrors int
	// Limiter caps the cycle rate. Nil runs cycles as fast as they complete.
	Limiter *rate.Limiter
	Logger  *zap.Logger
}

// Run drives the loop. Cancellation, io.EOF and ErrStopLoop end the loop cleanly; a
// cycle already running is always finished first.
//
// Arguments:
//   - ctx: Cancelling it stops the loop before the next cycle.
//
// Returns:
//   - Stats: What the loop observed.
//   - error: The failure that stopped the loop, or nil.
func (l *Loop) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	if l.Source == nil || l.Detector == nil {
		return stats, errors.New("loop needs a frame source and a detector")
	}

	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	consecutive := 0
	fail := func(stage string, err error) error {
		stats.Failed++
		consecutive++
		if l.Policy == StopOnError {
			return errors.Wrap(err, stage)
		}
		logger.Warn("skipping cycle",
			zap.String("stage", stage),
			zap.Int("consecutive", consecutive),
			zap.Error(err),
		)
		if l.MaxConsecutiveErrors > 0 && consecutive >= l.MaxConsecutiveErrors {
			return errors.Wrapf(err, "%s: %d consecutive failed cycles", stage, consecutive)
		}
		return nil
	}

	for {
		if ctx.Err() != nil {
			return stats, nil
		}
		if l.Limiter != nil {
			if err := l.Limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return stats, nil
				}
				return stats, errors.Wrap(err, "rate limiter")
			}
		}

		frame, err := l.Source.Frame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrStopLoop) || ctx.Err() != nil {
				return stats, nil
			}
			if err := fail("frame", err); err != nil {
				return stats, err
			}
			continue
		}

		detections, err := l.Detector.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return stats, nil
			}
			if err := fail("detect", err); err != nil {
				return stats, err
			}
			continue
		}

		stats.observe(detections)
		if l.OnDetections != nil {
			l.OnDetections(detections)
		}

		if l.Renderer != nil {
			params := l.Detector.Parameters()
			if err := l.Renderer.Render(frame, detections, l.Detector.FPS(), params.FlipHorizontal); err != nil {
				if errors.Is(err, ErrStopLoop) {
					return stats, nil
				}
				if err := fail("render", err); err != nil {
					return stats, err
				}
				continue
			}
		}

		consecutive = 0
	}
}
