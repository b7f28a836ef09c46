// Package detector - Runs detection cycles over video frames.
package detector

import (
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidDimension is returned when a frame cannot be resized to a
	// positive, stride-aligned detector input.
	ErrInvalidDimension = images.ErrInvalidDimension
	// ErrInferenceFailure is returned when the inference engine fails or
	// produces unusable output. The engine error is joined to it.
	ErrInferenceFailure = errors.New("inference failure")
	// ErrMalformedModelParameters is returned when a parameter is out of range.
	ErrMalformedModelParameters = errors.New("malformed model parameters")
	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("detector is closed")
)
