package detector

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Params are the model parameters read by every stage of a detection cycle.
// A Params value is never mutated once installed; updates go through Apply.
type Params struct {
	// FlipHorizontal mirrors the input before inference.
	FlipHorizontal bool `yaml:"flipHorizontal"`
	// OutputStride is the detector's downsampling factor used for resize alignment.
	OutputStride int `yaml:"outputStride"`
	// ImageScaleFactor downscales frames before inference, in (0, 1].
	ImageScaleFactor float64 `yaml:"imageScaleFactor"`
	// MaxNumBoxes caps the number of boxes kept by suppression.
	MaxNumBoxes int `yaml:"maxNumBoxes"`
	// IoUThreshold is the suppression overlap cutoff, in [0, 1].
	IoUThreshold float32 `yaml:"iouThreshold"`
	// ScoreThreshold is the minimum confidence retained, in [0, 1].
	ScoreThreshold float32 `yaml:"scoreThreshold"`
	// ModelType selects the detector graph and weights.
	ModelType string `yaml:"modelType"`
}

// DefaultParams returns the parameters of the bundled hand detector.
func DefaultParams() Params {
	return Params{
		FlipHorizontal:   true,
		OutputStride:     16,
		ImageScaleFactor: 0.7,
		MaxNumBoxes:      20,
		IoUThreshold:     0.5,
		ScoreThreshold:   0.99,
		ModelType:        "ssdlitemobilenetv2",
	}
}

// Validate reports every out-of-range field at once.
//
// Returns:
//   - error: ErrMalformedModelParameters describing each problem, or nil.
func (p Params) Validate() error {
	var problems []string

	if p.OutputStride <= 0 {
		problems = append(problems, fmt.Sprintf("outputStride must be positive, got %d", p.OutputStride))
	}
	if math.IsNaN(p.ImageScaleFactor) || p.ImageScaleFactor <= 0 || p.ImageScaleFactor > 1 {
		problems = append(problems, fmt.Sprintf("imageScaleFactor must be in (0, 1], got %g", p.ImageScaleFactor))
	}
	if p.MaxNumBoxes <= 0 {
		problems = append(problems, fmt.Sprintf("maxNumBoxes must be positive, got %d", p.MaxNumBoxes))
	}
	if !unitInterval(p.IoUThreshold) {
		problems = append(problems, fmt.Sprintf("iouThreshold must be in [0, 1], got %g", p.IoUThreshold))
	}
	if !unitInterval(p.ScoreThreshold) {
		problems = append(problems, fmt.Sprintf("scoreThreshold must be in [0, 1], got %g", p.ScoreThreshold))
	}
	if strings.TrimSpace(p.ModelType) == "" {
		problems = append(problems, "modelType must not be empty")
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrMalformedModelParameters, strings.Join(problems, "; "))
	}
	return nil
}

// unitInterval is false for NaN.
func unitInterval(v float32) bool {
	return v >= 0 && v <= 1
}

// ParamsPatch is a partial update. Nil fields keep their current value.
type ParamsPatch struct {
	FlipHorizontal   *bool    `yaml:"flipHorizontal,omitempty"`
	OutputStride     *int     `yaml:"outputStride,omitempty"`
	ImageScaleFactor *float64 `yaml:"imageScaleFactor,omitempty"`
	MaxNumBoxes      *int     `yaml:"maxNumBoxes,omitempty"`
	IoUThreshold     *float32 `yaml:"iouThreshold,omitempty"`
	ScoreThreshold   *float32 `yaml:"scoreThreshold,omitempty"`
	ModelType        *string  `yaml:"modelType,omitempty"`
}

// Apply returns a copy of p with the patch fields set, validated as a whole.
// p itself is left untouched, and an invalid result is never returned.
//
// Arguments:
//   - patch: The fields to replace.
//
// Returns:
//   - Params: The new parameters.
//   - error: ErrMalformedModelParameters if the result is out of range.
func (p Params) Apply(patch ParamsPatch) (Params, error) {
	next := p

	if patch.FlipHorizontal != nil {
		next.FlipHorizontal = *patch.FlipHorizontal
	}
	if patch.OutputStride != nil {
		next.OutputStride = *patch.OutputStride
	}
	if patch.ImageScaleFactor != nil {
		next.ImageScaleFactor = *patch.ImageScaleFactor
	}
	if patch.MaxNumBoxes != nil {
		next.MaxNumBoxes = *patch.MaxNumBoxes
	}
	if patch.IoUThreshold != nil {
		next.IoUThreshold = *patch.IoUThreshold
	}
	if patch.ScoreThreshold != nil {
		next.ScoreThreshold = *patch.ScoreThreshold
	}
	if patch.ModelType != nil {
		next.ModelType = *patch.ModelType
	}

	if err := next.Validate(); err != nil {
		return p, err
	}
	return next, nil
}

// Patch returns a patch that sets every field to the value in p.
func (p Params) Patch() ParamsPatch {
	return ParamsPatch{
		FlipHorizontal:   &p.FlipHorizontal,
		OutputStride:     &p.OutputStride,
		ImageScaleFactor: &p.ImageScaleFactor,
		MaxNumBoxes:      &p.MaxNumBoxes,
		IoUThreshold:     &p.IoUThreshold,
		ScoreThreshold:   &p.ScoreThreshold,
		ModelType:        &p.ModelType,
	}
}
