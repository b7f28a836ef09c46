// Package inference - Inference engine contract and adapters.
package inference

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// WarmupShape is the zero-filled input used to warm an engine at load time.
var WarmupShape = tensor.Shape{1, 300, 300, 3}

// Engine runs forward inference on a preprocessed [1, H, W, 3] tensor and
// returns the raw detector outputs. Infer may block on hardware.
type Engine interface {
	Infer(ctx context.Context, input *tensor.Dense) (*Output, error)
	Close() error
}

// Loader loads an engine from a model graph and its weights manifest.
type Loader interface {
	Load(ctx context.Context, modelPath, weightsManifestPath string) (Engine, error)
}

// Output holds the two raw tensors an SSD-style detector emits: scores of
// shape [1, N, C] and boxes of shape [1, N, 1, 4] (or [1, N, 4]). The backing
// memory may belong to the engine, so callers must Release the output once the
// raw arrays have been extracted.
type Output struct {
	Scores *tensor.Dense
	Boxes  *tensor.Dense

	release func()
}

// NewOutput wraps engine tensors. release is called once by Release and may be nil.
func NewOutput(scores, boxes *tensor.Dense, release func()) *Output {
	return &Output{Scores: scores, Boxes: boxes, release: release}
}

// Release frees engine-owned memory. Safe to call more than once.
func (o *Output) Release() {
	if o == nil || o.release == nil {
		return
	}
	o.release()
	o.release = nil
}

// Raw is a copy of the inference output detached from engine memory.
type Raw struct {
	// Scores is the flat [N*C] score buffer.
	Scores []float32
	// Boxes is the flat [N*4] box buffer.
	Boxes []float32
	// NumBoxes is N.
	NumBoxes int
	// NumClasses is C.
	NumClasses int
}

// Extract validates the output shapes and copies the raw arrays out of the
// engine tensors.
//
// Returns:
//   - Raw: The copied arrays and their dimensions.
//   - error: An error if either tensor is missing or misshapen.
func (o *Output) Extract() (Raw, error) {
	if o == nil || o.Scores == nil || o.Boxes == nil {
		return Raw{}, errors.New("inference output is missing a tensor")
	}

	scoresShape := o.Scores.Shape()
	if scoresShape.Dims() != 3 || scoresShape[0] != 1 {
		return Raw{}, errors.Errorf("scores tensor has shape %v, expected [1 N C]", scoresShape)
	}
	numBoxes, numClasses := scoresShape[1], scoresShape[2]

	boxesShape := o.Boxes.Shape()
	switch {
	case boxesShape.Dims() == 4 && boxesShape[0] == 1 && boxesShape[1] == numBoxes && boxesShape[2] == 1 && boxesShape[3] == 4:
	case boxesShape.Dims() == 3 && boxesShape[0] == 1 && boxesShape[1] == numBoxes && boxesShape[2] == 4:
	default:
		return Raw{}, errors.Errorf("boxes tensor has shape %v, expected [1 %d 1 4]", boxesShape, numBoxes)
	}

	scores, ok := o.Scores.Data().([]float32)
	if !ok {
		return Raw{}, errors.Errorf("scores tensor has dtype %v, expected float32", o.Scores.Dtype())
	}
	boxes, ok := o.Boxes.Data().([]float32)
	if !ok {
		return Raw{}, errors.Errorf("boxes tensor has dtype %v, expected float32", o.Boxes.Dtype())
	}

	raw := Raw{
		Scores:     make([]float32, numBoxes*numClasses),
		Boxes:      make([]float32, numBoxes*4),
		NumBoxes:   numBoxes,
		NumClasses: numClasses,
	}
	copy(raw.Scores, scores)
	copy(raw.Boxes, boxes)
	return raw, nil
}

// Warmup runs one inference on a zero-filled tensor of the given shape and
// discards the result, so the first real frame does not pay for lazy
// initialisation inside the engine.
//
// Arguments:
//   - ctx: The context for the warmup call.
//   - engine: The engine to warm.
//   - shape: The input shape, usually WarmupShape.
//
// Returns:
//   - error: An error if the warmup inference fails.
func Warmup(ctx context.Context, engine Engine, shape tensor.Shape) error {
	zeros := tensor.New(
		tensor.WithShape(shape...),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(make([]float32, shape.TotalSize())),
	)

	out, err := engine.Infer(ctx, zeros)
	if err != nil {
		return errors.Wrap(err, "warmup inference")
	}
	defer out.Release()

	if _, err := out.Extract(); err != nil {
		return errors.Wrap(err, "warmup output")
	}
	return nil
}

// ModelPaths maps a model type to the graph and weights manifest it is
// loaded from: <dir>/<modelType>/model.onnx and
// <dir>/<modelType>/weights_manifest.json.
func ModelPaths(dir, modelType string) (modelPath, weightsManifestPath string) {
	base := filepath.Join(dir, modelType)
	return filepath.Join(base, "model.onnx"), filepath.Join(base, "weights_manifest.json")
}
