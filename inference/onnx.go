package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/nvr-ai/go-handtrack/inference/providers"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"
)

// Default graph node names of an exported SSD detector.
const (
	DefaultInputName  = "image_tensor"
	DefaultScoresName = "scores"
	DefaultBoxesName  = "boxes"
)

// Manifest names the graph nodes the engine binds. It is read from the
// weights manifest next to the model; JSON and YAML are both accepted.
type Manifest struct {
	Input  string `yaml:"input"`
	Scores string `yaml:"scores"`
	Boxes  string `yaml:"boxes"`
}

// ReadManifest reads a weights manifest. A missing file yields the default
// node names.
//
// Arguments:
//   - path: The manifest path.
//
// Returns:
//   - Manifest: The node names with defaults filled in.
//   - error: An error if the file exists but cannot be read or parsed.
func ReadManifest(path string) (Manifest, error) {
	m := Manifest{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Manifest{}, errors.Wrapf(err, "read manifest %s", path)
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Manifest{}, errors.Wrapf(err, "parse manifest %s", path)
		}
	}

	if m.Input == "" {
		m.Input = DefaultInputName
	}
	if m.Scores == "" {
		m.Scores = DefaultScoresName
	}
	if m.Boxes == "" {
		m.Boxes = DefaultBoxesName
	}
	return m, nil
}

// ONNXLoader loads detector graphs into ONNX Runtime sessions.
type ONNXLoader struct {
	// SharedLibPath overrides the native runtime location.
	SharedLibPath string
	// Provider selects the execution provider.
	Provider providers.Config
	// Logger receives load events. Nil disables logging.
	Logger *zap.Logger
}

// Load implements Loader.
func (l ONNXLoader) Load(ctx context.Context, modelPath, weightsManifestPath string) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrapf(err, "model not found at %s", modelPath)
	}

	manifest, err := ReadManifest(weightsManifestPath)
	if err != nil {
		return nil, err
	}

	if err := providers.Initialize(l.SharedLibPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()

	if err := l.Provider.Apply(options); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{manifest.Input},
		[]string{manifest.Scores, manifest.Boxes},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	logger.Info("model loaded",
		zap.String("model", modelPath),
		zap.String("backend", string(l.Provider.Backend)),
		zap.String("input", manifest.Input),
		zap.Strings("outputs", []string{manifest.Scores, manifest.Boxes}),
	)

	return &onnxEngine{session: session}, nil
}

// onnxEngine runs a dynamic-shape session. The input height and width change
// with the frame size, so output tensors are allocated by the runtime per call.
type onnxEngine struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// Infer implements Engine.
func (e *onnxEngine) Infer(ctx context.Context, input *tensor.Dense) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("input tensor has dtype %v, expected float32", input.Dtype())
	}
	shape := input.Shape()
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}

	in, err := ort.NewTensor(ort.NewShape(dims...), data)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer in.Destroy()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("engine is closed")
	}

	outputs := []ort.Value{nil, nil}
	if err := e.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("error running ORT session: %w", err)
	}
	release := func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}

	scores, err := denseFromValue(outputs[0])
	if err != nil {
		release()
		return nil, errors.Wrap(err, "scores output")
	}
	boxes, err := denseFromValue(outputs[1])
	if err != nil {
		release()
		return nil, errors.Wrap(err, "boxes output")
	}

	return NewOutput(scores, boxes, release), nil
}

// Close implements Engine.
func (e *onnxEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	if err != nil {
		return fmt.Errorf("error destroying ORT session: %w", err)
	}
	return nil
}

// denseFromValue views a runtime float32 tensor as a Dense without copying.
func denseFromValue(v ort.Value) (*tensor.Dense, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Errorf("unexpected output type %T", v)
	}

	shape := t.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}

	return tensor.New(
		tensor.WithShape(dims...),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(t.GetData()),
	), nil
}
