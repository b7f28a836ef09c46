package inference

import (
	"context"
	"os"
	"slices"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// OpenCV DNN backends and targets accepted by OpenCVLoader.
var (
	OpenCVBackends = []string{"", "default", "opencv", "openvino", "cuda", "vulkan"}
	OpenCVTargets  = []string{"", "cpu", "fp32", "fp16", "vpu", "vulkan", "cuda", "cuda_fp16"}
)

// OpenCVLoader loads detector graphs with the OpenCV DNN module. It needs no
// onnxruntime library, only the OpenCV build gocv links against.
type OpenCVLoader struct {
	// Backend is one of OpenCVBackends. Empty means opencv.
	Backend string
	// Target is one of OpenCVTargets. Empty means cpu.
	Target string
	// Logger receives load events. Nil disables logging.
	Logger *zap.Logger
}

// Validate reports an unknown backend or target.
func (l OpenCVLoader) Validate() error {
	if !slices.Contains(OpenCVBackends, l.Backend) {
		return errors.Errorf("unknown OpenCV DNN backend %q", l.Backend)
	}
	if !slices.Contains(OpenCVTargets, l.Target) {
		return errors.Errorf("unknown OpenCV DNN target %q", l.Target)
	}
	return nil
}

// Load implements Loader.
func (l OpenCVLoader) Load(ctx context.Context, modelPath, weightsManifestPath string) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
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

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, errors.Errorf("OpenCV could not read model %s", modelPath)
	}

	backend, target := l.Backend, l.Target
	if backend == "" {
		backend = "opencv"
	}
	if target == "" {
		target = "cpu"
	}
	net.SetPreferableBackend(gocv.ParseNetBackend(backend))
	net.SetPreferableTarget(gocv.ParseNetTarget(target))

	logger.Info("model loaded",
		zap.String("model", modelPath),
		zap.String("engine", "opencv"),
		zap.String("backend", backend),
		zap.String("target", target),
		zap.String("input", manifest.Input),
		zap.Strings("outputs", []string{manifest.Scores, manifest.Boxes}),
	)

	return &openCVEngine{
		net:     &net,
		input:   manifest.Input,
		outputs: []string{manifest.Scores, manifest.Boxes},
	}, nil
}

// openCVEngine runs a gocv.Net. Outputs are copied out of OpenCV memory, so
// the returned Output needs no release.
type openCVEngine struct {
	mu      sync.Mutex
	net     *gocv.Net
	input   string
	outputs []string
}

// Infer implements Engine.
func (e *openCVEngine) Infer(ctx context.Context, input *tensor.Dense) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, ok := input.Data().([]float32)
	if !ok || len(data) == 0 {
		return nil, errors.Errorf("input tensor has dtype %v, expected non-empty float32", input.Dtype())
	}

	view, err := gocv.NewMatWithSizesFromBytes(input.Shape(), gocv.MatTypeCV32F, float32Bytes(data))
	if err != nil {
		return nil, errors.Wrap(err, "create input blob")
	}
	blob := view.Clone()
	view.Close()
	defer blob.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.net == nil {
		return nil, errors.New("engine is closed")
	}

	e.net.SetInput(blob, e.input)
	outs := e.net.ForwardLayers(e.outputs)
	defer func() {
		for _, m := range outs {
			m.Close()
		}
	}()
	if len(outs) != len(e.outputs) {
		return nil, errors.Errorf("OpenCV returned %d outputs, expected %d", len(outs), len(e.outputs))
	}

	scores, err := denseFromMat(outs[0])
	if err != nil {
		return nil, errors.Wrap(err, "scores output")
	}
	boxes, err := denseFromMat(outs[1])
	if err != nil {
		return nil, errors.Wrap(err, "boxes output")
	}
	return NewOutput(scores, boxes, nil), nil
}

// Close implements Engine.
func (e *openCVEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.net == nil {
		return nil
	}
	err := e.net.Close()
	e.net = nil
	return errors.Wrap(err, "close OpenCV net")
}

// denseFromMat copies a float32 Mat of any rank into a Dense.
func denseFromMat(m gocv.Mat) (*tensor.Dense, error) {
	if m.Type() != gocv.MatTypeCV32F {
		return nil, errors.Errorf("unexpected output type %v", m.Type())
	}
	values, err := m.DataPtrFloat32()
	if err != nil {
		return nil, err
	}

	backing := make([]float32, len(values))
	copy(backing, values)
	return tensor.New(
		tensor.WithShape(m.Size()...),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(backing),
	), nil
}

// float32Bytes reinterprets a float32 slice as its bytes in native order.
func float32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*4)
}
