package detector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/nvr-ai/go-handtrack/inference"
	"github.com/nvr-ai/go-handtrack/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Detector runs detection cycles: preprocess, infer, classify, suppress,
// decode and assemble. At most one cycle runs at a time.
type Detector struct {
	// cycle serializes Detect, SetParameters and Close.
	cycle sync.Mutex

	engine  inference.Engine
	params  atomic.Pointer[Params]
	pre     *Preprocessor
	fps     FrameRateTracker
	backend postprocess.Backend
	clock   clock.Clock
	logger  *zap.Logger
	closed  bool
}

type options struct {
	logger        *zap.Logger
	clock         clock.Clock
	backend       postprocess.Backend
	normalization NormalizationType
	modelDir      string
	warmupShape   tensor.Shape
}

// Option configures a Detector.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used to time cycles.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithBackend sets the suppression overlap backend. The default is postprocess.CPU.
func WithBackend(b postprocess.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithNormalization sets how pixel values are scaled before inference.
func WithNormalization(n NormalizationType) Option {
	return func(o *options) { o.normalization = n }
}

// WithModelDir sets the directory Load resolves model types under.
func WithModelDir(dir string) Option {
	return func(o *options) { o.modelDir = dir }
}

// WithWarmupShape overrides the input shape of the load-time warmup.
func WithWarmupShape(shape tensor.Shape) Option {
	return func(o *options) { o.warmupShape = shape }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:      zap.NewNop(),
		clock:       clock.New(),
		backend:     postprocess.CPU{},
		modelDir:    "models",
		warmupShape: inference.WarmupShape,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load loads the model selected by params.ModelType, warms it up with one
// zero-filled inference, and returns a ready detector.
//
// Arguments:
//   - ctx: The context for loading and warmup.
//   - loader: The engine loader.
//   - params: The initial model parameters.
//   - opts: Optional settings.
//
// Returns:
//   - *Detector: The ready detector.
//   - error: ErrMalformedModelParameters, a load error, or a warmup error.
func Load(ctx context.Context, loader inference.Loader, params Params, opts ...Option) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	modelPath, manifestPath := inference.ModelPaths(o.modelDir, params.ModelType)
	start := o.clock.Now()

	engine, err := loader.Load(ctx, modelPath, manifestPath)
	if err != nil {
		return nil, errors.Wrapf(err, "load model %s", params.ModelType)
	}

	if err := inference.Warmup(ctx, engine, o.warmupShape); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}

	o.logger.Info("detector loaded",
		zap.String("modelType", params.ModelType),
		zap.String("model", modelPath),
		zap.Duration("elapsed", o.clock.Since(start)),
	)

	return newDetector(engine, params, o), nil
}

// New wraps an already loaded engine. No warmup is performed.
//
// Arguments:
//   - engine: The inference engine. The detector takes ownership.
//   - params: The initial model parameters.
//   - opts: Optional settings.
//
// Returns:
//   - *Detector: The detector.
//   - error: ErrMalformedModelParameters if params are out of range.
func New(engine inference.Engine, params Params, opts ...Option) (*Detector, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return newDetector(engine, params, buildOptions(opts)), nil
}

func newDetector(engine inference.Engine, params Params, o options) *Detector {
	d := &Detector{
		engine:  engine,
		pre:     NewPreprocessor(o.normalization),
		backend: o.backend,
		clock:   o.clock,
		logger:  o.logger,
	}
	d.params.Store(&params)
	return d
}

// Detect runs one detection cycle on a frame.
//
// Once started, a cycle runs to completion: cancelling ctx does not abort the
// inference call. Zero surviving candidates is not an error.
//
// Arguments:
//   - ctx: Checked before the cycle starts.
//   - frame: The frame to analyze. Not modified.
//
// Returns:
//   - []postprocess.Detection: Detections in descending score order, never nil on success.
//   - error: ErrInvalidDimension, ErrInferenceFailure, or ErrClosed.
func (d *Detector) Detect(ctx context.Context, frame images.Frame) ([]postprocess.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.cycle.Lock()
	defer d.cycle.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	start := d.clock.Now()
	params := *d.params.Load()

	input, release, err := d.pre.Preprocess(frame, params)
	if err != nil {
		return nil, err
	}

	out, err := d.engine.Infer(context.WithoutCancel(ctx), input)
	release()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}

	raw, err := out.Extract()
	out.Release()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}

	maxScores, classes, err := postprocess.MaxScores(raw.Scores, raw.NumBoxes, raw.NumClasses)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}
	boxes, err := images.BoxesFromFlat(raw.Boxes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}

	keep, err := postprocess.NonMaxSuppression(boxes, maxScores, postprocess.NMSConfig{
		MaxNumBoxes:    params.MaxNumBoxes,
		IoUThreshold:   params.IoUThreshold,
		ScoreThreshold: params.ScoreThreshold,
		Backend:        d.backend,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}

	detections := postprocess.Assemble(keep, boxes, maxScores, classes, frame.Width, frame.Height)

	elapsed := d.clock.Since(start)
	fps := d.fps.Observe(elapsed)

	d.logger.Debug("detection cycle",
		zap.Int("candidates", raw.NumBoxes),
		zap.Int("detections", len(detections)),
		zap.Duration("elapsed", elapsed),
		zap.Int("fps", fps),
	)

	return detections, nil
}

// FPS returns the frame rate of the latest successful cycle.
func (d *Detector) FPS() int {
	return d.fps.FPS()
}

// Parameters returns the current model parameters without blocking.
func (d *Detector) Parameters() Params {
	return *d.params.Load()
}

// SetParameters validates and installs a partial update between cycles. A
// rejected patch leaves the current parameters in place.
//
// Arguments:
//   - patch: The fields to replace.
//
// Returns:
//   - Params: The parameters now in effect.
//   - error: ErrMalformedModelParameters if the patch is out of range.
func (d *Detector) SetParameters(patch ParamsPatch) (Params, error) {
	d.cycle.Lock()
	defer d.cycle.Unlock()

	current := *d.params.Load()
	next, err := current.Apply(patch)
	if err != nil {
		d.logger.Warn("rejected parameter update", zap.Error(err))
		return current, err
	}
	if next.ModelType != current.ModelType {
		d.logger.Warn("modelType changed; the loaded model is kept until the detector is reloaded",
			zap.String("loaded", current.ModelType),
			zap.String("requested", next.ModelType),
		)
	}

	d.params.Store(&next)
	d.logger.Info("parameters updated",
		zap.Bool("flipHorizontal", next.FlipHorizontal),
		zap.Int("outputStride", next.OutputStride),
		zap.Float64("imageScaleFactor", next.ImageScaleFactor),
		zap.Int("maxNumBoxes", next.MaxNumBoxes),
		zap.Float32("iouThreshold", next.IoUThreshold),
		zap.Float32("scoreThreshold", next.ScoreThreshold),
	)
	return next, nil
}

// Close waits for any running cycle and disposes the engine. Later calls are no-ops.
func (d *Detector) Close() error {
	d.cycle.Lock()
	defer d.cycle.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.engine.Close()
}
