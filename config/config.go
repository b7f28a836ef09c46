// Package config - YAML configuration of the handtrack command.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/nvr-ai/go-handtrack/capture"
	"github.com/nvr-ai/go-handtrack/controller"
	"github.com/nvr-ai/go-handtrack/detector"
	"github.com/nvr-ai/go-handtrack/inference"
	"github.com/nvr-ai/go-handtrack/inference/providers"
	"github.com/nvr-ai/go-handtrack/logger"
	"github.com/nvr-ai/go-handtrack/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Inference engines.
const (
	EngineONNXRuntime = "onnxruntime"
	EngineOpenCV      = "opencv"
)

// Frame sources.
const (
	SourceCamera    = "camera"
	SourceDirectory = "directory"
)

// Config is the whole configuration file.
type Config struct {
	Log     logger.Config        `yaml:"log"`
	Model   ModelConfig          `yaml:"model"`
	Params  detector.ParamsPatch `yaml:"params"`
	Source  SourceConfig         `yaml:"source"`
	Loop    LoopConfig           `yaml:"loop"`
	Display DisplayConfig        `yaml:"display"`
}

// ModelConfig locates the model and selects how it runs.
type ModelConfig struct {
	// Engine is onnxruntime or opencv.
	Engine string `yaml:"engine"`
	// Dir holds one subdirectory per model type.
	Dir string `yaml:"dir"`
	// SharedLibPath is the onnxruntime library. Empty means autodetect.
	SharedLibPath string `yaml:"sharedLibPath"`
	// Normalization is none, zeroToOne or minusOneToOne.
	Normalization string `yaml:"normalization"`
	// Workers above 1 computes suppression overlaps on that many goroutines.
	Workers int `yaml:"workers"`

	// Provider configures the onnxruntime engine.
	Provider providers.Config `yaml:"provider"`
	// OpenCV configures the opencv engine.
	OpenCV OpenCVConfig `yaml:"opencv"`
}

// OpenCVConfig selects the OpenCV DNN backend and target.
type OpenCVConfig struct {
	Backend string `yaml:"backend"`
	Target  string `yaml:"target"`
}

// SourceConfig selects where frames come from.
type SourceConfig struct {
	// Kind is camera or directory.
	Kind string `yaml:"kind"`
	// Directory of still images, for the directory source.
	Directory string `yaml:"directory"`
	// Repeat restarts the directory source at the end instead of stopping.
	Repeat bool `yaml:"repeat"`

	Camera capture.Options `yaml:"camera"`
}

// LoopConfig controls the detection loop.
type LoopConfig struct {
	// Policy is stop or skip.
	Policy string `yaml:"policy"`
	// MaxConsecutiveErrors stops a skipping loop. 0 means no limit.
	MaxConsecutiveErrors int `yaml:"maxConsecutiveErrors"`
	// MaxRate caps cycles per second. 0 means unlimited.
	MaxRate float64 `yaml:"maxRate"`
}

// DisplayConfig controls the preview window.
type DisplayConfig struct {
	Enabled bool     `yaml:"enabled"`
	Title   string   `yaml:"title"`
	Labels  []string `yaml:"labels"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: logger.Config{Level: "info", Format: logger.FormatConsole},
		Model: ModelConfig{
			Engine:        EngineONNXRuntime,
			Dir:           "models",
			Normalization: detector.NormalizeNone.String(),
			Provider:      providers.Config{Backend: providers.CPUProviderBackend},
		},
		Source: SourceConfig{Kind: SourceCamera},
		Loop:   LoopConfig{Policy: "skip", MaxConsecutiveErrors: 30},
		Display: DisplayConfig{
			Enabled: true,
			Title:   "handtrack",
			Labels:  []string{"background", "hand"},
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
//
// Arguments:
//   - path: The configuration file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read or is invalid.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once.
func (c Config) Validate() error {
	var problems []string
	check := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	check(c.Log.Validate())
	switch c.Model.Engine {
	case EngineONNXRuntime:
		check(c.Model.Provider.Validate())
	case EngineOpenCV:
		check(c.OpenCVLoader(nil).Validate())
	default:
		problems = append(problems, fmt.Sprintf("model.engine must be onnxruntime or opencv, got %q", c.Model.Engine))
	}
	_, err := detector.ParseNormalization(c.Model.Normalization)
	check(err)
	if c.Model.Dir == "" {
		problems = append(problems, "model.dir is required")
	}
	if c.Model.Workers < 0 {
		problems = append(problems, "model.workers must not be negative")
	}

	_, err = c.DetectorParams()
	check(err)

	switch c.Source.Kind {
	case SourceCamera:
		if c.Source.Camera.Width < 0 || c.Source.Camera.Height < 0 {
			problems = append(problems, "source.camera size must not be negative")
		}
	case SourceDirectory:
		if c.Source.Directory == "" {
			problems = append(problems, "source.directory is required for the directory source")
		}
	default:
		problems = append(problems, fmt.Sprintf("source.kind must be camera or directory, got %q", c.Source.Kind))
	}

	_, err = controller.ParseErrorPolicy(c.Loop.Policy)
	check(err)
	if c.Loop.MaxConsecutiveErrors < 0 {
		problems = append(problems, "loop.maxConsecutiveErrors must not be negative")
	}
	if c.Loop.MaxRate < 0 {
		problems = append(problems, "loop.maxRate must not be negative")
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DetectorParams applies the params section over the detector defaults.
func (c Config) DetectorParams() (detector.Params, error) {
	return detector.DefaultParams().Apply(c.Params)
}

// OpenCVLoader returns the loader of the opencv engine.
func (c Config) OpenCVLoader(log *zap.Logger) inference.OpenCVLoader {
	return inference.OpenCVLoader{
		Backend: c.Model.OpenCV.Backend,
		Target:  c.Model.OpenCV.Target,
		Logger:  log,
	}
}

// Backend returns the suppression backend for the configured worker count.
func (c Config) Backend() postprocess.Backend {
	if c.Model.Workers > 1 {
		return postprocess.Workers{N: c.Model.Workers}
	}
	return postprocess.CPU{}
}

// Limiter returns the cycle rate limiter, or nil when the rate is unlimited.
func (c Config) Limiter() *rate.Limiter {
	if c.Loop.MaxRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.Loop.MaxRate), 1)
}
