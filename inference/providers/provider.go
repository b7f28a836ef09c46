// Package providers - Execution providers for ONNX Runtime sessions.
package providers

import (
	"fmt"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

// ErrUnsupportedBackend is returned for a backend name this package does not know.
var ErrUnsupportedBackend = errors.New("unsupported execution provider backend")

// Backends lists every backend Apply understands.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CoreMLProviderBackend,
	CUDAProviderBackend,
	OpenVINOProviderBackend,
}

// Config selects the execution provider for a session and carries the
// provider-specific options.
type Config struct {
	// Backend specifies the backend to use. Empty means CPU.
	Backend ProviderBackend `yaml:"backend"`
	// IntraOpThreads parallelises work inside a node. 0 lets the runtime decide.
	IntraOpThreads int `yaml:"intraOpThreads"`
	// InterOpThreads parallelises independent nodes. 0 lets the runtime decide.
	InterOpThreads int `yaml:"interOpThreads"`

	CoreML   CoreMLOptions   `yaml:"coreml"`
	CUDA     CUDAOptions     `yaml:"cuda"`
	OpenVINO OpenVINOOptions `yaml:"openvino"`
}

// Validate checks the backend name and thread counts.
//
// Returns:
//   - error: An error describing the first invalid field.
func (c Config) Validate() error {
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return errors.Errorf("thread counts must not be negative, got intra=%d inter=%d",
			c.IntraOpThreads, c.InterOpThreads)
	}
	if c.Backend == "" {
		return nil
	}
	for _, b := range Backends {
		if c.Backend == b {
			return nil
		}
	}
	return errors.Wrapf(ErrUnsupportedBackend, "%q", c.Backend)
}

// Apply configures threading and appends the selected execution provider to
// the session options.
//
// Arguments:
//   - options: The session options to configure.
//
// Returns:
//   - error: An error if the provider could not be enabled.
func (c Config) Apply(options *ort.SessionOptions) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := options.SetIntraOpNumThreads(c.IntraOpThreads); err != nil {
		return fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(c.InterOpThreads); err != nil {
		return fmt.Errorf("error setting inter-op threads: %w", err)
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fmt.Errorf("error setting graph optimization level: %w", err)
	}

	switch c.Backend {
	case "", CPUProviderBackend:
		return nil
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(c.CoreML.Flags()); err != nil {
			return fmt.Errorf("error enabling CoreML: %w", err)
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(c.OpenVINO.Map()); err != nil {
			return fmt.Errorf("error enabling OpenVINO: %w", err)
		}
	case CUDAProviderBackend:
		cuda, err := c.CUDA.ToNativeProviderOptions()
		if err != nil {
			return fmt.Errorf("error converting CUDA options: %w", err)
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fmt.Errorf("error enabling CUDA: %w", err)
		}
	}

	return nil
}
