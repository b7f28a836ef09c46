// Package providers - CoreML execution provider.
package providers

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML provider flags, see coreml_provider_factory.h.
const (
	coreMLFlagUseCPUOnly          uint32 = 0x001
	coreMLFlagEnableOnSubgraph    uint32 = 0x002
	coreMLFlagOnlyEnableDeviceANE uint32 = 0x004
	coreMLFlagStaticInputShapes   uint32 = 0x008
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `yaml:"cpuOnly"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `yaml:"enableOnSubgraphs"`
	// Only run on devices with an Apple Neural Engine.
	OnlyNeuralEngine bool `yaml:"onlyNeuralEngine"`
	// Only allow nodes with static input shapes. Camera frames change size
	// with imageScaleFactor, so this is off by default.
	RequireStaticInputShapes bool `yaml:"requireStaticInputShapes"`
}

// Flags packs the options into the bitmask the CoreML provider expects.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.CPUOnly {
		flags |= coreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraphs {
		flags |= coreMLFlagEnableOnSubgraph
	}
	if o.OnlyNeuralEngine {
		flags |= coreMLFlagOnlyEnableDeviceANE
	}
	if o.RequireStaticInputShapes {
		flags |= coreMLFlagStaticInputShapes
	}
	return flags
}
