// Package providers - CUDA execution provider.
package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference optimization.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `yaml:"deviceID"`
	// The size limit of the device memory arena in bytes. 0 means unlimited.
	GPUMemLimit int64 `yaml:"gpuMemLimit"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT.
	CudnnConvAlgoSearch int `yaml:"cudnnConvAlgoSearch"`
	// Prefer NHWC operators over NCHW. The detector input is already NHWC.
	PreferNHWC bool `yaml:"preferNHWC"`
}

// Map renders the options as the key/value pairs the CUDA provider accepts.
func (o CUDAOptions) Map() map[string]string {
	m := map[string]string{
		"device_id": fmt.Sprintf("%d", o.DeviceID),
		"cudnn_conv_algo_search": map[int]string{
			0: "EXHAUSTIVE",
			1: "HEURISTIC",
			2: "DEFAULT",
		}[o.CudnnConvAlgoSearch],
	}
	if m["cudnn_conv_algo_search"] == "" {
		m["cudnn_conv_algo_search"] = "EXHAUSTIVE"
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = fmt.Sprintf("%d", o.GPUMemLimit)
	}
	if o.PreferNHWC {
		m["prefer_nhwc"] = "1"
	}
	return m
}

// ToNativeProviderOptions converts the CUDA options to native provider options.
// The caller must Destroy the result.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}

	if err := opts.Update(o.Map()); err != nil {
		opts.Destroy()
		return nil, err
	}

	return opts, nil
}
