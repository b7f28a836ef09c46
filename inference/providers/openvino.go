// Package providers - OpenVINO execution provider.
package providers

import "fmt"

const (
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type (CPU, GPU, NPU).
	DeviceType string `yaml:"deviceType"`
	// FP32, FP16 or ACCURACY. Empty keeps the device default.
	Precision string `yaml:"precision"`
	// Overrides the accelerator default number of threads. 0 keeps the default.
	NumOfThreads int `yaml:"numOfThreads"`
	// Rewrite dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `yaml:"disableDynamicShapes"`
}

// Map renders the options as the key/value pairs the OpenVINO provider
// accepts. Unset options are omitted so the provider keeps its defaults.
func (o OpenVINOOptions) Map() map[string]string {
	m := map[string]string{}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		m["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		m["num_of_threads"] = fmt.Sprintf("%d", o.NumOfThreads)
	}
	if o.DisableDynamicShapes {
		m["disable_dynamic_shapes"] = "true"
	}
	return m
}
