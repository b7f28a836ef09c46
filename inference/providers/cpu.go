// Package providers - CPU based execution provider.
package providers

const (
	// CPUProviderBackend runs the graph on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)
