package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-handtrack/benchmark"
	"github.com/nvr-ai/go-handtrack/config"
	"github.com/nvr-ai/go-handtrack/inference/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidate_Defaults(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "model:     models/ssdlitemobilenetv2")
	assert.Contains(t, out, "provider:  cpu")
	assert.Contains(t, out, "source:    camera")
	assert.Contains(t, out, "flip:      true")
	assert.Contains(t, out, "nms:       max 20, iou 0.5, score 0.99")
}

func TestValidate_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handtrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  dir: /srv/models
params:
  scoreThreshold: 0.7
  maxNumBoxes: 5
`), 0o600))

	out, err := execute(t, "validate",
		"--config", path,
		"--score-threshold", "0.6",
		"--flip=false",
		"--dir", "./frames",
		"--backend", "openvino",
		"--model-type", "palm",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "model:     /srv/models/palm")
	assert.Contains(t, out, "provider:  openvino")
	assert.Contains(t, out, "source:    directory")
	assert.Contains(t, out, "flip:      false")
	assert.Contains(t, out, "nms:       max 5, iou 0.5, score 0.6")
}

func TestValidate_Rejects(t *testing.T) {
	_, err := execute(t, "validate", "--score-threshold", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoreThreshold")

	_, err = execute(t, "validate", "--source", "directory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.directory")

	_, err = execute(t, "validate", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestOpenSource(t *testing.T) {
	log := zaptest.NewLogger(t)

	_, _, err := openSource(config.SourceConfig{Kind: "satellite"}, log)
	assert.Error(t, err)

	_, _, err = openSource(config.SourceConfig{Kind: config.SourceDirectory, Directory: t.TempDir()}, log)
	assert.Error(t, err, "an empty directory has no frames")
}

func TestBackendName(t *testing.T) {
	assert.Equal(t, "cpu", backendName(""))
	assert.Equal(t, "cuda", backendName(providers.CUDAProviderBackend))
}

func TestBench_RequiresDirectory(t *testing.T) {
	_, err := execute(t, "bench")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dir")

	_, err = execute(t, "bench", "--dir", t.TempDir())
	assert.Error(t, err, "an empty directory has no frames")

	_, err = execute(t, "bench", "--dir", t.TempDir(), "--scenarios", filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestPrintResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, "Quick", []benchmark.PerformanceMetrics{{
		Scenario:        benchmark.Scenario{Name: "quick_640x480"},
		FramesPerSecond: 31.25,
		Latency:         benchmark.LatencyMetrics{P50: 30 * time.Millisecond, P95: 42 * time.Millisecond},
		Errors:          2,
	}})
	assert.Contains(t, out.String(), "quick_640x480")
	assert.Contains(t, out.String(), "31.25")
	assert.Contains(t, out.String(), "42ms")
}

func TestValidate_OpenCVEngine(t *testing.T) {
	out, err := execute(t, "validate", "--engine", "opencv")
	require.NoError(t, err)
	assert.Contains(t, out, "engine:    opencv")
	assert.NotContains(t, out, "provider:")

	_, err = execute(t, "validate", "--engine", "tflite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.engine")
}
