package benchmark

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-handtrack/detector"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/nvr-ai/go-handtrack/models/postprocess"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockDetector takes a fixed time per cycle on a mock clock.
type MockDetector struct {
	clock   *clock.Mock
	latency func(call int) time.Duration
	failAt  map[int]bool
	params  detector.Params
	sizes   [][2]int
	calls   int
	updates []detector.Params
}

func (m *MockDetector) Detect(_ context.Context, frame images.Frame) ([]postprocess.Detection, error) {
	call := m.calls
	m.calls++
	m.sizes = append(m.sizes, [2]int{frame.Width, frame.Height})
	m.clock.Add(m.latency(call))
	if m.failAt[call] {
		return nil, errors.New("mock inference failure")
	}
	return []postprocess.Detection{{Score: m.params.ScoreThreshold}}, nil
}

func (m *MockDetector) Parameters() detector.Params { return m.params }

func (m *MockDetector) SetParameters(patch detector.ParamsPatch) (detector.Params, error) {
	next, err := m.params.Apply(patch)
	if err != nil {
		return m.params, err
	}
	m.params = next
	m.updates = append(m.updates, next)
	return next, nil
}

func corpus(n int) []images.Frame {
	frames := make([]images.Frame, n)
	for i := range frames {
		frames[i] = images.Frame{Pix: make([]uint8, 64*48*3), Width: 64, Height: 48}
	}
	return frames
}

func newMock(latency func(int) time.Duration) *MockDetector {
	return &MockDetector{
		clock:   clock.NewMock(),
		latency: latency,
		params:  detector.DefaultParams(),
	}
}

func TestScenarioBuilder(t *testing.T) {
	scenario := NewScenarioBuilder("test_scenario").
		WithResolution(320, 240).
		WithScaleFactor(0.5).
		WithWorkload(5, 0.3, 0.8).
		WithIterations(50).
		WithWarmupRuns(5).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, Resolution{Width: 320, Height: 240, Name: "320x240"}, scenario.Resolution)
	assert.Equal(t, 0.5, *scenario.Params.ImageScaleFactor)
	assert.Equal(t, 5, *scenario.Params.MaxNumBoxes)
	assert.Equal(t, float32(0.3), *scenario.Params.IoUThreshold)
	assert.Equal(t, float32(0.8), *scenario.Params.ScoreThreshold)
	assert.Nil(t, scenario.Params.FlipHorizontal)
	assert.Equal(t, 50, scenario.Iterations)
	assert.Equal(t, 5, scenario.WarmupRuns)
}

func TestRunScenario(t *testing.T) {
	mock := newMock(func(call int) time.Duration { return time.Duration(call%4+1) * 10 * time.Millisecond })
	mock.failAt = map[int]bool{3: true}

	suite, err := NewSuite(NewSuiteArgs{Detector: mock, Corpus: corpus(2), Clock: mock.clock, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	// Two warmup calls (10ms, 20ms) then eight measured calls starting at call 2.
	scenario := NewScenarioBuilder("threshold").
		WithWorkload(20, 0.5, 0.7).
		WithIterations(8).
		WithWarmupRuns(2).
		Build()

	metrics, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)

	// Measured latencies for calls 2..9: 30, 40 (fails), 10, 20, 30, 40, 10, 20.
	assert.Equal(t, 1, metrics.Errors)
	assert.InDelta(t, 0.125, metrics.ErrorRate, 1e-9)
	assert.Equal(t, 7, metrics.DetectionCount)
	assert.Equal(t, 200*time.Millisecond, metrics.TotalDuration)
	assert.InDelta(t, 35.0, metrics.FramesPerSecond, 1e-9)
	assert.Equal(t, LatencyMetrics{
		Mean: 160 * time.Millisecond / 7,
		Min:  10 * time.Millisecond,
		Max:  40 * time.Millisecond,
		P50:  20 * time.Millisecond,
		P95:  40 * time.Millisecond,
		P99:  40 * time.Millisecond,
	}, metrics.Latency)

	assert.Equal(t, detector.DefaultParams(), mock.params, "parameters are restored")
	require.Len(t, mock.updates, 2)
	assert.Equal(t, float32(0.7), mock.updates[0].ScoreThreshold)
	assert.Len(t, suite.Results(), 1)
}

func TestRunScenario_Resolution(t *testing.T) {
	mock := newMock(func(int) time.Duration { return time.Millisecond })
	suite, err := NewSuite(NewSuiteArgs{Detector: mock, Corpus: corpus(1), Clock: mock.clock})
	require.NoError(t, err)

	_, err = suite.RunScenario(context.Background(),
		NewScenarioBuilder("small").WithResolution(32, 24).WithIterations(2).WithWarmupRuns(0).Build())
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{32, 24}, {32, 24}}, mock.sizes)
}

func TestRunScenario_Rejects(t *testing.T) {
	mock := newMock(func(int) time.Duration { return time.Millisecond })
	suite, err := NewSuite(NewSuiteArgs{Detector: mock, Corpus: corpus(1), Clock: mock.clock})
	require.NoError(t, err)

	_, err = suite.RunScenario(context.Background(), Scenario{Name: "empty"})
	assert.Error(t, err)

	bad := NewScenarioBuilder("bad").WithScaleFactor(2).Build()
	_, err = suite.RunScenario(context.Background(), bad)
	assert.True(t, errors.Is(err, detector.ErrMalformedModelParameters))
	assert.Zero(t, mock.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = suite.RunScenario(ctx, NewScenarioBuilder("cancelled").WithWarmupRuns(0).Build())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, detector.DefaultParams(), mock.params)
}

func TestNewSuite_Rejects(t *testing.T) {
	_, err := NewSuite(NewSuiteArgs{Corpus: corpus(1)})
	assert.Error(t, err)
	_, err = NewSuite(NewSuiteArgs{Detector: newMock(nil)})
	assert.Error(t, err)
}

func TestRunAllAndSave(t *testing.T) {
	mock := newMock(func(int) time.Duration { return 5 * time.Millisecond })
	suite, err := NewSuite(NewSuiteArgs{Detector: mock, Corpus: corpus(1), Clock: mock.clock})
	require.NoError(t, err)

	set := ScaleFactorScenarios(Resolution{Width: 64, Height: 48, Name: "64x48"}, 0.5, 1)
	for i := range set.Scenarios {
		set.Scenarios[i].Iterations = 4
		set.Scenarios[i].WarmupRuns = 0
	}

	results, err := suite.RunAll(context.Background(), set)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "scale_64x48_0.5", results[0].Scenario.Name)
	assert.InDelta(t, 200.0, results[1].FramesPerSecond, 1e-9)

	dir := t.TempDir()
	path, err := suite.SaveResults(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Len(t, saved, 2)

	summaries, err := filepath.Glob(filepath.Join(dir, "benchmark_summary_*.csv"))
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	csvData, err := os.ReadFile(summaries[0])
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "scale_64x48_1,64x48,200.00,5.00,5.00,4,0.0000")
}

func TestScenarioSetFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	set := QuickScenarios()
	require.Len(t, set.Scenarios, len(CommonResolutions))

	require.NoError(t, SaveScenarioSet(set, path))
	loaded, err := LoadScenarioSet(path)
	require.NoError(t, err)
	assert.Equal(t, set.Name, loaded.Name)
	assert.Equal(t, set.Scenarios[1].Resolution, loaded.Scenarios[1].Resolution)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: nothing\n"), 0o600))
	_, err = LoadScenarioSet(empty)
	assert.Error(t, err)
}

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(100-i) * time.Millisecond
	}
	summary := summarizeLatency(samples)
	assert.Equal(t, 50*time.Millisecond, summary.P50)
	assert.Equal(t, 95*time.Millisecond, summary.P95)
	assert.Equal(t, 99*time.Millisecond, summary.P99)
	assert.Equal(t, time.Millisecond, summary.Min)
	assert.Equal(t, LatencyMetrics{}, summarizeLatency(nil))
}
