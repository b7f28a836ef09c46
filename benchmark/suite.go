package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-handtrack/detector"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/nvr-ai/go-handtrack/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Detector is the part of *detector.Detector a benchmark drives.
type Detector interface {
	Detect(ctx context.Context, frame images.Frame) ([]postprocess.Detection, error)
	Parameters() detector.Params
	SetParameters(patch detector.ParamsPatch) (detector.Params, error)
}

// Suite runs scenarios against one detector and keeps their results.
type Suite struct {
	detector Detector
	corpus   []images.Frame
	clock    clock.Clock
	logger   *zap.Logger

	mu      sync.RWMutex
	results []PerformanceMetrics
}

// NewSuiteArgs represents the arguments for creating a new benchmark suite.
type NewSuiteArgs struct {
	Detector Detector
	// Corpus is cycled through by every scenario.
	Corpus []images.Frame
	// Clock times cycles. Nil means the wall clock.
	Clock  clock.Clock
	Logger *zap.Logger
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - args: The arguments for creating a new benchmark suite.
//
// Returns:
//   - *Suite: The benchmark suite.
//   - error: An error if the detector or corpus is missing.
func NewSuite(args NewSuiteArgs) (*Suite, error) {
	if args.Detector == nil {
		return nil, errors.New("benchmark needs a detector")
	}
	if len(args.Corpus) == 0 {
		return nil, errors.New("benchmark needs at least one frame")
	}
	if args.Clock == nil {
		args.Clock = clock.New()
	}
	if args.Logger == nil {
		args.Logger = zap.NewNop()
	}

	return &Suite{
		detector: args.Detector,
		corpus:   args.Corpus,
		clock:    args.Clock,
		logger:   args.Logger,
	}, nil
}

// RunScenario executes a single scenario. The detector parameters in effect
// before the run are restored afterwards.
func (s *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if scenario.Iterations <= 0 {
		return nil, errors.Errorf("scenario %s: iterations must be positive", scenario.Name)
	}

	frames, err := s.prepare(scenario.Resolution)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}

	previous := s.detector.Parameters()
	if _, err := s.detector.SetParameters(scenario.Params); err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}
	defer func() {
		if _, err := s.detector.SetParameters(previous.Patch()); err != nil {
			s.logger.Warn("restoring detector parameters", zap.Error(err))
		}
	}()

	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, err := s.detector.Detect(ctx, frames[i%len(frames)]); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: s.clock.Now(),
		NumCPU:    runtime.NumCPU(),
	}
	latencies := make([]time.Duration, 0, scenario.Iterations)

	start := s.clock.Now()
	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cycleStart := s.clock.Now()
		detections, err := s.detector.Detect(ctx, frames[i%len(frames)])
		if err != nil {
			metrics.Errors++
			s.logger.Debug("benchmark cycle failed", zap.String("scenario", scenario.Name), zap.Error(err))
			continue
		}
		latencies = append(latencies, s.clock.Since(cycleStart))
		metrics.DetectionCount += len(detections)
	}
	metrics.TotalDuration = s.clock.Since(start)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	if metrics.TotalDuration > 0 {
		metrics.FramesPerSecond = float64(len(latencies)) / metrics.TotalDuration.Seconds()
	}
	metrics.ErrorRate = float64(metrics.Errors) / float64(scenario.Iterations)
	metrics.Latency = summarizeLatency(latencies)
	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}

	s.mu.Lock()
	s.results = append(s.results, *metrics)
	s.mu.Unlock()

	s.logger.Info("scenario completed",
		zap.String("scenario", scenario.Name),
		zap.Float64("fps", metrics.FramesPerSecond),
		zap.Duration("p95", metrics.Latency.P95),
		zap.Float64("errorRate", metrics.ErrorRate),
	)
	return metrics, nil
}

// RunAll executes every scenario of a set in order, stopping at the first
// scenario that cannot run.
func (s *Suite) RunAll(ctx context.Context, set *ScenarioSet) ([]PerformanceMetrics, error) {
	results := make([]PerformanceMetrics, 0, len(set.Scenarios))
	for _, scenario := range set.Scenarios {
		metrics, err := s.RunScenario(ctx, scenario)
		if err != nil {
			return results, err
		}
		results = append(results, *metrics)
	}
	return results, nil
}

// Results returns all results recorded so far.
func (s *Suite) Results() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]PerformanceMetrics, len(s.results))
	copy(results, s.results)
	return results
}

// SaveResults writes the results as JSON plus a CSV summary into dir.
//
// Returns:
//   - string: The JSON file path.
//   - error: An error if a file cannot be written.
func (s *Suite) SaveResults(dir string) (string, error) {
	results := s.Results()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create output directory")
	}

	timestamp := s.clock.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write results file")
	}

	summaryFile := filepath.Join(dir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", errors.Wrap(err, "save summary CSV")
	}
	return resultsFile, nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	_ = w.Write([]string{"Scenario", "Resolution", "FPS", "P50_ms", "P95_ms", "Detections", "Error_Rate"})
	for _, r := range results {
		_ = w.Write([]string{
			r.Scenario.Name,
			r.Scenario.Resolution.Name,
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			strconv.FormatFloat(float64(r.Latency.P50.Microseconds())/1000, 'f', 2, 64),
			strconv.FormatFloat(float64(r.Latency.P95.Microseconds())/1000, 'f', 2, 64),
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		})
	}
	w.Flush()
	return w.Error()
}

// prepare rescales the corpus to the scenario resolution.
func (s *Suite) prepare(r Resolution) ([]images.Frame, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return s.corpus, nil
	}

	frames := make([]images.Frame, len(s.corpus))
	for i, frame := range s.corpus {
		if frame.Width == r.Width && frame.Height == r.Height {
			frames[i] = frame
			continue
		}
		img, err := images.Resize(frame, r.Width, r.Height, false)
		if err != nil {
			return nil, err
		}
		frames[i] = images.FrameFromImage(img)
	}
	return frames, nil
}
