package benchmark

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-handtrack/detector"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Resolution is the frame size a scenario feeds the detector.
type Resolution struct {
	Width  int    `json:"width"  yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Name   string `json:"name"   yaml:"name"`
}

// CommonResolutions are camera sizes worth comparing.
var CommonResolutions = []Resolution{
	{Width: 320, Height: 240, Name: "320x240"},
	{Width: 640, Height: 480, Name: "640x480"},
	{Width: 1280, Height: 720, Name: "1280x720"},
}

// Scenario is one benchmark configuration.
type Scenario struct {
	Name string `json:"name" yaml:"name"`
	// Resolution rescales every corpus frame. A zero size keeps the frames as loaded.
	Resolution Resolution `json:"resolution" yaml:"resolution"`
	// Params is applied on top of the detector parameters for the run.
	Params     detector.ParamsPatch `json:"params"     yaml:"params"`
	Iterations int                  `json:"iterations" yaml:"iterations"`
	WarmupRuns int                  `json:"warmupRuns" yaml:"warmupRuns"`
}

// ScenarioBuilder helps build scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder with 100 iterations and 10 warmup runs.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			Iterations: 100,
			WarmupRuns: 10,
		},
	}
}

// WithResolution sets the frame size.
func (sb *ScenarioBuilder) WithResolution(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = Resolution{
		Width:  width,
		Height: height,
		Name:   fmt.Sprintf("%dx%d", width, height),
	}
	return sb
}

// WithScaleFactor sets the pre-inference downscale.
func (sb *ScenarioBuilder) WithScaleFactor(scale float64) *ScenarioBuilder {
	sb.scenario.Params.ImageScaleFactor = &scale
	return sb
}

// WithWorkload sets the suppression cap and thresholds.
func (sb *ScenarioBuilder) WithWorkload(maxNumBoxes int, iouThreshold, scoreThreshold float32) *ScenarioBuilder {
	sb.scenario.Params.MaxNumBoxes = &maxNumBoxes
	sb.scenario.Params.IoUThreshold = &iouThreshold
	sb.scenario.Params.ScoreThreshold = &scoreThreshold
	return sb
}

// WithIterations sets the number of measured cycles.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of unmeasured cycles run first.
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet is a named collection of scenarios.
type ScenarioSet struct {
	Name        string     `json:"name"        yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios"   yaml:"scenarios"`
}

// QuickScenarios compares the common resolutions at the default parameters.
func QuickScenarios() *ScenarioSet {
	scenarios := make([]Scenario, 0, len(CommonResolutions))
	for _, r := range CommonResolutions {
		scenarios = append(scenarios, NewScenarioBuilder("quick_"+r.Name).
			WithResolution(r.Width, r.Height).
			WithIterations(50).
			WithWarmupRuns(5).
			Build())
	}

	return &ScenarioSet{
		Name:        "Quick Performance Test",
		Description: "Common camera resolutions at the default parameters",
		Scenarios:   scenarios,
	}
}

// ScaleFactorScenarios compares downscale factors at one resolution.
func ScaleFactorScenarios(r Resolution, scales ...float64) *ScenarioSet {
	scenarios := make([]Scenario, 0, len(scales))
	for _, scale := range scales {
		scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("scale_%s_%g", r.Name, scale)).
			WithResolution(r.Width, r.Height).
			WithScaleFactor(scale).
			Build())
	}

	return &ScenarioSet{
		Name:        fmt.Sprintf("Scale Comparison @ %s", r.Name),
		Description: "Compares pre-inference downscale factors",
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet writes a scenario set as YAML.
func SaveScenarioSet(set *ScenarioSet, filename string) error {
	data, err := yaml.Marshal(set)
	if err != nil {
		return errors.Wrap(err, "marshal scenario set")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "write scenario file")
	}
	return nil
}

// LoadScenarioSet reads a scenario set from YAML or JSON.
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}

	var set ScenarioSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, errors.Wrap(err, "parse scenario file")
	}
	if len(set.Scenarios) == 0 {
		return nil, errors.Errorf("scenario file %s has no scenarios", filename)
	}
	return &set, nil
}
