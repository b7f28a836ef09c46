// Command handtrack detects hands in live video or a directory of frames.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nvr-ai/go-handtrack/config"
	"github.com/nvr-ai/go-handtrack/detector"
	"github.com/nvr-ai/go-handtrack/inference/providers"
	"github.com/spf13/cobra"
)

// flags holds the command line overrides of the configuration file.
type flags struct {
	configPath     string
	source         string
	directory      string
	repeat         bool
	deviceID       int
	engine         string
	modelDir       string
	modelType      string
	sharedLibPath  string
	backend        string
	workers        int
	logLevel       string
	scoreThreshold float32
	flip           bool
	maxRate        float64
	noWindow       bool
}

func newRootCmd() *cobra.Command {
	var f flags
	defaults := detector.DefaultParams()

	root := &cobra.Command{
		Use:   "handtrack",
		Short: "Detect hands in live video",
		Long: `handtrack runs a hand detector over camera frames or a directory of
still images and shows the detections in a preview window.

Examples:
  handtrack --config handtrack.yaml
  handtrack --source directory --dir ./frames --no-window --log-level debug
  handtrack validate --config handtrack.yaml
  handtrack bench --dir ./frames --scenarios scenarios.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&f.source, "source", "", "frame source: camera or directory")
	pf.StringVar(&f.directory, "dir", "", "directory of frames for the directory source")
	pf.BoolVar(&f.repeat, "repeat", false, "restart the directory source when it ends")
	pf.IntVar(&f.deviceID, "device", 0, "camera device ID")
	pf.StringVar(&f.engine, "engine", "", "inference engine: onnxruntime or opencv")
	pf.StringVar(&f.modelDir, "model-dir", "", "directory holding one subdirectory per model type")
	pf.StringVar(&f.modelType, "model-type", "", "model type to load")
	pf.StringVar(&f.sharedLibPath, "onnxruntime", "", "path to the onnxruntime shared library")
	pf.StringVar(&f.backend, "backend", "", "execution provider: cpu, coreml, cuda or openvino")
	pf.IntVar(&f.workers, "workers", 0, "goroutines computing suppression overlaps")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.Float32Var(&f.scoreThreshold, "score-threshold", defaults.ScoreThreshold, "minimum detection confidence")
	pf.BoolVar(&f.flip, "flip", defaults.FlipHorizontal, "mirror frames before detection")
	pf.Float64Var(&f.maxRate, "max-rate", 0, "maximum detection cycles per second")
	pf.BoolVar(&f.noWindow, "no-window", false, "do not open a preview window")

	root.AddCommand(newValidateCmd(&f), newBenchCmd(&f))
	return root
}

func newValidateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the resolved detector parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, *f)
			if err != nil {
				return err
			}
			params, err := cfg.DetectorParams()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model:     %s/%s\n", cfg.Model.Dir, params.ModelType)
			fmt.Fprintf(out, "engine:    %s\n", cfg.Model.Engine)
			if cfg.Model.Engine == config.EngineONNXRuntime {
				fmt.Fprintf(out, "provider:  %s\n", backendName(cfg.Model.Provider.Backend))
			}
			fmt.Fprintf(out, "source:    %s\n", cfg.Source.Kind)
			fmt.Fprintf(out, "flip:      %t\n", params.FlipHorizontal)
			fmt.Fprintf(out, "scale:     %g (stride %d)\n", params.ImageScaleFactor, params.OutputStride)
			fmt.Fprintf(out, "nms:       max %d, iou %g, score %g\n",
				params.MaxNumBoxes, params.IoUThreshold, params.ScoreThreshold)
			return nil
		},
	}
}

// resolveConfig loads the configuration file, if any, and applies the flags
// the user set explicitly.
func resolveConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("source") {
		cfg.Source.Kind = f.source
	}
	if changed("dir") {
		cfg.Source.Directory = f.directory
		if !changed("source") {
			cfg.Source.Kind = config.SourceDirectory
		}
	}
	if changed("repeat") {
		cfg.Source.Repeat = f.repeat
	}
	if changed("device") {
		cfg.Source.Camera.DeviceID = f.deviceID
	}
	if changed("engine") {
		cfg.Model.Engine = f.engine
	}
	if changed("model-dir") {
		cfg.Model.Dir = f.modelDir
	}
	if changed("model-type") {
		cfg.Params.ModelType = &f.modelType
	}
	if changed("onnxruntime") {
		cfg.Model.SharedLibPath = f.sharedLibPath
	}
	if changed("backend") {
		cfg.Model.Provider.Backend = providers.ProviderBackend(f.backend)
	}
	if changed("workers") {
		cfg.Model.Workers = f.workers
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("score-threshold") {
		cfg.Params.ScoreThreshold = &f.scoreThreshold
	}
	if changed("flip") {
		cfg.Params.FlipHorizontal = &f.flip
	}
	if changed("max-rate") {
		cfg.Loop.MaxRate = f.maxRate
	}
	if changed("no-window") {
		cfg.Display.Enabled = !f.noWindow
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func backendName(b providers.ProviderBackend) string {
	if b == "" {
		return string(providers.CPUProviderBackend)
	}
	return string(b)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
