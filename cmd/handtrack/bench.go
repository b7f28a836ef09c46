package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-handtrack/benchmark"
	"github.com/nvr-ai/go-handtrack/config"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/nvr-ai/go-handtrack/logger"
	"github.com/nvr-ai/go-handtrack/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type benchFlags struct {
	scenarios string
	outputDir string
}

func newBenchCmd(f *flags) *cobra.Command {
	var b benchFlags

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure detection cycles over a directory of frames",
		Long: `bench loads the configured model and runs benchmark scenarios over the
frames in --dir. Without --scenarios it compares the common camera
resolutions at the configured parameters.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, *f)
			if err != nil {
				return err
			}
			set := benchmark.QuickScenarios()
			if b.scenarios != "" {
				if set, err = benchmark.LoadScenarioSet(b.scenarios); err != nil {
					return err
				}
			}
			return bench(cmd.Context(), cmd.OutOrStdout(), cfg, set, b.outputDir)
		},
	}

	cmd.Flags().StringVar(&b.scenarios, "scenarios", "", "YAML scenario set")
	cmd.Flags().StringVar(&b.outputDir, "out", "benchmark_results", "directory for result files")
	return cmd
}

func bench(ctx context.Context, out io.Writer, cfg config.Config, set *benchmark.ScenarioSet, outputDir string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Source.Kind != config.SourceDirectory {
		return errors.New("bench reads frames from a directory; pass --dir")
	}
	frames, err := loadCorpus(cfg.Source.Directory)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	det, err := loadDetector(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDetector(det, log)

	suite, err := benchmark.NewSuite(benchmark.NewSuiteArgs{Detector: det, Corpus: frames, Logger: log})
	if err != nil {
		return err
	}
	results, err := suite.RunAll(ctx, set)
	if err != nil {
		return err
	}
	path, err := suite.SaveResults(outputDir)
	if err != nil {
		return err
	}

	printResults(out, set.Name, results)
	fmt.Fprintf(out, "results saved to %s\n", path)
	return nil
}

// loadCorpus decodes every image of a directory.
func loadCorpus(dir string) ([]images.Frame, error) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	frames := make([]images.Frame, 0, len(files))
	for _, file := range files {
		frame, err := util.DecodeImageFile(file)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}
	return frames, nil
}

func printResults(out io.Writer, title string, results []benchmark.PerformanceMetrics) {
	fmt.Fprintln(out, title)
	fmt.Fprintf(out, "%-28s %8s %10s %10s %8s\n", "scenario", "fps", "p50", "p95", "errors")
	for _, r := range results {
		fmt.Fprintf(out, "%-28s %8.2f %10s %10s %8d\n",
			r.Scenario.Name, r.FramesPerSecond, r.Latency.P50, r.Latency.P95, r.Errors)
	}
}
