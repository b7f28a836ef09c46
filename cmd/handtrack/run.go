package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-handtrack/capture"
	"github.com/nvr-ai/go-handtrack/config"
	"github.com/nvr-ai/go-handtrack/controller"
	"github.com/nvr-ai/go-handtrack/detector"
	"github.com/nvr-ai/go-handtrack/inference"
	"github.com/nvr-ai/go-handtrack/inference/providers"
	"github.com/nvr-ai/go-handtrack/logger"
	"github.com/nvr-ai/go-handtrack/render"
	"github.com/nvr-ai/go-handtrack/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// run loads the detector and drives the loop until interrupted or the
// source is exhausted.
func run(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	source, closeSource, err := openSource(cfg.Source, log)
	if err != nil {
		return err
	}
	defer closeSource()

	policy, err := controller.ParseErrorPolicy(cfg.Loop.Policy)
	if err != nil {
		return err
	}
	loop := &controller.Loop{
		Source:               source,
		Detector:             det,
		Policy:               policy,
		MaxConsecutiveErrors: cfg.Loop.MaxConsecutiveErrors,
		Limiter:              cfg.Limiter(),
		Logger:               log,
	}
	if cfg.Display.Enabled {
		window := render.NewWindow(cfg.Display.Title, cfg.Display.Labels)
		defer window.Close()
		loop.Renderer = window
	}

	stats, err := loop.Run(ctx)
	log.Info("detection loop finished",
		zap.Int("cycles", stats.Cycles),
		zap.Int("failed", stats.Failed),
		zap.Int("detections", stats.Detections),
		zap.Float64("meanConfidence", stats.Confidence.Mean),
		zap.Int("fps", det.FPS()),
	)
	return err
}

// openSource opens the configured frame source and returns its cleanup.
func openSource(cfg config.SourceConfig, log *zap.Logger) (controller.FrameSource, func(), error) {
	switch cfg.Kind {
	case config.SourceDirectory:
		source, err := util.NewDirectorySource(cfg.Directory, cfg.Repeat)
		if err != nil {
			return nil, nil, err
		}
		log.Info("reading frames from directory",
			zap.String("dir", cfg.Directory),
			zap.Int("frames", source.Len()),
		)
		return source, func() {}, nil
	case config.SourceCamera:
		opts := cfg.Camera
		opts.Logger = log
		session, err := capture.Start(opts)
		if err != nil {
			return nil, nil, err
		}
		return session, func() { capture.Stop(session) }, nil
	}
	return nil, nil, errors.Errorf("unknown frame source %q", cfg.Kind)
}

// loadDetector builds the configured engine loader and loads the detector
// with it.
func loadDetector(ctx context.Context, cfg config.Config, log *zap.Logger) (*detector.Detector, error) {
	params, err := cfg.DetectorParams()
	if err != nil {
		return nil, err
	}
	normalization, err := detector.ParseNormalization(cfg.Model.Normalization)
	if err != nil {
		return nil, err
	}

	var loader inference.Loader
	switch cfg.Model.Engine {
	case config.EngineOpenCV:
		loader = cfg.OpenCVLoader(log)
	default:
		libPath := cfg.Model.SharedLibPath
		if libPath == "" {
			if libPath, err = providers.GetSharedLibPath(); err != nil {
				return nil, err
			}
		}
		loader = inference.ONNXLoader{
			SharedLibPath: libPath,
			Provider:      cfg.Model.Provider,
			Logger:        log,
		}
	}

	return detector.Load(ctx, loader, params,
		detector.WithLogger(log),
		detector.WithModelDir(cfg.Model.Dir),
		detector.WithNormalization(normalization),
		detector.WithBackend(cfg.Backend()),
	)
}

func closeDetector(det *detector.Detector, log *zap.Logger) {
	if err := det.Close(); err != nil {
		log.Warn("closing detector", zap.Error(err))
	}
}
