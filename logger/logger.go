// Package logger - Builds the zap logger shared by every component.
package logger

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats understood by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects level, encoding and destination.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `yaml:"level"`
	// Format is json or console. Empty means console.
	Format string `yaml:"format"`
	// Output is a file path, stdout or stderr. Empty means stderr.
	Output string `yaml:"output"`
}

// Validate reports an unknown level or format.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", FormatJSON, FormatConsole, "text":
		return nil
	}
	return errors.Errorf("invalid log format %q (must be json or console)", c.Format)
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zapcore.InfoLevel, errors.Wrapf(err, "invalid log level %q", name)
	}
	return level, nil
}

// New builds a logger from the configuration.
//
// Arguments:
//   - cfg: The level, format and output.
//
// Returns:
//   - *zap.Logger: The logger. Callers should Sync it before exit.
//   - error: An error if the configuration is invalid or the output cannot be opened.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := ParseLevel(cfg.Level)

	var config zap.Config
	if strings.ToLower(cfg.Format) == FormatJSON {
		config = zap.NewProductionConfig()
		config.EncoderConfig = zap.NewProductionEncoderConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		config.Encoding = FormatConsole
	}

	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	config.Level = zap.NewAtomicLevelAt(level)

	if cfg.Output != "" {
		config.OutputPaths = []string{cfg.Output}
		config.ErrorOutputPaths = []string{cfg.Output}
	}

	logger, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}
