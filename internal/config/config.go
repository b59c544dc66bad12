// Package config handles meshslim configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/Faultbox/meshslim/internal/logger"
	"github.com/Faultbox/meshslim/pkg/encoding"
	"github.com/Faultbox/meshslim/pkg/formats"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all settings.
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Simplify SimplifyConfig `yaml:"simplify"`
	Export   ExportConfig   `yaml:"export"`
	Batch    BatchConfig    `yaml:"batch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig holds parsing settings.
type InputConfig struct {
	Charset string `yaml:"charset"` // legacy OBJ text encoding; empty means UTF-8
}

// SimplifyConfig holds decimation settings.
type SimplifyConfig struct {
	Ratio          float64       `yaml:"ratio"`           // share of faces to remove; 0 skips simplification
	BoundaryWeight float64       `yaml:"boundary_weight"` // 0 uses the decimator default
	MaxFlipAngle   float64       `yaml:"max_flip_angle"`  // degrees
	Timeout        time.Duration `yaml:"timeout"`         // 0 means no limit
}

// ExportConfig holds output settings.
type ExportConfig struct {
	Format     string `yaml:"format"`      // obj or glb
	ObjectName string `yaml:"object_name"` // overrides the mesh name when set
	OutputDir  string `yaml:"output_dir"`
	Suffix     string `yaml:"suffix"` // appended to the input base name
}

// BatchConfig holds multi-file settings.
type BatchConfig struct {
	Workers  int    `yaml:"workers"`
	Manifest string `yaml:"manifest"` // JSON report path, empty to skip
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"` // console or json
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Simplify: SimplifyConfig{
			Ratio:          0.5,
			BoundaryWeight: 100,
			MaxFlipAngle:   90,
		},
		Export: ExportConfig{
			Format:    "glb",
			OutputDir: ".",
			Suffix:    "_simplified",
		},
		Batch: BatchConfig{
			Workers: runtime.NumCPU(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logger.FormatConsole,
		},
	}
}

// ExportFormat resolves Export.Format.
func (c *Config) ExportFormat() (formats.Format, error) {
	f, err := formats.FormatFromHint(c.Export.Format)
	if err != nil {
		return formats.FormatUnknown, fmt.Errorf("%w: export.format: %v", ErrInvalid, err)
	}
	if f == formats.FormatGLTF {
		return formats.FormatUnknown, fmt.Errorf("%w: export.format %q is not an export target", ErrInvalid, c.Export.Format)
	}
	return f, nil
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var err error
	invalid := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Input.Charset != "" {
		if _, cerr := encoding.Lookup(c.Input.Charset); cerr != nil {
			invalid("input.charset %q", c.Input.Charset)
		}
	}

	s := c.Simplify
	if !(s.Ratio >= 0 && s.Ratio < 1) {
		invalid("simplify.ratio %v outside [0, 1)", s.Ratio)
	}
	if !(s.BoundaryWeight >= 0) {
		invalid("simplify.boundary_weight %v is negative", s.BoundaryWeight)
	}
	if !(s.MaxFlipAngle > 0 && s.MaxFlipAngle <= 180) {
		invalid("simplify.max_flip_angle %v outside (0, 180]", s.MaxFlipAngle)
	}
	if s.Timeout < 0 {
		invalid("simplify.timeout %v is negative", s.Timeout)
	}

	if _, ferr := c.ExportFormat(); ferr != nil {
		err = multierr.Append(err, ferr)
	}
	if strings.ContainsAny(c.Export.Suffix, `/\`) {
		invalid("export.suffix %q contains a path separator", c.Export.Suffix)
	}

	if c.Batch.Workers < 1 {
		invalid("batch.workers %d must be at least 1", c.Batch.Workers)
	}

	if _, lerr := logger.ParseLevel(c.Logging.Level); lerr != nil {
		invalid("logging.level %q", c.Logging.Level)
	}
	if f := c.Logging.Format; f != "" && f != logger.FormatConsole && f != logger.FormatJSON {
		invalid("logging.format %q", f)
	}
	return err
}

// LoggerOptions maps the logging section onto logger options.
func (c *Config) LoggerOptions() logger.Options {
	opts := logger.Options{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	}
	if c.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(c.Logging.LogFile)
	}
	return opts
}
