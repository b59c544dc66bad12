package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags binds command-line overrides to a pflag.FlagSet. Only flags the
// user actually set override the file.
type Flags struct {
	fs *pflag.FlagSet

	configPath string
	debug      bool
	logFile    string
	logFormat  string
	charset    string

	ratio          float64
	boundaryWeight float64
	maxFlipAngle   float64
	timeout        time.Duration

	format     string
	objectName string
	outputDir  string
	suffix     string

	workers  int
	manifest string
}

// NewFlags registers the global flags on fs.
func NewFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.configPath, "config", "", "path to config file")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.StringVar(&f.logFile, "log-file", "", "also write logs to this file")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: console or json")
	fs.StringVar(&f.charset, "charset", "", "encoding of OBJ text without a byte order mark, e.g. euc-kr")
	return f
}

// RegisterSimplify adds the decimation flags.
func (f *Flags) RegisterSimplify() {
	f.fs.Float64VarP(&f.ratio, "ratio", "r", 0, "share of faces to remove, in (0, 1)")
	f.fs.Float64Var(&f.boundaryWeight, "boundary-weight", 0, "penalty weight on open edges")
	f.fs.Float64Var(&f.maxFlipAngle, "max-flip-angle", 0, "largest face normal rotation per collapse, degrees")
	f.fs.DurationVar(&f.timeout, "timeout", 0, "abort simplification after this long and keep the partial result")
}

// RegisterExport adds the output flags.
func (f *Flags) RegisterExport() {
	f.fs.StringVarP(&f.format, "format", "f", "", "output format: obj or glb")
	f.fs.StringVar(&f.objectName, "name", "", "object name written to the output")
	f.fs.StringVarP(&f.outputDir, "outdir", "d", "", "output directory")
	f.fs.StringVar(&f.suffix, "suffix", "", "suffix appended to output file names")
}

// RegisterBatch adds the batch flags.
func (f *Flags) RegisterBatch() {
	f.fs.IntVarP(&f.workers, "workers", "j", 0, "files processed concurrently")
	f.fs.StringVar(&f.manifest, "manifest", "", "write a JSON report to this path")
}

// ConfigPath returns the --config value.
func (f *Flags) ConfigPath() string {
	return f.configPath
}

// Apply copies every flag the user set onto cfg.
func (f *Flags) Apply(cfg *Config) {
	changed := f.fs.Changed

	if f.debug {
		cfg.Logging.Level = "debug"
	}
	if changed("log-file") {
		cfg.Logging.LogFile = f.logFile
	}
	if changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}

	if changed("charset") {
		cfg.Input.Charset = f.charset
	}

	if changed("ratio") {
		cfg.Simplify.Ratio = f.ratio
	}
	if changed("boundary-weight") {
		cfg.Simplify.BoundaryWeight = f.boundaryWeight
	}
	if changed("max-flip-angle") {
		cfg.Simplify.MaxFlipAngle = f.maxFlipAngle
	}
	if changed("timeout") {
		cfg.Simplify.Timeout = f.timeout
	}

	if changed("format") {
		cfg.Export.Format = f.format
	}
	if changed("name") {
		cfg.Export.ObjectName = f.objectName
	}
	if changed("outdir") {
		cfg.Export.OutputDir = f.outputDir
	}
	if changed("suffix") {
		cfg.Export.Suffix = f.suffix
	}

	if changed("workers") {
		cfg.Batch.Workers = f.workers
	}
	if changed("manifest") {
		cfg.Batch.Manifest = f.manifest
	}
}
