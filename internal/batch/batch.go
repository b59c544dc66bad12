// Package batch converts many model files concurrently and optionally
// records the outcome in a JSON manifest.
package batch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshslim/internal/config"
	"github.com/Faultbox/meshslim/internal/logger"
	"github.com/Faultbox/meshslim/internal/pipeline"
	"github.com/Faultbox/meshslim/pkg/decimate"
	"github.com/Faultbox/meshslim/pkg/formats"
)

// Batch errors.
var (
	ErrOverwriteInput  = errors.New("output would overwrite its input")
	ErrDuplicateOutput = errors.New("output path already claimed by another input")
	ErrOutsideRoot     = errors.New("external buffer outside model directory")
)

// Config holds the shared settings for a batch run.
type Config struct {
	Charset    string
	OutputDir  string
	Suffix     string
	Target     formats.Format
	ObjectName string

	Ratio    float64
	Simplify decimate.Options
	Timeout  time.Duration

	Workers  int    // 0 means runtime.NumCPU
	Manifest string // JSON report path, empty to skip

	Logger *zap.Logger
}

// ConfigFrom maps the loaded settings onto a batch Config.
func ConfigFrom(c *config.Config) (Config, error) {
	target, err := c.ExportFormat()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Charset:    c.Input.Charset,
		OutputDir:  c.Export.OutputDir,
		Suffix:     c.Export.Suffix,
		Target:     target,
		ObjectName: c.Export.ObjectName,
		Ratio:      c.Simplify.Ratio,
		Simplify: decimate.Options{
			BoundaryWeight: c.Simplify.BoundaryWeight,
			MaxFlipAngle:   c.Simplify.MaxFlipAngle,
		},
		Timeout:  c.Simplify.Timeout,
		Workers:  c.Batch.Workers,
		Manifest: c.Batch.Manifest,
	}, nil
}

// Result holds the outcome of processing one file.
type Result struct {
	Input   string         `json:"input"`
	Output  string         `json:"output,omitempty"`
	Before  pipeline.Stats `json:"before"`
	After   pipeline.Stats `json:"after"`
	Status  string         `json:"status,omitempty"` // empty when simplification was skipped
	Elapsed time.Duration  `json:"elapsed_ns"`
	Error   string         `json:"error,omitempty"`

	Err error `json:"-"`
}

// OK reports whether the file was converted.
func (r Result) OK() bool {
	return r.Err == nil
}

// OutputPath names the converted file for input: the input base name plus
// suffix and the target extension, inside dir.
func OutputPath(input, dir, suffix string, target formats.Format) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+suffix+target.Extension())
}

// Run converts every path and returns one Result per path in input order.
// Per-file failures do not stop the others; they are combined into the
// returned error. Cancelling ctx marks unstarted files as failed.
func Run(ctx context.Context, cfg Config, paths []string) ([]Result, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Named("batch")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]Result, len(paths))
	outputs := planOutputs(cfg, paths, results)

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	log.Info("batch started",
		zap.Int("files", len(paths)),
		zap.Int("workers", workers),
		zap.Stringer("format", cfg.Target),
		zap.Float64("ratio", cfg.Ratio),
	)
	start := time.Now()
	var processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		if results[i].Err != nil {
			continue
		}
		if err := gctx.Err(); err != nil {
			results[i] = failed(path, err)
			continue
		}
		g.Go(func() error {
			results[i] = processFile(gctx, cfg, path, outputs[i], log)
			n := processed.Add(1)
			log.Debug("file done",
				zap.String("input", path),
				zap.Int64("done", n),
				zap.Int("total", len(paths)),
				zap.Bool("ok", results[i].OK()),
			)
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	succeeded := 0
	for _, r := range results {
		if r.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.Input, r.Err))
			continue
		}
		succeeded++
	}

	if cfg.Manifest != "" {
		if err := writeManifest(cfg, results, time.Since(start)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("writing manifest: %w", err))
		}
	}

	log.Info("batch finished",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(paths)-succeeded),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, errs
}

// planOutputs assigns output paths up front so two inputs never race for
// the same file. Conflicting entries are marked failed in results.
func planOutputs(cfg Config, paths []string, results []Result) []string {
	outputs := make([]string, len(paths))
	claimed := make(map[string]string, len(paths))
	for i, path := range paths {
		out := OutputPath(path, cfg.OutputDir, cfg.Suffix, cfg.Target)
		outputs[i] = out

		key := filepath.Clean(out)
		switch {
		case sameFile(path, out):
			results[i] = failed(path, ErrOverwriteInput)
		case claimed[key] != "":
			results[i] = failed(path, fmt.Errorf("%w: %s wants %s", ErrDuplicateOutput, claimed[key], out))
		default:
			claimed[key] = path
		}
	}
	return outputs
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func failed(path string, err error) Result {
	return Result{Input: path, Err: err, Error: err.Error()}
}

func processFile(ctx context.Context, cfg Config, path, out string, log *zap.Logger) Result {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return failed(path, err)
	}

	report, err := pipeline.Run(ctx, pipeline.Request{
		Source:     path,
		Data:       data,
		Charset:    cfg.Charset,
		Ratio:      cfg.Ratio,
		Simplify:   cfg.Simplify,
		Timeout:    cfg.Timeout,
		Target:     cfg.Target,
		ObjectName: cfg.ObjectName,
		ResolveURI: RelativeResolver(filepath.Dir(path)),
		Logger:     log,
	})
	if err != nil {
		return failed(path, err)
	}

	if err := os.WriteFile(out, report.Data, 0644); err != nil {
		return failed(path, err)
	}

	r := Result{
		Input:   path,
		Output:  out,
		Before:  report.Input,
		After:   report.Output,
		Elapsed: time.Since(start),
	}
	if report.Simplified {
		r.Status = report.Status.String()
	}
	return r
}

// RelativeResolver loads glTF external buffers relative to dir. URIs that
// escape dir are refused.
func RelativeResolver(dir string) func(uri string) ([]byte, error) {
	return func(uri string) ([]byte, error) {
		rel, err := url.PathUnescape(uri)
		if err != nil {
			return nil, err
		}
		rel = filepath.FromSlash(rel)
		if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, uri)
		}
		return os.ReadFile(filepath.Join(dir, rel))
	}
}
