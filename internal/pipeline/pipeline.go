// Package pipeline runs parse, simplify and export over in-memory buffers
// and reports what each stage did.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/meshslim/internal/logger"
	"github.com/Faultbox/meshslim/pkg/decimate"
	"github.com/Faultbox/meshslim/pkg/formats"
	"github.com/Faultbox/meshslim/pkg/mesh"
)

// ErrUnknownFormat is returned when neither the hint, the source name nor
// the content identify the input format.
var ErrUnknownFormat = errors.New("cannot determine input format")

// Request describes one conversion.
type Request struct {
	// Source names the input for logs. It is also the format hint when
	// Hint is empty.
	Source  string
	Data    []byte
	Hint    string
	Charset string // legacy OBJ encoding, see formats.ParseOptions

	// Ratio is the share of faces to remove. Zero skips simplification.
	Ratio    float64
	Simplify decimate.Options
	// Timeout bounds the simplify stage. When it fires the partial result
	// is exported and Report.Status is decimate.StatusCancelled.
	Timeout time.Duration

	Target     formats.Format
	ObjectName string // replaces the mesh name when set

	ResolveURI func(uri string) ([]byte, error)
	Logger     *zap.Logger
}

// Stats counts mesh elements.
type Stats struct {
	Vertices int `json:"vertices"`
	Faces    int `json:"faces"`
}

func statsOf(m *mesh.Mesh) Stats {
	return Stats{Vertices: m.VertexCount(), Faces: m.FaceCount()}
}

// Report is the outcome of a successful Run.
type Report struct {
	Source       string
	InputFormat  formats.Format
	OutputFormat formats.Format
	Input        Stats
	Output       Stats
	Dropped      int // degenerate input polygons discarded while parsing

	Simplified bool
	Status     decimate.Status
	Collapses  int
	Rejected   int

	ParseTime    time.Duration
	SimplifyTime time.Duration
	EncodeTime   time.Duration

	Mesh *mesh.Mesh
	Data []byte
}

// Reduction is the share of input faces removed.
func (r *Report) Reduction() float64 {
	if r.Input.Faces == 0 {
		return 0
	}
	return 1 - float64(r.Output.Faces)/float64(r.Input.Faces)
}

// ResolveFormat picks the input format from hint, then source, then the
// leading bytes of data.
func ResolveFormat(hint, source string, data []byte) (formats.Format, error) {
	if hint != "" {
		return formats.FormatFromHint(hint)
	}
	if source != "" {
		if f, err := formats.FormatFromHint(source); err == nil {
			return f, nil
		}
	}
	if f := formats.SniffFormat(data); f != formats.FormatUnknown {
		return f, nil
	}
	return formats.FormatUnknown, fmt.Errorf("%w: %s", ErrUnknownFormat, source)
}

// Run parses req.Data, simplifies it when req.Ratio is non-zero and encodes
// the result in req.Target. A cancelled ctx aborts with its error; a
// simplify timeout does not.
func Run(ctx context.Context, req Request) (*Report, error) {
	log := req.Logger
	if log == nil {
		log = logger.Named("pipeline")
	}
	log = log.With(zap.String("source", req.Source))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inFormat, err := ResolveFormat(req.Hint, req.Source, req.Data)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Source:       req.Source,
		InputFormat:  inFormat,
		OutputFormat: req.Target,
	}

	start := time.Now()
	m, err := formats.ParseWithOptions(req.Data, inFormat.String(), formats.ParseOptions{
		ResolveURI: req.ResolveURI,
		Charset:    req.Charset,
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.Source, err)
	}
	report.ParseTime = time.Since(start)
	report.Input = statsOf(m)
	report.Dropped = m.DroppedFaces()
	log.Debug("parsed",
		zap.Stringer("format", inFormat),
		zap.Int("vertices", report.Input.Vertices),
		zap.Int("faces", report.Input.Faces),
		zap.Int("dropped", report.Dropped),
		zap.Int("bytes", len(req.Data)),
		zap.Duration("elapsed", report.ParseTime),
	)
	if report.Dropped > 0 {
		log.Warn("dropped degenerate faces", zap.Int("count", report.Dropped))
	}

	if req.Ratio != 0 {
		if m, err = simplify(ctx, req, m, report, log); err != nil {
			return nil, err
		}
	}

	if req.ObjectName != "" {
		m.Name = req.ObjectName
	}

	start = time.Now()
	out, err := formats.Encode(m, req.Target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Source, err)
	}
	report.EncodeTime = time.Since(start)
	report.Output = statsOf(m)
	report.Mesh = m
	report.Data = out

	log.Info("converted",
		zap.Stringer("from", inFormat),
		zap.Stringer("to", req.Target),
		zap.Int("faces_in", report.Input.Faces),
		zap.Int("faces_out", report.Output.Faces),
		zap.Int("bytes_out", len(out)),
	)
	return report, nil
}

func simplify(ctx context.Context, req Request, m *mesh.Mesh, report *Report, log *zap.Logger) (*mesh.Mesh, error) {
	sctx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	opts := req.Simplify
	if opts.Logger == nil {
		opts.Logger = log
	}

	start := time.Now()
	res, err := decimate.SimplifyWithOptions(sctx, m, req.Ratio, opts)
	if err != nil {
		return nil, fmt.Errorf("simplify %s: %w", req.Source, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.SimplifyTime = time.Since(start)
	report.Simplified = true
	report.Status = res.Status
	report.Collapses = res.Collapses
	report.Rejected = res.Rejected

	if res.Status == decimate.StatusCancelled {
		log.Warn("simplify timed out, keeping partial result",
			zap.Duration("timeout", req.Timeout),
			zap.Int("faces", res.Mesh.FaceCount()),
			zap.Int("target", res.TargetFaces),
		)
	}
	return res.Mesh, nil
}
