// Package decimate reduces triangle meshes by quadric-error edge collapse.
//
// Every vertex carries the sum of the area-weighted plane quadrics of its
// faces; open edges add a weighted plane perpendicular to their face so
// silhouettes erode last. Edges are collapsed cheapest first until the
// requested share of faces is gone or no valid collapse remains. The input
// mesh is never modified and equal inputs give bit-identical output.
package decimate

import (
	"context"
	"errors"
	"fmt"
	gomath "math"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/meshslim/pkg/mesh"
)

// ErrInvalidParameter is returned for a ratio outside (0, 1) or an
// out-of-range option.
var ErrInvalidParameter = errors.New("invalid parameter")

// Defaults applied to zero Options fields.
const (
	DefaultBoundaryWeight = 100.0
	DefaultMaxFlipAngle   = 90.0
)

// minFaces is the decimation floor; smaller meshes are returned as copies.
const minFaces = 4

// Status tells whether a run finished or was cut short.
type Status int

const (
	StatusCompleted Status = iota
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Options tunes a simplification run. Zero fields take their defaults.
type Options struct {
	// BoundaryWeight scales the constraint planes along open edges.
	BoundaryWeight float64
	// MaxFlipAngle is the largest rotation, in degrees, a surviving face
	// normal may undergo in one collapse.
	MaxFlipAngle float64
	// Logger receives a debug summary per run. Nil means no logging.
	Logger *zap.Logger
}

// DefaultOptions returns the options used by Simplify.
func DefaultOptions() Options {
	return Options{
		BoundaryWeight: DefaultBoundaryWeight,
		MaxFlipAngle:   DefaultMaxFlipAngle,
	}
}

func (o Options) normalize() (Options, error) {
	if o.BoundaryWeight == 0 {
		o.BoundaryWeight = DefaultBoundaryWeight
	}
	if o.MaxFlipAngle == 0 {
		o.MaxFlipAngle = DefaultMaxFlipAngle
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	if gomath.IsNaN(o.BoundaryWeight) || gomath.IsInf(o.BoundaryWeight, 0) || o.BoundaryWeight < 0 {
		return o, fmt.Errorf("%w: boundary weight %v", ErrInvalidParameter, o.BoundaryWeight)
	}
	if gomath.IsNaN(o.MaxFlipAngle) || o.MaxFlipAngle < 0 || o.MaxFlipAngle > 180 {
		return o, fmt.Errorf("%w: max flip angle %v outside (0, 180]", ErrInvalidParameter, o.MaxFlipAngle)
	}
	return o, nil
}

// Result is the outcome of a simplification run.
type Result struct {
	Mesh          *mesh.Mesh
	Status        Status
	OriginalFaces int
	TargetFaces   int
	Collapses     int
	// Rejected counts edges parked because no collapse position was valid.
	Rejected int
}

// AchievedRatio returns the fraction of the original faces removed.
func (r *Result) AchievedRatio() float64 {
	if r.OriginalFaces == 0 {
		return 0
	}
	return 1 - float64(r.Mesh.FaceCount())/float64(r.OriginalFaces)
}

// Simplify removes roughly ratio of the faces of m using DefaultOptions.
func Simplify(ctx context.Context, m *mesh.Mesh, ratio float64) (*Result, error) {
	return SimplifyWithOptions(ctx, m, ratio, DefaultOptions())
}

// SimplifyWithOptions removes faces from a copy of m until at most
// round((1-ratio)·faces) remain or no valid collapse is left. Meshes with
// fewer than four faces are returned as copies.
//
// ctx is checked once per queue pop; when it is done the compacted mesh
// reached so far is returned with StatusCancelled and a nil error.
func SimplifyWithOptions(ctx context.Context, m *mesh.Mesh, ratio float64, opts Options) (*Result, error) {
	if gomath.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("%w: ratio %v outside (0, 1)", ErrInvalidParameter, ratio)
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	faces := m.FaceCount()
	if faces < minFaces {
		return &Result{
			Mesh:          m.Clone(),
			Status:        StatusCompleted,
			OriginalFaces: faces,
			TargetFaces:   faces,
		}, nil
	}
	target := int(gomath.Round((1 - ratio) * float64(faces)))

	start := time.Now()
	c := newCollapser(m, opts)
	status := c.run(ctx, target)

	out, err := c.compact(m.Name, m.Attributes())
	if err != nil {
		return nil, fmt.Errorf("compact %q: %w", m.Name, err)
	}

	opts.Logger.Debug("simplified mesh",
		zap.String("mesh", m.Name),
		zap.Int("faces_in", faces),
		zap.Int("faces_out", out.FaceCount()),
		zap.Int("target", target),
		zap.Int("collapses", c.collapses),
		zap.Int("rejected", c.rejected),
		zap.Stringer("status", status),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Mesh:          out,
		Status:        status,
		OriginalFaces: faces,
		TargetFaces:   target,
		Collapses:     c.collapses,
		Rejected:      c.rejected,
	}, nil
}
