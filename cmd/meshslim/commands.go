package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/Faultbox/meshslim/internal/batch"
	"github.com/Faultbox/meshslim/internal/config"
	"github.com/Faultbox/meshslim/internal/pipeline"
	"github.com/Faultbox/meshslim/pkg/decimate"
	"github.com/Faultbox/meshslim/pkg/formats"
)

func cmdInfo(_ context.Context, e *env, args []string) error {
	cfg, err := e.setup(args)
	if err != nil {
		return err
	}
	if e.fs.NArg() != 1 {
		return e.usage("info <model>")
	}
	path := e.fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	format, err := pipeline.ResolveFormat("", path, data)
	if err != nil {
		return err
	}
	m, err := formats.ParseWithOptions(data, format.String(), formats.ParseOptions{
		ResolveURI: batch.RelativeResolver(filepath.Dir(path)),
		Charset:    cfg.Input.Charset,
	})
	if err != nil {
		return err
	}

	adj := m.Adjacency()
	bounds := m.Bounds()
	size := bounds.Size()
	closed := "no"
	if adj.IsClosed() {
		closed = "yes"
	}

	w := e.stdout
	fmt.Fprintf(w, "File:       %s\n", path)
	fmt.Fprintf(w, "Format:     %s\n", format)
	fmt.Fprintf(w, "Name:       %s\n", m.Name)
	fmt.Fprintf(w, "Vertices:   %d\n", m.VertexCount())
	fmt.Fprintf(w, "Faces:      %d\n", m.FaceCount())
	if n := m.DroppedFaces(); n > 0 {
		fmt.Fprintf(w, "Dropped:    %d degenerate\n", n)
	}
	fmt.Fprintf(w, "Attributes: %s\n", m.Attributes())
	fmt.Fprintf(w, "Bounds:     (%g, %g, %g) - (%g, %g, %g)\n",
		bounds.Min.X, bounds.Min.Y, bounds.Min.Z, bounds.Max.X, bounds.Max.Y, bounds.Max.Z)
	fmt.Fprintf(w, "Size:       %g x %g x %g\n", size.X, size.Y, size.Z)
	fmt.Fprintf(w, "Area:       %.4f\n", m.SurfaceArea())
	fmt.Fprintf(w, "Edges:      %d (%d boundary, %d non-manifold)\n",
		len(adj.Edges()), len(adj.BoundaryEdges()), len(adj.NonManifoldEdges()))
	fmt.Fprintf(w, "Closed:     %s\n", closed)
	return nil
}

func cmdSimplify(ctx context.Context, e *env, args []string) error {
	output := e.fs.StringP("output", "o", "", "output file (default <outdir>/<name><suffix>.<format>)")
	e.flags.RegisterSimplify()
	e.flags.RegisterExport()

	cfg, err := e.setup(args)
	if err != nil {
		return err
	}
	if e.fs.NArg() != 1 {
		return e.usage("simplify <model> [-r ratio] [-o out] [-f obj|glb]")
	}
	if cfg.Simplify.Ratio == 0 {
		return fmt.Errorf("ratio must be in (0, 1) to simplify; use convert to skip simplification")
	}
	return convertFile(ctx, e, cfg, e.fs.Arg(0), *output)
}

func cmdConvert(ctx context.Context, e *env, args []string) error {
	output := e.fs.StringP("output", "o", "", "output file")
	e.flags.RegisterExport()

	cfg, err := e.setup(args)
	if err != nil {
		return err
	}
	if e.fs.NArg() != 1 || *output == "" {
		return e.usage("convert <model> -o <out> [-f obj|glb]")
	}
	cfg.Simplify.Ratio = 0
	return convertFile(ctx, e, cfg, e.fs.Arg(0), *output)
}

// convertFile runs the pipeline on one file. The target format comes from
// -f, then the -o extension, then the config.
func convertFile(ctx context.Context, e *env, cfg *config.Config, input, output string) error {
	target, err := cfg.ExportFormat()
	if err != nil {
		return err
	}
	if output != "" && !e.fs.Changed("format") {
		if f, err := formats.FormatFromHint(output); err == nil {
			if f == formats.FormatGLTF {
				return fmt.Errorf("%w: %s", formats.ErrUnsupportedTargetFormat, output)
			}
			target = f
		}
	}
	if output == "" {
		output = batch.OutputPath(input, cfg.Export.OutputDir, cfg.Export.Suffix, target)
	}
	if sameFile(input, output) {
		return fmt.Errorf("%w: %s", batch.ErrOverwriteInput, output)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	report, err := pipeline.Run(ctx, pipeline.Request{
		Source:  input,
		Data:    data,
		Charset: cfg.Input.Charset,
		Ratio:   cfg.Simplify.Ratio,
		Simplify: decimate.Options{
			BoundaryWeight: cfg.Simplify.BoundaryWeight,
			MaxFlipAngle:   cfg.Simplify.MaxFlipAngle,
		},
		Timeout:    cfg.Simplify.Timeout,
		Target:     target,
		ObjectName: cfg.Export.ObjectName,
		ResolveURI: batch.RelativeResolver(filepath.Dir(input)),
	})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(output, report.Data, 0644); err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "Original:   %d faces, %d vertices\n", report.Input.Faces, report.Input.Vertices)
	if report.Simplified {
		fmt.Fprintf(e.stdout, "Simplified: %d faces, %d vertices (%.1f%% fewer faces, %s)\n",
			report.Output.Faces, report.Output.Vertices, report.Reduction()*100, report.Status)
	}
	fmt.Fprintf(e.stdout, "Wrote %s (%s, %d bytes)\n", output, target, len(report.Data))
	return nil
}

func sameFile(a, b string) bool {
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}

func cmdBatch(ctx context.Context, e *env, args []string) error {
	e.flags.RegisterSimplify()
	e.flags.RegisterExport()
	e.flags.RegisterBatch()

	cfg, err := e.setup(args)
	if err != nil {
		return err
	}
	if e.fs.NArg() == 0 {
		return e.usage("batch <models...> [-j workers] [-d outdir] [-r ratio]")
	}

	bcfg, err := batch.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	results, runErr := batch.Run(ctx, bcfg, e.fs.Args())

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tFACES\tOUTPUT\tRESULT")
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
			fmt.Fprintf(tw, "%s\t-\t-\t%s\n", r.Input, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d -> %d\t%s\tok\n", r.Input, r.Before.Faces, r.After.Faces, r.Output)
	}
	tw.Flush()
	fmt.Fprintf(e.stdout, "\n%d converted, %d failed\n", len(results)-failed, failed)

	if runErr != nil {
		return fmt.Errorf("%d of %d files failed", failed, len(e.fs.Args()))
	}
	return nil
}

func cmdConfig(_ context.Context, e *env, args []string) error {
	e.flags.RegisterSimplify()
	e.flags.RegisterExport()
	e.flags.RegisterBatch()
	save := e.fs.String("save", "", "write the effective config to this path")
	e.fs.Lookup("save").NoOptDefVal = config.DefaultPath()

	cfg, err := e.setup(args)
	if err != nil {
		return err
	}
	if e.fs.NArg() != 0 {
		return e.usage("config [--save[=path]]")
	}

	if !e.fs.Changed("save") {
		return cfg.Encode(e.stdout)
	}
	if *save == "" {
		return fmt.Errorf("no user config directory; pass --save=<path>")
	}
	if err := cfg.SaveTo(*save); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Saved %s\n", *save)
	return nil
}
