package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/meshslim/internal/config"
	"github.com/Faultbox/meshslim/internal/meshtest"
	"github.com/Faultbox/meshslim/pkg/decimate"
	"github.com/Faultbox/meshslim/pkg/formats"
	"github.com/Faultbox/meshslim/pkg/mesh"
)

func writeModel(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustGLB(t *testing.T, m *mesh.Mesh) []byte {
	t.Helper()
	data, err := formats.EncodeGLB(m)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func testConfig(outDir string) Config {
	return Config{
		OutputDir: outDir,
		Suffix:    "_lod",
		Target:    formats.FormatGLB,
		Ratio:     0.5,
		Workers:   2,
		Logger:    zap.NewNop(),
	}
}

func TestRun(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	paths := []string{
		writeModel(t, in, "sphere.obj", formats.EncodeOBJ(meshtest.UVSphere(1, 16, 24))),
		writeModel(t, in, "cube.glb", mustGLB(t, meshtest.UnitCube())),
		writeModel(t, in, "grid.obj", formats.EncodeOBJ(meshtest.Grid(8))),
	}

	cfg := testConfig(out)
	cfg.Manifest = filepath.Join(out, "manifest.json")

	results, err := Run(context.Background(), cfg, paths)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(results) != len(paths) {
		t.Fatalf("got %d results, want %d", len(results), len(paths))
	}

	wantFaces := []int{720, 12, 128}
	for i, r := range results {
		if r.Input != paths[i] {
			t.Errorf("result %d is for %s, want %s", i, r.Input, paths[i])
		}
		if !r.OK() {
			t.Errorf("%s failed: %v", r.Input, r.Err)
			continue
		}
		if r.Before.Faces != wantFaces[i] {
			t.Errorf("%s: before = %d faces, want %d", r.Input, r.Before.Faces, wantFaces[i])
		}
		if r.After.Faces > r.Before.Faces {
			t.Errorf("%s: grew from %d to %d faces", r.Input, r.Before.Faces, r.After.Faces)
		}
		if r.Status != "completed" {
			t.Errorf("%s: status %q", r.Input, r.Status)
		}
		if r.Output != OutputPath(paths[i], out, "_lod", formats.FormatGLB) {
			t.Errorf("%s: output %s", r.Input, r.Output)
		}

		data, err := os.ReadFile(r.Output)
		if err != nil {
			t.Fatalf("missing output: %v", err)
		}
		m, err := formats.Parse(data, r.Output)
		if err != nil {
			t.Fatalf("parse %s: %v", r.Output, err)
		}
		if m.FaceCount() != r.After.Faces {
			t.Errorf("%s has %d faces, result says %d", r.Output, m.FaceCount(), r.After.Faces)
		}
	}

	manifest, err := ReadManifest(cfg.Manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if manifest.Succeeded != 3 || manifest.Failed != 0 {
		t.Errorf("manifest counts = %d/%d", manifest.Succeeded, manifest.Failed)
	}
	if manifest.Format != "glb" || manifest.Ratio != 0.5 {
		t.Errorf("manifest header = %q %v", manifest.Format, manifest.Ratio)
	}
	if len(manifest.Results) != 3 || manifest.Results[1].Input != paths[1] {
		t.Errorf("manifest results out of order: %+v", manifest.Results)
	}
}

func TestRun_PartialFailure(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	paths := []string{
		writeModel(t, in, "good.obj", formats.EncodeOBJ(meshtest.UnitCube())),
		writeModel(t, in, "bad.obj", []byte("v 0 0 0\nf 1 2 3\n")),
		filepath.Join(in, "missing.obj"),
		writeModel(t, in, "short.glb", []byte("glTF\x02\x00")),
	}

	cfg := testConfig(out)
	cfg.Manifest = filepath.Join(out, "report", "manifest.json")

	results, err := Run(context.Background(), cfg, paths)
	if err == nil {
		t.Fatal("expected combined error")
	}
	if n := len(multierr.Errors(err)); n != 3 {
		t.Errorf("expected 3 combined errors, got %d: %v", n, err)
	}
	if !errors.Is(err, formats.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange in %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist in %v", err)
	}
	if !errors.Is(err, formats.ErrTruncatedBuffer) {
		t.Errorf("expected ErrTruncatedBuffer in %v", err)
	}

	if !results[0].OK() {
		t.Errorf("good file failed: %v", results[0].Err)
	}
	for _, r := range results[1:] {
		if r.OK() || r.Error == "" {
			t.Errorf("%s: expected failure, got %+v", r.Input, r)
		}
		if r.Output != "" {
			t.Errorf("%s: failed file reports output %s", r.Input, r.Output)
		}
	}

	manifest, err := ReadManifest(cfg.Manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if manifest.Succeeded != 1 || manifest.Failed != 3 {
		t.Errorf("manifest counts = %d/%d, want 1/3", manifest.Succeeded, manifest.Failed)
	}
	if manifest.Results[1].Error == "" {
		t.Error("manifest lost the error text")
	}
}

func TestRun_OutputConflicts(t *testing.T) {
	in := t.TempDir()
	cube := formats.EncodeOBJ(meshtest.UnitCube())
	a := writeModel(t, in, filepath.Join("a", "rock.obj"), cube)
	b := writeModel(t, in, filepath.Join("b", "rock.obj"), cube)

	cfg := testConfig(t.TempDir())
	results, err := Run(context.Background(), cfg, []string{a, b})
	if !errors.Is(err, ErrDuplicateOutput) {
		t.Fatalf("expected ErrDuplicateOutput, got %v", err)
	}
	if !results[0].OK() || results[1].OK() {
		t.Errorf("first input should win: %v / %v", results[0].Err, results[1].Err)
	}

	// Writing next to the input with no suffix and the same format
	cfg = testConfig(filepath.Join(in, "a"))
	cfg.Suffix = ""
	cfg.Target = formats.FormatOBJ
	results, err = Run(context.Background(), cfg, []string{a})
	if !errors.Is(err, ErrOverwriteInput) {
		t.Fatalf("expected ErrOverwriteInput, got %v", err)
	}
	data, _ := os.ReadFile(a)
	if !bytes.Equal(data, cube) {
		t.Error("input file was modified")
	}
	if results[0].OK() {
		t.Error("expected failure")
	}
}

func TestRun_Cancelled(t *testing.T) {
	in := t.TempDir()
	paths := []string{
		writeModel(t, in, "one.obj", formats.EncodeOBJ(meshtest.UnitCube())),
		writeModel(t, in, "two.obj", formats.EncodeOBJ(meshtest.UnitCube())),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := Run(ctx, testConfig(t.TempDir()), paths)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("%s: err = %v", r.Input, r.Err)
		}
	}
}

func TestRun_WorkerCountIsInvisible(t *testing.T) {
	in := t.TempDir()
	var paths []string
	for i, m := range []*mesh.Mesh{meshtest.UVSphere(1, 8, 12), meshtest.Grid(6), meshtest.UVSphere(2, 10, 10), meshtest.UnitCube()} {
		paths = append(paths, writeModel(t, in, string(rune('a'+i))+".obj", formats.EncodeOBJ(m)))
	}

	outputs := func(workers int) [][]byte {
		cfg := testConfig(t.TempDir())
		cfg.Workers = workers
		results, err := Run(context.Background(), cfg, paths)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		var all [][]byte
		for _, r := range results {
			data, err := os.ReadFile(r.Output)
			if err != nil {
				t.Fatal(err)
			}
			all = append(all, data)
		}
		return all
	}

	serial, parallel := outputs(1), outputs(4)
	for i := range serial {
		if !bytes.Equal(serial[i], parallel[i]) {
			t.Errorf("%s differs between 1 and 4 workers", paths[i])
		}
	}
}

func TestRun_ExternalBuffer(t *testing.T) {
	in := t.TempDir()
	bin := make([]byte, 36)
	bin[14], bin[15] = 0x80, 0x3f
	bin[30], bin[31] = 0x80, 0x3f
	writeModel(t, in, filepath.Join("bufs", "tri data.bin"), bin)
	path := writeModel(t, in, "tri.gltf", []byte(`{
  "asset": {"version": "2.0"},
  "buffers": [{"uri": "bufs/tri%20data.bin", "byteLength": 36}],
  "bufferViews": [{"buffer": 0, "byteLength": 36}],
  "accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}]
}`))

	cfg := testConfig(t.TempDir())
	cfg.Ratio = 0
	cfg.Target = formats.FormatOBJ
	results, err := Run(context.Background(), cfg, []string{path})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if results[0].After.Faces != 1 {
		t.Errorf("faces = %d, want 1", results[0].After.Faces)
	}
	if results[0].Status != "" {
		t.Errorf("status = %q, want empty when not simplified", results[0].Status)
	}
}

func TestRelativeResolver(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "buf.bin", []byte{1, 2, 3})
	resolve := RelativeResolver(dir)

	data, err := resolve("buf.bin")
	if err != nil || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("resolve(buf.bin) = %v, %v", data, err)
	}

	for _, uri := range []string{"../secret.bin", "/etc/passwd", "a/../../b.bin"} {
		if _, err := resolve(uri); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("resolve(%q) error = %v, want ErrOutsideRoot", uri, err)
		}
	}
	if _, err := resolve("missing.bin"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input  string
		dir    string
		suffix string
		target formats.Format
		want   string
	}{
		{"models/rock.obj", "out", "_lod", formats.FormatGLB, filepath.Join("out", "rock_lod.glb")},
		{"rock.gltf", "", "", formats.FormatOBJ, "rock.obj"},
		{"a/b/tree.v2.glb", "x", "-s", formats.FormatOBJ, filepath.Join("x", "tree.v2-s.obj")},
		{"noext", "o", "", formats.FormatGLB, filepath.Join("o", "noext.glb")},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.input, tt.dir, tt.suffix, tt.target); got != tt.want {
			t.Errorf("OutputPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	c := config.Default()
	c.Export.Format = "obj"
	c.Export.OutputDir = "lods"
	c.Simplify.Ratio = 0.7
	c.Simplify.MaxFlipAngle = 45
	c.Batch.Workers = 3

	cfg, err := ConfigFrom(c)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target != formats.FormatOBJ || cfg.OutputDir != "lods" || cfg.Workers != 3 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Ratio != 0.7 || cfg.Simplify != (decimate.Options{BoundaryWeight: 100, MaxFlipAngle: 45}) {
		t.Errorf("unexpected simplify settings %+v", cfg.Simplify)
	}

	c.Export.Format = "stl"
	if _, err := ConfigFrom(c); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected config.ErrInvalid, got %v", err)
	}
}
