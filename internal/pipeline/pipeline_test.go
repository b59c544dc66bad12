package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/meshslim/internal/meshtest"
	"github.com/Faultbox/meshslim/pkg/decimate"
	"github.com/Faultbox/meshslim/pkg/formats"
)

func sphereOBJ() []byte {
	return formats.EncodeOBJ(meshtest.UVSphere(1, 16, 24))
}

func TestRun_SimplifyOBJToGLB(t *testing.T) {
	report, err := Run(context.Background(), Request{
		Source: "sphere.obj",
		Data:   sphereOBJ(),
		Ratio:  0.5,
		Target: formats.FormatGLB,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if report.InputFormat != formats.FormatOBJ || report.OutputFormat != formats.FormatGLB {
		t.Errorf("formats = %v -> %v", report.InputFormat, report.OutputFormat)
	}
	if report.Input.Faces != 720 {
		t.Errorf("input faces = %d, want 720", report.Input.Faces)
	}
	if report.Output.Faces > 360 || report.Output.Faces == 0 {
		t.Errorf("output faces = %d, want in (0, 360]", report.Output.Faces)
	}
	if report.Output.Vertices >= report.Input.Vertices {
		t.Errorf("vertices did not drop: %d -> %d", report.Input.Vertices, report.Output.Vertices)
	}
	if !report.Simplified || report.Status != decimate.StatusCompleted {
		t.Errorf("simplified=%v status=%v", report.Simplified, report.Status)
	}
	if report.Collapses == 0 {
		t.Error("expected collapses")
	}
	if r := report.Reduction(); r < 0.5 {
		t.Errorf("Reduction() = %v, want >= 0.5", r)
	}

	if formats.SniffFormat(report.Data) != formats.FormatGLB {
		t.Fatal("output is not GLB")
	}
	back, err := formats.Parse(report.Data, "glb")
	if err != nil {
		t.Fatalf("re-parse output: %v", err)
	}
	if back.FaceCount() != report.Output.Faces {
		t.Errorf("re-parsed %d faces, report says %d", back.FaceCount(), report.Output.Faces)
	}
	if back.FaceCount() != report.Mesh.FaceCount() {
		t.Errorf("report mesh has %d faces, output %d", report.Mesh.FaceCount(), back.FaceCount())
	}
}

func TestRun_ZeroRatioConverts(t *testing.T) {
	src := meshtest.UnitCube()
	glb, err := formats.EncodeGLB(src)
	if err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background(), Request{
		Source: "cube.glb",
		Data:   glb,
		Target: formats.FormatOBJ,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Simplified {
		t.Error("ratio 0 must skip simplification")
	}
	if report.Input != report.Output {
		t.Errorf("counts changed: %+v -> %+v", report.Input, report.Output)
	}
	if report.Reduction() != 0 {
		t.Errorf("Reduction() = %v, want 0", report.Reduction())
	}
	if formats.SniffFormat(report.Data) != formats.FormatOBJ {
		t.Error("output is not OBJ")
	}
}

func TestRun_ObjectName(t *testing.T) {
	report, err := Run(context.Background(), Request{
		Source:     "in.obj",
		Data:       formats.EncodeOBJ(meshtest.UnitCube()),
		Target:     formats.FormatOBJ,
		ObjectName: "Renamed",
	})
	if err != nil {
		t.Fatal(err)
	}
	back, err := formats.Parse(report.Data, "obj")
	if err != nil {
		t.Fatal(err)
	}
	if back.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", back.Name)
	}
}

func TestRun_Errors(t *testing.T) {
	cube := formats.EncodeOBJ(meshtest.UnitCube())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		req  Request
		want error
	}{
		{"bad hint", context.Background(), Request{Data: cube, Hint: "fbx", Target: formats.FormatOBJ}, formats.ErrUnsupportedFormat},
		{"unknown input", context.Background(), Request{Source: "mystery", Target: formats.FormatOBJ}, ErrUnknownFormat},
		{"parse failure", context.Background(), Request{Source: "a.obj", Data: []byte("f 1 2 3\n"), Target: formats.FormatOBJ}, formats.ErrIndexOutOfRange},
		{"truncated glb", context.Background(), Request{Source: "a.glb", Data: []byte("glTF"), Target: formats.FormatOBJ}, formats.ErrTruncatedBuffer},
		{"invalid ratio", context.Background(), Request{Source: "a.obj", Data: cube, Ratio: 1.5, Target: formats.FormatOBJ}, decimate.ErrInvalidParameter},
		{"invalid options", context.Background(), Request{Source: "a.obj", Data: cube, Ratio: 0.5, Simplify: decimate.Options{MaxFlipAngle: 270}, Target: formats.FormatOBJ}, decimate.ErrInvalidParameter},
		{"gltf target", context.Background(), Request{Source: "a.obj", Data: cube, Target: formats.FormatGLTF}, formats.ErrUnsupportedTargetFormat},
		{"no target", context.Background(), Request{Source: "a.obj", Data: cube}, formats.ErrUnsupportedTargetFormat},
		{"cancelled", cancelled, Request{Source: "a.obj", Data: cube, Target: formats.FormatOBJ}, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Run(tt.ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() error = %v, want %v", err, tt.want)
			}
			if report != nil {
				t.Error("expected nil report on error")
			}
		})
	}
}

func TestResolveFormat(t *testing.T) {
	glb, err := formats.EncodeGLB(meshtest.UnitCube())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		hint    string
		source  string
		data    []byte
		want    formats.Format
		wantErr bool
	}{
		{"hint wins", "obj", "model.glb", glb, formats.FormatOBJ, false},
		{"source extension", "", "dir/Model.GLB", nil, formats.FormatGLB, false},
		{"sniff glb", "", "model.bin", glb, formats.FormatGLB, false},
		{"sniff gltf", "", "", []byte(` {"asset":{}}`), formats.FormatGLTF, false},
		{"sniff obj", "", "stdin", []byte("v 0 0 0\n"), formats.FormatOBJ, false},
		{"nothing", "", "", nil, formats.FormatUnknown, true},
		{"bad hint", "3ds", "a.obj", nil, formats.FormatUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveFormat(tt.hint, tt.source, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_ExternalBuffer(t *testing.T) {
	doc := []byte(`{
  "asset": {"version": "2.0"},
  "buffers": [{"uri": "tri.bin", "byteLength": 36}],
  "bufferViews": [{"buffer": 0, "byteLength": 36}],
  "accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
  "nodes": [{"mesh": 0}],
  "scenes": [{"nodes": [0]}]
}`)
	bin := make([]byte, 36)
	// (1,0,0) and (0,1,0) as little-endian float32
	bin[12+2], bin[12+3] = 0x80, 0x3f
	bin[24+6], bin[24+7] = 0x80, 0x3f

	var asked string
	report, err := Run(context.Background(), Request{
		Source: "tri.gltf",
		Data:   doc,
		Target: formats.FormatOBJ,
		ResolveURI: func(uri string) ([]byte, error) {
			asked = uri
			return bin, nil
		},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if asked != "tri.bin" {
		t.Errorf("resolver asked for %q", asked)
	}
	if report.Input.Faces != 1 || report.Input.Vertices != 3 {
		t.Errorf("input = %+v, want 3 vertices and 1 face", report.Input)
	}
}

func TestRun_Logs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	_, err := Run(context.Background(), Request{
		Source: "cube.obj",
		Data:   formats.EncodeOBJ(meshtest.UnitCube()),
		Ratio:  0.5,
		Target: formats.FormatGLB,
		Logger: zap.New(core),
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, msg := range []string{"parsed", "simplified mesh", "converted"} {
		if logs.FilterMessage(msg).Len() != 1 {
			t.Errorf("expected one %q entry", msg)
		}
	}

	entry := logs.FilterMessage("converted").All()[0]
	fields := entry.ContextMap()
	if fields["source"] != "cube.obj" {
		t.Errorf("source = %v", fields["source"])
	}
	if fields["faces_in"] != int64(12) {
		t.Errorf("faces_in = %v, want 12", fields["faces_in"])
	}
	if fields["to"] != "glb" {
		t.Errorf("to = %v, want glb", fields["to"])
	}
}

// cubeOBJ is the unit cube as a modeller would write it: shared corners
// and one quad per side.
const cubeOBJ = `# unit cube
o Cube
v 0 0 0
v 1 0 0
v 0 1 0
v 1 1 0
v 0 0 1
v 1 0 1
v 0 1 1
v 1 1 1
f 1 3 4 2
f 5 6 8 7
f 1 2 6 5
f 3 7 8 4
f 1 5 7 3
f 2 4 8 6
`

func TestRun_UnitCubeText(t *testing.T) {
	report, err := Run(context.Background(), Request{
		Source: "cube.obj",
		Data:   []byte(cubeOBJ),
		Ratio:  0.5,
		Target: formats.FormatOBJ,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Input.Faces != 12 || report.Input.Vertices != 8 {
		t.Fatalf("parsed %d/%d, want 8 vertices / 12 faces", report.Input.Vertices, report.Input.Faces)
	}
	if report.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", report.Dropped)
	}

	back, err := formats.ParseOBJ(report.Data)
	if err != nil {
		t.Fatalf("re-parse output: %v", err)
	}
	if back.FaceCount() > 6 || back.FaceCount() == 0 {
		t.Errorf("simplified cube has %d faces, want 1..6", back.FaceCount())
	}
	if !back.Adjacency().IsClosed() {
		t.Errorf("simplified cube is not closed: %d boundary edges", len(back.Adjacency().BoundaryEdges()))
	}
	if len(back.Adjacency().NonManifoldEdges()) != 0 {
		t.Error("simplified cube has non-manifold edges")
	}
}

func TestRun_ReportsDroppedFaces(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	report, err := Run(context.Background(), Request{
		Source: "bad.obj",
		Data:   []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\nf 1 1 3\n"),
		Target: formats.FormatOBJ,
		Logger: zap.New(core),
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", report.Dropped)
	}
	entries := logs.FilterMessage("dropped degenerate faces").All()
	if len(entries) != 1 || entries[0].ContextMap()["count"] != int64(1) {
		t.Errorf("expected one warning with count 1, got %v", entries)
	}
}
