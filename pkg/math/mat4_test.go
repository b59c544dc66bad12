package math

import (
	"testing"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
	if !m.IsIdentity() {
		t.Error("IsIdentity should be true for Identity()")
	}
	if Translate(0, 0, 1).IsIdentity() {
		t.Error("IsIdentity should be false for a translation")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	result := m.Mul(Identity())

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTransformVec3(t *testing.T) {
	tests := []struct {
		name string
		m    Mat4
		p    Vec3
		want Vec3
	}{
		{"translate", Translate(10, 20, 30), Vec3{1, 2, 3}, Vec3{11, 22, 33}},
		{"scale", Scale(2, 3, 4), Vec3{1, 1, 1}, Vec3{2, 3, 4}},
		{"scale then translate", Translate(1, 0, 0).Mul(Scale(2, 2, 2)), Vec3{1, 1, 1}, Vec3{3, 2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.TransformVec3(tt.p); got != tt.want {
				t.Errorf("TransformVec3(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestTransformDirection_IgnoresTranslation(t *testing.T) {
	m := Translate(5, 5, 5)
	d := Vec3{0, 1, 0}
	if got := m.TransformDirection(d); got != d {
		t.Errorf("TransformDirection should ignore translation, got %v", got)
	}
}

func TestTRS(t *testing.T) {
	m := TRS(Vec3{1, 2, 3}, QuatIdentity(), Vec3{2, 2, 2})
	got := m.TransformVec3(Vec3{1, 1, 1})
	want := Vec3{3, 4, 5}
	if got != want {
		t.Errorf("TRS transform = %v, want %v", got, want)
	}
}

func TestNormalMatrix(t *testing.T) {
	tests := []struct {
		name   string
		m      Mat4
		normal Vec3
		want   Vec3
	}{
		{"identity", Identity(), Vec3{0, 1, 0}, Vec3{0, 1, 0}},
		// Non-uniform scale: a 45deg normal tilts toward the squashed axis.
		{"non-uniform scale", Scale(2, 1, 1), Vec3{1, 1, 0}.Normalize(), Vec3{1, 2, 0}.Normalize()},
		// Mirroring X keeps the normal pointing out of the mirrored surface.
		{"mirror", Scale(-1, 1, 1), Vec3{1, 0, 0}, Vec3{-1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.NormalMatrix().TransformDirection(tt.normal).Normalize()
			if got.Sub(tt.want).Length() > 1e-5 {
				t.Errorf("normal = %v, want %v", got, tt.want)
			}
		})
	}
}
