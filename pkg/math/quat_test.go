package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q != (Quat{W: 1}) {
		t.Errorf("identity quaternion should be (0,0,0,1), got %v", q)
	}
	if !q.ToMat4().IsIdentity() {
		t.Errorf("identity quaternion should produce identity matrix, got %v", q.ToMat4())
	}
	if !(Quat{}).ToMat4().IsIdentity() {
		t.Error("zero quaternion should produce identity matrix")
	}
}

func TestQuatToMat4(t *testing.T) {
	half := float32(math.Sqrt(0.5))

	tests := []struct {
		name string
		q    Quat
		in   Vec3
		want Vec3
	}{
		{"90 about +Y", QuatFromArray([4]float32{0, half, 0, half}), Vec3{1, 0, 0}, Vec3{0, 0, -1}},
		{"90 about +Z", Quat{Z: half, W: half}, Vec3{1, 0, 0}, Vec3{0, 1, 0}},
		{"180 about +X", Quat{X: 1}, Vec3{0, 1, 0}, Vec3{0, -1, 0}},
		{"unnormalized", Quat{Y: 3, W: 3}, Vec3{1, 0, 0}, Vec3{0, 0, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.q.ToMat4().TransformDirection(tt.in)
			if got.Sub(tt.want).Length() > 1e-5 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuatNorm2(t *testing.T) {
	if got := (Quat{1, 2, 3, 4}).Norm2(); got != 30 {
		t.Errorf("Norm2() = %v, want 30", got)
	}
}
