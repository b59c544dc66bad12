package math

// Quat is a rotation quaternion in glTF order: the vector part X, Y, Z
// followed by the scalar W.
type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity returns the rotation that leaves every vector unchanged.
func QuatIdentity() Quat {
	return Quat{W: 1}
}

// QuatFromArray reads a glTF node rotation.
func QuatFromArray(a [4]float32) Quat {
	return Quat{X: a[0], Y: a[1], Z: a[2], W: a[3]}
}

// Norm2 returns the squared length of q.
func (q Quat) Norm2() float32 {
	return q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
}

// ToMat4 returns the rotation matrix of q. q need not be unit length: the
// products are scaled by 2/|q|² instead. The zero quaternion maps to the
// identity.
func (q Quat) ToMat4() Mat4 {
	n := q.Norm2()
	if n == 0 {
		return Identity()
	}
	s := 2 / n
	x, y, z, w := q.X, q.Y, q.Z, q.W

	return Mat4{
		1 - s*(y*y+z*z), s * (x*y + w*z), s * (x*z - w*y), 0,
		s * (x*y - w*z), 1 - s*(x*x+z*z), s * (y*z + w*x), 0,
		s * (x*z + w*y), s * (y*z - w*x), 1 - s*(x*x+y*y), 0,
		0, 0, 0, 1,
	}
}
