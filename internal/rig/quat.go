package rig

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Identity is the rotation that leaves a bone at rest.
var Identity = quat.Number{Real: 1}

// FromEuler builds a rotation from XYZ-ordered Euler angles in radians.
func FromEuler(x, y, z float64) quat.Number {
	qx := quat.Number{Real: math.Cos(x / 2), Imag: math.Sin(x / 2)}
	qy := quat.Number{Real: math.Cos(y / 2), Jmag: math.Sin(y / 2)}
	qz := quat.Number{Real: math.Cos(z / 2), Kmag: math.Sin(z / 2)}
	return quat.Mul(quat.Mul(qx, qy), qz)
}

// Slerp interpolates from a to b by t along the shorter great arc.
func Slerp(a, b quat.Number, t float64) quat.Number {
	d := dot(a, b)
	if d < 0 {
		b = quat.Scale(-1, b)
		d = -d
	}

	// Nearly parallel; sin(theta) is too small to divide by.
	if d > 0.9995 {
		return normalize(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}

	theta := math.Acos(d)
	s := math.Sin(theta)
	return normalize(quat.Add(
		quat.Scale(math.Sin((1-t)*theta)/s, a),
		quat.Scale(math.Sin(t*theta)/s, b),
	))
}

// Angle returns the rotation angle between a and b in radians.
func Angle(a, b quat.Number) float64 {
	d := math.Abs(dot(normalize(a), normalize(b)))
	return 2 * math.Acos(math.Min(1, d))
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Quat is the wire form of a rotation.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// QuatOf converts a quaternion to its wire form.
func QuatOf(q quat.Number) Quat {
	return Quat{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// Number converts the wire form back to a quaternion.
func (q Quat) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}
