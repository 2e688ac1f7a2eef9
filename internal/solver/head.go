package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/kathakali/internal/detector"
	"github.com/ayusman/kathakali/internal/pose"
)

func vec(p detector.Point3D) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// solveHead estimates head orientation from the plane through the upper face
// corners and the jaw midpoint. The frame is normalized by inter-ocular
// distance first so the thresholds below do not depend on subject distance.
func solveHead(pts detector.LandmarkFrame) (pose.Rotation, error) {
	n := pts.Normalize()

	a := vec(n[detector.FaceTopLeft])
	b := vec(n[detector.FaceTopRight])
	c := r3.Scale(0.5, r3.Add(vec(n[detector.JawRight]), vec(n[detector.JawLeft])))

	return rollPitchYaw(a, b, c)
}

// rollPitchYaw derives angles from the orthonormal basis of triangle abc:
// X along ab, Z along the plane normal, Y completing the right-handed set.
func rollPitchYaw(a, b, c r3.Vec) (pose.Rotation, error) {
	qb := r3.Sub(b, a)
	qc := r3.Sub(c, a)
	normal := r3.Cross(qb, qc)

	if r3.Norm(qb) < epsilon || r3.Norm(normal) < epsilon {
		return pose.Rotation{}, fmt.Errorf("%w: face plane collapsed", ErrDegenerateGeometry)
	}

	unitZ := r3.Unit(normal)
	unitX := r3.Unit(qb)
	unitY := r3.Cross(unitZ, unitX)

	yaw := math.Asin(math.Max(-1, math.Min(1, unitZ.X)))
	pitch := -math.Atan2(-unitZ.Y, unitZ.Z)
	roll := -math.Atan2(-unitY.X, unitX.X)

	return pose.Rotation{
		Pitch: wrapAngle(pitch),
		Yaw:   wrapAngle(yaw),
		Roll:  wrapAngle(roll),
	}, nil
}
