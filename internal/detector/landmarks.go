// Package detector provides face landmark detection interfaces and types.
package detector

import (
	"fmt"
	"math"
)

// Face mesh topology sizes following the MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	NumLandmarks        = 468
	NumRefinedLandmarks = 478

	// IrisPoints is the number of points per iris in the refined topology:
	// the center followed by four ring points.
	IrisPoints = 5
)

// Face mesh indices used by the retargeting pipeline. "Left" and "Right" refer
// to the image, so LeftEye is the subject's right eye on a mirrored camera.
const (
	NoseTip = 1
	Chin    = 152

	FaceTopLeft  = 21
	FaceTopRight = 251
	JawRight     = 397
	JawLeft      = 172

	UpperInnerLip = 13
	LowerInnerLip = 14
	MouthLeft     = 61
	MouthRight    = 291

	LeftIrisCenter  = 468
	RightIrisCenter = LeftIrisCenter + IrisPoints
)

// EyeIndices lists the landmarks that outline one eye socket.
type EyeIndices struct {
	Outer int
	Inner int
	Upper [3]int // outer, middle, inner upper lid
	Lower [3]int // outer, middle, inner lower lid
	Iris  int    // iris center, refined topology only
}

var (
	// LeftEye is the image-left eye.
	LeftEye = EyeIndices{
		Outer: 130,
		Inner: 133,
		Upper: [3]int{160, 159, 158},
		Lower: [3]int{144, 145, 153},
		Iris:  LeftIrisCenter,
	}

	// RightEye is the image-right eye.
	RightEye = EyeIndices{
		Outer: 263,
		Inner: 362,
		Upper: [3]int{387, 386, 385},
		Lower: [3]int{373, 374, 380},
		Iris:  RightIrisCenter,
	}
)

// Topology selects which landmark counts a consumer accepts.
type Topology string

const (
	// TopologyAny accepts both the base and the refined mesh.
	TopologyAny Topology = "any"
	// TopologyBase accepts only the 468-point mesh.
	TopologyBase Topology = "base"
	// TopologyRefined accepts only the 478-point mesh with iris landmarks.
	TopologyRefined Topology = "refined"
)

// Accepts reports whether a frame of n points matches the topology.
func (t Topology) Accepts(n int) bool {
	switch t {
	case TopologyBase:
		return n == NumLandmarks
	case TopologyRefined:
		return n == NumRefinedLandmarks
	default:
		return n == NumLandmarks || n == NumRefinedLandmarks
	}
}

// Valid reports whether t is a known topology.
func (t Topology) Valid() bool {
	switch t {
	case TopologyAny, TopologyBase, TopologyRefined:
		return true
	}
	return false
}

// Point3D represents a landmark position. X and Y are normalized to the image
// (0..1), Z is depth relative to the face center in roughly the same scale as X.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsFinite reports whether all coordinates are finite.
func (p Point3D) IsFinite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LandmarkFrame is one detection's ordered landmark set.
type LandmarkFrame []Point3D

// Refined reports whether the frame carries iris landmarks.
func (f LandmarkFrame) Refined() bool {
	return len(f) == NumRefinedLandmarks
}

// Validate checks the frame against a topology and rejects non-finite points.
func (f LandmarkFrame) Validate(t Topology) error {
	if !t.Accepts(len(f)) {
		return fmt.Errorf("%d landmarks do not match %s topology", len(f), t)
	}
	for i, p := range f {
		if !p.IsFinite() {
			return fmt.Errorf("landmark %d is not finite", i)
		}
	}
	return nil
}

// Clone returns an independent copy of the frame.
func (f LandmarkFrame) Clone() LandmarkFrame {
	if f == nil {
		return nil
	}
	out := make(LandmarkFrame, len(f))
	copy(out, f)
	return out
}

// Scaled converts normalized coordinates to pixel space: X and Z by width,
// Y by height. Non-positive dimensions leave the frame unscaled.
func (f LandmarkFrame) Scaled(width, height int) LandmarkFrame {
	out := f.Clone()
	if width <= 0 || height <= 0 {
		return out
	}
	w, h := float64(width), float64(height)
	for i := range out {
		out[i].X *= w
		out[i].Y *= h
		out[i].Z *= w
	}
	return out
}

// InterOcular returns the distance between the outer eye corners.
func (f LandmarkFrame) InterOcular() float64 {
	if len(f) <= RightEye.Outer {
		return 0
	}
	return distance3D(f[LeftEye.Outer], f[RightEye.Outer])
}

// Normalize returns a copy of the frame centered on the midpoint between the
// outer eye corners and scaled so the inter-ocular distance is 1.0.
// A frame with zero inter-ocular distance is only translated.
func (f LandmarkFrame) Normalize() LandmarkFrame {
	if len(f) <= RightEye.Outer {
		return f.Clone()
	}

	l, r := f[LeftEye.Outer], f[RightEye.Outer]
	origin := Point3D{X: (l.X + r.X) / 2, Y: (l.Y + r.Y) / 2, Z: (l.Z + r.Z) / 2}

	out := make(LandmarkFrame, len(f))
	for i, p := range f {
		out[i] = Point3D{X: p.X - origin.X, Y: p.Y - origin.Y, Z: p.Z - origin.Z}
	}

	scale := distance3D(l, r)
	if scale < 1e-10 {
		return out
	}

	for i := range out {
		out[i].X /= scale
		out[i].Y /= scale
		out[i].Z /= scale
	}
	return out
}

// distance3D calculates the Euclidean distance between two 3D points.
func distance3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Face is one detected face.
type Face struct {
	Landmarks LandmarkFrame `json:"landmarks"`
	Score     float64       `json:"score"`
}
