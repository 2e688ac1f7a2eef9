package detector

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	faces  []Face
	err    error
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFaces sets the faces that will be returned by Detect.
func (m *MockDetector) SetFaces(faces ...Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured faces or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.faces == nil {
		return nil, nil
	}
	out := make([]Face, len(m.faces))
	for i, f := range m.faces {
		out[i] = Face{Landmarks: f.Landmarks.Clone(), Score: f.Score}
	}
	return out, nil
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Fixture geometry in normalized image coordinates. The eye sockets are
// 0.04 wide and 0.02 tall, the mouth corners 0.08 apart.
const (
	fixtureEyeY       = 0.45
	fixtureLidHalfGap = 0.01
	fixtureEyeHalfW   = 0.02
	fixtureIrisRing   = 0.006
	fixtureLipY       = 0.555

	// MouthOpenTravel is how far the lower lip drops for WithMouthOpen(1).
	MouthOpenTravel = 0.06
)

// NeutralFace returns a synthetic frontal face: head level, eyes fully open,
// mouth closed and irises centered. With refined set the frame carries the
// 478-point topology.
func NeutralFace(refined bool) LandmarkFrame {
	n := NumLandmarks
	if refined {
		n = NumRefinedLandmarks
	}
	f := make(LandmarkFrame, n)

	// Filler points on an ellipse around the face center, never used by the solver.
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := range f {
		a := float64(i) * golden
		f[i] = Point3D{X: 0.5 + 0.15*math.Cos(a), Y: 0.5 + 0.2*math.Sin(a)}
	}

	f[FaceTopLeft] = Point3D{X: 0.40, Y: 0.38}
	f[FaceTopRight] = Point3D{X: 0.60, Y: 0.38}
	f[JawRight] = Point3D{X: 0.58, Y: 0.62}
	f[JawLeft] = Point3D{X: 0.42, Y: 0.62}
	f[NoseTip] = Point3D{X: 0.50, Y: 0.50, Z: -0.05}
	f[Chin] = Point3D{X: 0.50, Y: 0.66}

	placeEye(f, LeftEye, 0.45)
	placeEye(f, RightEye, 0.55)

	f[MouthLeft] = Point3D{X: 0.46, Y: 0.56}
	f[MouthRight] = Point3D{X: 0.54, Y: 0.56}
	f[UpperInnerLip] = Point3D{X: 0.50, Y: fixtureLipY}
	f[LowerInnerLip] = Point3D{X: 0.50, Y: fixtureLipY}

	return f
}

// placeEye lays out one socket centered on cx. The outer corner faces away
// from the face center.
func placeEye(f LandmarkFrame, eye EyeIndices, cx float64) {
	dir := 1.0
	if cx < 0.5 {
		dir = -1
	}
	f[eye.Outer] = Point3D{X: cx + dir*fixtureEyeHalfW, Y: fixtureEyeY}
	f[eye.Inner] = Point3D{X: cx - dir*fixtureEyeHalfW, Y: fixtureEyeY}
	for i := 0; i < 3; i++ {
		x := cx + dir*fixtureEyeHalfW/2*float64(1-i)
		f[eye.Upper[i]] = Point3D{X: x, Y: fixtureEyeY - fixtureLidHalfGap}
		f[eye.Lower[i]] = Point3D{X: x, Y: fixtureEyeY + fixtureLidHalfGap}
	}
	if len(f) == NumRefinedLandmarks {
		placeIris(f, eye.Iris, cx, fixtureEyeY)
	}
}

func placeIris(f LandmarkFrame, center int, x, y float64) {
	f[center] = Point3D{X: x, Y: y}
	f[center+1] = Point3D{X: x + fixtureIrisRing, Y: y}
	f[center+2] = Point3D{X: x, Y: y - fixtureIrisRing}
	f[center+3] = Point3D{X: x - fixtureIrisRing, Y: y}
	f[center+4] = Point3D{X: x, Y: y + fixtureIrisRing}
}

// WithEyesClosed returns a copy with both lids collapsed onto the corner line.
func WithEyesClosed(f LandmarkFrame) LandmarkFrame {
	return WithEyeClosed(WithEyeClosed(f, LeftEye), RightEye)
}

// WithEyeClosed returns a copy with one eye's lids collapsed onto the corner line.
func WithEyeClosed(f LandmarkFrame, eye EyeIndices) LandmarkFrame {
	out := f.Clone()
	y := (out[eye.Outer].Y + out[eye.Inner].Y) / 2
	for i := 0; i < 3; i++ {
		out[eye.Upper[i]].Y = y
		out[eye.Lower[i]].Y = y
	}
	return out
}

// WithMouthOpen returns a copy with the lower inner lip dropped by
// amount*MouthOpenTravel.
func WithMouthOpen(f LandmarkFrame, amount float64) LandmarkFrame {
	out := f.Clone()
	out[LowerInnerLip].Y += amount * MouthOpenTravel
	return out
}

// Turned returns a copy rotated by yaw radians about the vertical axis
// through the face center. X and Z share a scale, so the rotation survives
// conversion to pixel space.
func Turned(f LandmarkFrame, yaw float64) LandmarkFrame {
	out := f.Clone()
	s, c := math.Sin(yaw), math.Cos(yaw)
	for i, p := range out {
		dx := p.X - 0.5
		out[i].X = 0.5 + dx*c + p.Z*s
		out[i].Z = -dx*s + p.Z*c
	}
	return out
}

// LookingAt returns a refined copy with both irises displaced from the socket
// centers. x and y are in socket half-extents: x > 0 moves the irises toward
// image left, y > 0 moves them up. Base-topology frames are returned unchanged.
func LookingAt(f LandmarkFrame, x, y float64) LandmarkFrame {
	out := f.Clone()
	if !out.Refined() {
		return out
	}
	for _, eye := range []EyeIndices{LeftEye, RightEye} {
		cx := (out[eye.Outer].X + out[eye.Inner].X) / 2
		placeIris(out, eye.Iris, cx-x*fixtureEyeHalfW, fixtureEyeY-y*fixtureLidHalfGap)
	}
	return out
}
