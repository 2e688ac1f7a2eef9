// Package filter holds the temporal filters applied to solved pose signals:
// damped interpolation per channel, the blink stabilizer and the gaze filter.
package filter

import (
	"fmt"
	"math"

	"github.com/ayusman/kathakali/internal/pose"
)

// Smooth moves previous toward current by factor. A factor of 1 snaps to
// current; smaller factors damp more. For factor in (0,1] the result lies
// between previous and current.
func Smooth(previous, current, factor float64) float64 {
	return previous + factor*(current-previous)
}

// SmoothAngle is Smooth for angles in radians. It follows the shortest arc
// so a value near π never swings through zero to reach one near -π.
// The result is wrapped into (-π, π].
func SmoothAngle(previous, current, factor float64) float64 {
	return wrapAngle(previous + factor*wrapAngle(current-previous))
}

func wrapAngle(a float64) float64 {
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// Factors are the per-channel damping factors, each in (0,1].
type Factors struct {
	Head  float64 `json:"head"`
	Eyes  float64 `json:"eyes"`
	Mouth float64 `json:"mouth"`
	Gaze  float64 `json:"gaze"`
}

// DefaultFactors damps head rotation hardest and gaze the least after the
// blendshapes.
func DefaultFactors() Factors {
	return Factors{
		Head:  0.3,
		Eyes:  0.5,
		Mouth: 0.5,
		Gaze:  0.4,
	}
}

// Validate checks that every factor lies in (0,1].
func (f Factors) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"head", f.Head},
		{"eyes", f.Eyes},
		{"mouth", f.Mouth},
		{"gaze", f.Gaze},
	} {
		if !(c.v > 0 && c.v <= 1) {
			return fmt.Errorf("%s smoothing factor %v outside (0,1]", c.name, c.v)
		}
	}
	return nil
}

// SmoothRotation damps each axis independently along the shortest arc.
func SmoothRotation(previous, current pose.Rotation, factor float64) pose.Rotation {
	return pose.Rotation{
		Pitch: SmoothAngle(previous.Pitch, current.Pitch, factor),
		Yaw:   SmoothAngle(previous.Yaw, current.Yaw, factor),
		Roll:  SmoothAngle(previous.Roll, current.Roll, factor),
	}
}

// SmoothEyes damps both eyes and clamps the result to [0,1].
func SmoothEyes(previous, current pose.Eyes, factor float64) pose.Eyes {
	return pose.Eyes{
		Left:  Smooth(previous.Left, current.Left, factor),
		Right: Smooth(previous.Right, current.Right, factor),
	}.Clamp()
}

// SmoothMouth damps every shape weight and clamps the result to [0,1].
func SmoothMouth(previous, current pose.Mouth, factor float64) pose.Mouth {
	return pose.Mouth{
		A: Smooth(previous.A, current.A, factor),
		E: Smooth(previous.E, current.E, factor),
		I: Smooth(previous.I, current.I, factor),
		O: Smooth(previous.O, current.O, factor),
		U: Smooth(previous.U, current.U, factor),
	}.Clamp()
}
