package filter

import "github.com/ayusman/kathakali/internal/pose"

// GazeFilter damps the pupil offset with its own factor, separate from the
// head so quick eye movements are not dragged along with it.
type GazeFilter struct {
	Factor float64
}

// NewGazeFilter returns a filter with the given factor.
func NewGazeFilter(factor float64) GazeFilter {
	return GazeFilter{Factor: factor}
}

// Apply returns the next smoothed gaze, clamped to [-1,1].
func (g GazeFilter) Apply(previous, current pose.Gaze) pose.Gaze {
	return pose.Gaze{
		X: Smooth(previous.X, current.X, g.Factor),
		Y: Smooth(previous.Y, current.Y, g.Factor),
	}.Clamp()
}
