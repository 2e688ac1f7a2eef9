// Package solver turns one frame of face landmarks into unsmoothed pose
// signals: head rotation, eyelid openness, mouth shapes and pupil offset.
//
// Solve is a pure function. It keeps no state between frames and never
// returns a signal containing NaN or Inf.
package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/kathakali/internal/detector"
	"github.com/ayusman/kathakali/internal/pose"
)

var (
	// ErrIncompleteLandmarks is returned when the point count does not match
	// the expected topology.
	ErrIncompleteLandmarks = errors.New("incomplete landmarks")

	// ErrDegenerateGeometry is returned when a reference distance collapses
	// below epsilon or a coordinate or result is not finite.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

// epsilon is the smallest reference length accepted, in units of the scaled frame.
const epsilon = 1e-6

// EyeCalibration controls the lid-gap to openness mapping.
type EyeCalibration struct {
	// MaxRatio is the lid gap / eye width ratio of a wide open eye.
	MaxRatio float64 `json:"max_ratio"`
	// Low and High bound the remap window applied to the calibrated ratio;
	// at or below Low the eye reads closed, at or above High it reads open.
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// MouthCalibration controls the lip distance to mouth-shape mapping.
type MouthCalibration struct {
	// WidthLow and WidthHigh bound mouth width / outer eye-corner distance.
	WidthLow  float64 `json:"width_low"`
	WidthHigh float64 `json:"width_high"`
	// WidthOffset is subtracted from the remapped width so a relaxed mouth reads narrow.
	WidthOffset float64 `json:"width_offset"`
	// OpenLow and OpenHigh bound lip gap / inner eye-corner distance.
	OpenLow  float64 `json:"open_low"`
	OpenHigh float64 `json:"open_high"`
}

// Options configures Solve.
type Options struct {
	// Topology is the landmark layout frames must match.
	Topology detector.Topology `json:"topology"`

	// Channels selects which signal groups are computed. Gaze is only
	// computed for refined frames even when requested.
	Channels pose.Channel `json:"-"`

	Eye   EyeCalibration   `json:"eye"`
	Mouth MouthCalibration `json:"mouth"`

	// GazeGain scales the socket-normalized iris offset before clamping.
	// The iris travels well short of the socket edge, so 1.0 reads small.
	GazeGain float64 `json:"gaze_gain"`
}

// DefaultOptions returns calibration tuned for a MediaPipe face mesh.
func DefaultOptions() Options {
	return Options{
		Topology: detector.TopologyAny,
		Channels: pose.AllChannels,
		Eye: EyeCalibration{
			MaxRatio: 0.285,
			Low:      0.35,
			High:     0.5,
		},
		Mouth: MouthCalibration{
			WidthLow:    0.45,
			WidthHigh:   0.9,
			WidthOffset: 0.3,
			OpenLow:     0.17,
			OpenHigh:    0.5,
		},
		GazeGain: 2.5,
	}
}

// Validate checks that the calibration can be applied.
func (o Options) Validate() error {
	if !o.Topology.Valid() {
		return fmt.Errorf("unknown topology %q", o.Topology)
	}
	if o.Eye.MaxRatio <= 0 {
		return errors.New("eye max ratio must be positive")
	}
	if o.Eye.High <= o.Eye.Low {
		return errors.New("eye remap window is empty")
	}
	if o.Mouth.WidthHigh <= o.Mouth.WidthLow || o.Mouth.OpenHigh <= o.Mouth.OpenLow {
		return errors.New("mouth remap window is empty")
	}
	if o.GazeGain <= 0 {
		return errors.New("gaze gain must be positive")
	}
	return nil
}

// Solve computes the raw pose signals for one landmark frame. width and
// height are the source image's pixel dimensions; the frame is scaled to
// pixels before any angle or ratio is taken so non-square images do not
// skew the result. Non-positive dimensions solve in normalized space.
func Solve(frame detector.LandmarkFrame, width, height int, opts Options) (pose.Raw, error) {
	if !opts.Topology.Accepts(len(frame)) {
		return pose.Raw{}, fmt.Errorf("%w: got %d points for %s topology",
			ErrIncompleteLandmarks, len(frame), opts.Topology)
	}
	for i, p := range frame {
		if !p.IsFinite() {
			return pose.Raw{}, fmt.Errorf("%w: landmark %d is not finite", ErrDegenerateGeometry, i)
		}
	}

	pts := frame.Scaled(width, height)
	if pts.InterOcular() < epsilon {
		return pose.Raw{}, fmt.Errorf("%w: inter-ocular distance is zero", ErrDegenerateGeometry)
	}

	var raw pose.Raw
	var err error

	if opts.Channels.Has(pose.ChannelHead) {
		if raw.Head, err = solveHead(pts); err != nil {
			return pose.Raw{}, err
		}
		raw.Channels |= pose.ChannelHead
	}

	if opts.Channels.Has(pose.ChannelEyes) {
		if raw.Eyes, err = solveEyes(pts, opts.Eye); err != nil {
			return pose.Raw{}, err
		}
		raw.Channels |= pose.ChannelEyes
	}

	if opts.Channels.Has(pose.ChannelMouth) {
		if raw.Mouth, err = solveMouth(pts, opts.Mouth); err != nil {
			return pose.Raw{}, err
		}
		raw.Channels |= pose.ChannelMouth
	}

	if opts.Channels.Has(pose.ChannelGaze) && pts.Refined() {
		if raw.Gaze, err = solvePupils(pts, opts.GazeGain); err != nil {
			return pose.Raw{}, err
		}
		raw.Channels |= pose.ChannelGaze
	}

	if !raw.IsFinite() {
		return pose.Raw{}, fmt.Errorf("%w: non-finite result", ErrDegenerateGeometry)
	}
	return raw, nil
}

// remap maps v from [lo,hi] onto [0,1], clamping outside the window.
func remap(v, lo, hi float64) float64 {
	return pose.Clamp01((v - lo) / (hi - lo))
}

// wrapAngle returns a in (-π, π].
func wrapAngle(a float64) float64 {
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func dist2D(a, b detector.Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
