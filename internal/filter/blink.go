package filter

import (
	"errors"
	"math"

	"github.com/ayusman/kathakali/internal/pose"
)

// BlinkOptions tunes StabilizeBlink.
type BlinkOptions struct {
	// YawGain is the openness bias added per radian of |yaw|.
	YawGain float64 `json:"yaw_gain"`
	// YawCap bounds the bias so a real blink still reads at large yaw.
	YawCap float64 `json:"yaw_cap"`

	// Symmetrize makes both eyes blink together unless one is clearly winking.
	Symmetrize bool `json:"symmetrize"`
	// WinkThreshold is the openness difference treated as a deliberate wink.
	WinkThreshold float64 `json:"wink_threshold"`
}

// DefaultBlinkOptions returns the stabilizer defaults.
func DefaultBlinkOptions() BlinkOptions {
	return BlinkOptions{
		YawGain:       0.6,
		YawCap:        0.35,
		Symmetrize:    true,
		WinkThreshold: 0.8,
	}
}

// Validate checks the bias parameters.
func (o BlinkOptions) Validate() error {
	if o.YawGain < 0 {
		return errors.New("blink yaw gain must not be negative")
	}
	if o.YawCap < 0 || o.YawCap > 1 {
		return errors.New("blink yaw cap outside [0,1]")
	}
	if o.WinkThreshold < 0 || o.WinkThreshold > 1 {
		return errors.New("wink threshold outside [0,1]")
	}
	return nil
}

// Wink pairing thresholds.
const (
	bothClosing = 0.3
	bothOpen    = 0.6
	followMin   = 0.95
)

// StabilizeBlink corrects eyelid openness for head yaw. The lids of a turned
// head foreshorten and read as closing, so openness is pulled toward open by
// min(YawCap, YawGain*|yaw|). The result is non-decreasing in |yaw| and never
// leaves [0,1].
func StabilizeBlink(eyes pose.Eyes, yaw float64, opts BlinkOptions) pose.Eyes {
	eyes = eyes.Clamp()

	if opts.Symmetrize {
		eyes = pairEyes(eyes, opts.WinkThreshold)
	}

	bias := math.Min(opts.YawCap, opts.YawGain*math.Abs(yaw))
	bias = pose.Clamp01(bias)

	return pose.Eyes{
		Left:  eyes.Left + bias*(1-eyes.Left),
		Right: eyes.Right + bias*(1-eyes.Right),
	}.Clamp()
}

// pairEyes moves both eyes to (almost) the more closed one, unless the gap
// between them is large enough to be a wink.
func pairEyes(eyes pose.Eyes, threshold float64) pose.Eyes {
	l, r := eyes.Left, eyes.Right
	diff := math.Abs(l - r)
	closing := l < bothClosing && r < bothClosing
	open := l > bothOpen && r > bothOpen

	if diff >= threshold && !closing && !open {
		return eyes
	}

	lo, hi := math.Min(l, r), math.Max(l, r)
	v := hi + (lo-hi)*followMin
	return pose.Eyes{Left: v, Right: v}
}
