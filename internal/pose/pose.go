// Package pose defines the semantic pose signals produced from facial landmarks
// and the single-slot holder used to hand them from the detection cycle to the
// render cycle.
package pose

import (
	"math"
	"strings"
	"time"
)

// Channel identifies a group of pose signals that can be enabled, computed and
// applied independently.
type Channel uint8

const (
	ChannelHead Channel = 1 << iota
	ChannelEyes
	ChannelMouth
	ChannelGaze

	// AllChannels is the set of every channel group.
	AllChannels = ChannelHead | ChannelEyes | ChannelMouth | ChannelGaze
)

// Has reports whether every channel in c is set.
func (ch Channel) Has(c Channel) bool {
	return ch&c == c
}

// String returns a "|"-separated list of channel names.
func (ch Channel) String() string {
	if ch == 0 {
		return "none"
	}
	var names []string
	for _, c := range []struct {
		bit  Channel
		name string
	}{
		{ChannelHead, "head"},
		{ChannelEyes, "eyes"},
		{ChannelMouth, "mouth"},
		{ChannelGaze, "gaze"},
	} {
		if ch.Has(c.bit) {
			names = append(names, c.name)
		}
	}
	return strings.Join(names, "|")
}

// Rotation is a head orientation in radians. Angles are not clamped.
type Rotation struct {
	Pitch float64 `json:"pitch"` // nod, around X
	Yaw   float64 `json:"yaw"`   // turn, around Y
	Roll  float64 `json:"roll"`  // tilt, around Z
}

// Eyes holds per-eye openness in [0,1], 1 being fully open.
type Eyes struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Mouth holds the five mouth-shape weights, each in [0,1].
type Mouth struct {
	A float64 `json:"a"`
	E float64 `json:"e"`
	I float64 `json:"i"`
	O float64 `json:"o"`
	U float64 `json:"u"`
}

// Gaze is the normalized pupil offset within the eye socket, each axis in [-1,1].
// Positive X means the iris sits toward image left, positive Y means it sits up.
type Gaze struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Raw is the unsmoothed result of solving a single landmark frame.
type Raw struct {
	Head  Rotation `json:"head"`
	Eyes  Eyes     `json:"eyes"`
	Mouth Mouth    `json:"mouth"`
	Gaze  Gaze     `json:"gaze"`

	// Channels lists the signal groups that were computed for this frame.
	Channels Channel `json:"channels"`
}

// Pose is the smoothed, stabilized pose published to the render cycle.
type Pose struct {
	Head  Rotation `json:"head"`
	Eyes  Eyes     `json:"eyes"`
	Mouth Mouth    `json:"mouth"`
	Gaze  Gaze     `json:"gaze"`

	// Channels lists the signal groups that hold an observed value.
	Channels Channel `json:"channels"`

	// Seq increments with every published update.
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clamp01 restricts v to [0,1].
func Clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

// ClampUnit restricts v to [-1,1].
func ClampUnit(v float64) float64 {
	return clamp(v, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp returns the eyes with both values in [0,1].
func (e Eyes) Clamp() Eyes {
	return Eyes{Left: Clamp01(e.Left), Right: Clamp01(e.Right)}
}

// Mean returns the average openness of both eyes.
func (e Eyes) Mean() float64 {
	return (e.Left + e.Right) / 2
}

// Clamp returns the mouth with every weight in [0,1].
func (m Mouth) Clamp() Mouth {
	return Mouth{
		A: Clamp01(m.A),
		E: Clamp01(m.E),
		I: Clamp01(m.I),
		O: Clamp01(m.O),
		U: Clamp01(m.U),
	}
}

// Clamp returns the gaze with both axes in [-1,1].
func (g Gaze) Clamp() Gaze {
	return Gaze{X: ClampUnit(g.X), Y: ClampUnit(g.Y)}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IsFinite reports whether every signal is a finite number.
func (r Raw) IsFinite() bool {
	return finite(
		r.Head.Pitch, r.Head.Yaw, r.Head.Roll,
		r.Eyes.Left, r.Eyes.Right,
		r.Mouth.A, r.Mouth.E, r.Mouth.I, r.Mouth.O, r.Mouth.U,
		r.Gaze.X, r.Gaze.Y,
	)
}

// IsFinite reports whether every signal is a finite number.
func (p Pose) IsFinite() bool {
	return Raw{Head: p.Head, Eyes: p.Eyes, Mouth: p.Mouth, Gaze: p.Gaze}.IsFinite()
}
