// Package retarget runs the two halves of the pipeline: the Tracker turns
// detector frames into a published pose, and the Renderer applies the latest
// published pose to a rig once per tick.
package retarget

import (
	"fmt"

	"github.com/ayusman/kathakali/internal/filter"
	"github.com/ayusman/kathakali/internal/pose"
	"github.com/ayusman/kathakali/internal/rig"
	"github.com/ayusman/kathakali/internal/solver"
)

// ChannelFlags enables or disables each channel group.
type ChannelFlags struct {
	Head  bool `json:"head"`
	Eyes  bool `json:"eyes"`
	Mouth bool `json:"mouth"`
	Gaze  bool `json:"gaze"`
}

// AllChannels enables every group.
func AllChannels() ChannelFlags {
	return ChannelFlags{Head: true, Eyes: true, Mouth: true, Gaze: true}
}

// Mask returns the flags as a channel set.
func (c ChannelFlags) Mask() pose.Channel {
	var m pose.Channel
	if c.Head {
		m |= pose.ChannelHead
	}
	if c.Eyes {
		m |= pose.ChannelEyes
	}
	if c.Mouth {
		m |= pose.ChannelMouth
	}
	if c.Gaze {
		m |= pose.ChannelGaze
	}
	return m
}

// FlagsOf converts a channel set to flags.
func FlagsOf(m pose.Channel) ChannelFlags {
	return ChannelFlags{
		Head:  m.Has(pose.ChannelHead),
		Eyes:  m.Has(pose.ChannelEyes),
		Mouth: m.Has(pose.ChannelMouth),
		Gaze:  m.Has(pose.ChannelGaze),
	}
}

// Settings is the runtime-tunable part of the pipeline. A copy is passed into
// every Update and Tick, so changes apply from the next frame without
// touching in-flight state.
type Settings struct {
	Channels  ChannelFlags        `json:"channels"`
	Smoothing filter.Factors      `json:"smoothing"`
	Blink     filter.BlinkOptions `json:"blink"`
	Solver    solver.Options      `json:"solver"`
	Rig       rig.Options         `json:"rig"`
}

// DefaultSettings enables every channel with the default calibration.
func DefaultSettings() Settings {
	return Settings{
		Channels:  AllChannels(),
		Smoothing: filter.DefaultFactors(),
		Blink:     filter.DefaultBlinkOptions(),
		Solver:    solver.DefaultOptions(),
		Rig:       rig.DefaultOptions(),
	}
}

// Validate checks every section.
func (s Settings) Validate() error {
	if err := s.Smoothing.Validate(); err != nil {
		return fmt.Errorf("smoothing: %w", err)
	}
	if err := s.Blink.Validate(); err != nil {
		return fmt.Errorf("blink: %w", err)
	}
	if err := s.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := s.Rig.Validate(); err != nil {
		return fmt.Errorf("rig: %w", err)
	}
	return nil
}

// solverOptions returns the solver options restricted to the enabled channels.
func (s Settings) solverOptions() solver.Options {
	opts := s.Solver
	opts.Channels = s.Channels.Mask()
	return opts
}
