package rig

import (
	"errors"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/num/quat"

	"github.com/ayusman/kathakali/internal/log"
	"github.com/ayusman/kathakali/internal/pose"
)

// Options tunes how pose signals are written to the rig.
type Options struct {
	// HeadBone receives the head rotation.
	HeadBone string `json:"head_bone"`
	// Dampener scales the head angles before they reach the bone.
	Dampener float64 `json:"dampener"`
	// RotationLerp is the slerp step taken toward the target each tick, in (0,1].
	RotationLerp float64 `json:"rotation_lerp"`
	// EyeRange is the eye bone rotation in radians at full gaze offset.
	EyeRange float64 `json:"eye_range"`
}

// DefaultOptions drives the neck with a 0.7 dampener and a 0.3 slerp step.
func DefaultOptions() Options {
	return Options{
		HeadBone:     BoneNeck,
		Dampener:     0.7,
		RotationLerp: 0.3,
		EyeRange:     0.3,
	}
}

// Validate checks the application parameters.
func (o Options) Validate() error {
	if o.HeadBone == "" {
		return errors.New("head bone is required")
	}
	if !(o.RotationLerp > 0 && o.RotationLerp <= 1) {
		return errors.New("rotation lerp outside (0,1]")
	}
	if o.Dampener < 0 {
		return errors.New("dampener must not be negative")
	}
	return nil
}

// Report lists what one Apply call wrote and which targets were absent.
type Report struct {
	Applied []string `json:"applied"`
	Missing []string `json:"missing,omitempty"`
}

// Applier writes a pose onto a Target once per render tick. It is not safe
// for concurrent use; the render cycle owns it.
type Applier struct {
	opts   Options
	logger *slog.Logger
	warned map[string]bool

	// written holds the channel groups this applier has driven since they
	// were last enabled.
	written pose.Channel
}

// NewApplier creates an applier.
func NewApplier(opts Options) *Applier {
	return &Applier{
		opts:   opts,
		logger: log.With("component", "rig"),
		warned: make(map[string]bool),
	}
}

// Options returns the applier's settings.
func (a *Applier) Options() Options {
	return a.opts
}

// SetOptions replaces the settings used from the next Apply on.
func (a *Applier) SetOptions(opts Options) {
	a.opts = opts
}

// Apply writes the channels of p that are both observed and enabled.
// Rotations step toward their targets by RotationLerp; weights are set
// directly after clamping. Missing bones and blendshapes are skipped and
// listed in the report. A group that was driven and is no longer enabled is
// put back at rest once.
func (a *Applier) Apply(t Target, p pose.Pose, enabled pose.Channel) Report {
	var r Report
	active := p.Channels & enabled

	if off := a.written &^ enabled; off != 0 {
		a.rest(t, off)
	}
	a.written = (a.written & enabled) | active

	if active.Has(pose.ChannelHead) {
		target := FromEuler(
			p.Head.Pitch*a.opts.Dampener,
			p.Head.Yaw*a.opts.Dampener,
			p.Head.Roll*a.opts.Dampener,
		)
		a.rotate(t, a.opts.HeadBone, target, &r)
	}

	if active.Has(pose.ChannelGaze) {
		g := p.Gaze.Clamp()
		target := FromEuler(g.Y*a.opts.EyeRange, g.X*a.opts.EyeRange, 0)
		a.rotate(t, BoneLeftEye, target, &r)
		a.rotate(t, BoneRightEye, target, &r)
	}

	if active.Has(pose.ChannelEyes) {
		e := p.Eyes.Clamp()
		a.weight(t, ShapeBlink, 1-e.Mean(), &r)
		a.weight(t, ShapeBlinkLeft, 1-e.Left, &r)
		a.weight(t, ShapeBlinkRight, 1-e.Right, &r)
	}

	if active.Has(pose.ChannelMouth) {
		m := p.Mouth.Clamp()
		a.weight(t, ShapeA, m.A, &r)
		a.weight(t, ShapeE, m.E, &r)
		a.weight(t, ShapeI, m.I, &r)
		a.weight(t, ShapeO, m.O, &r)
		a.weight(t, ShapeU, m.U, &r)
	}

	sort.Strings(r.Missing)
	return r
}

// Reset forgets which channel groups were driven, so a later disable does
// not touch the rig.
func (a *Applier) Reset() {
	a.written = 0
}

// channelTargets lists the bones and blendshapes driven by each channel group.
var channelTargets = []struct {
	channel pose.Channel
	bones   func(o Options) []string
	shapes  []string
}{
	{pose.ChannelHead, func(o Options) []string { return []string{o.HeadBone} }, nil},
	{pose.ChannelGaze, func(Options) []string { return []string{BoneLeftEye, BoneRightEye} }, nil},
	{pose.ChannelEyes, nil, []string{ShapeBlink, ShapeBlinkLeft, ShapeBlinkRight}},
	{pose.ChannelMouth, nil, []string{ShapeA, ShapeE, ShapeI, ShapeO, ShapeU}},
}

// rest returns the targets of the given channel groups to their rig defaults.
// Absent targets are skipped without a report entry.
func (a *Applier) rest(t Target, channels pose.Channel) {
	for _, ct := range channelTargets {
		if !channels.Has(ct.channel) {
			continue
		}
		if ct.bones != nil {
			for _, name := range ct.bones(a.opts) {
				if bone, ok := t.Bone(name); ok {
					bone.SetRotation(Identity)
				}
			}
		}
		for _, name := range ct.shapes {
			if shape, ok := t.Blendshape(name); ok {
				shape.SetWeight(0)
			}
		}
	}
}

func (a *Applier) rotate(t Target, name string, target quat.Number, r *Report) {
	bone, ok := t.Bone(name)
	if !ok {
		a.missing(name, r)
		return
	}
	bone.SetRotation(Slerp(bone.Rotation(), target, a.opts.RotationLerp))
	r.Applied = append(r.Applied, name)
}

func (a *Applier) weight(t Target, name string, w float64, r *Report) {
	shape, ok := t.Blendshape(name)
	if !ok {
		a.missing(name, r)
		return
	}
	shape.SetWeight(pose.Clamp01(w))
	r.Applied = append(r.Applied, name)
}

func (a *Applier) missing(name string, r *Report) {
	r.Missing = append(r.Missing, name)
	if !a.warned[name] {
		a.warned[name] = true
		a.logger.Debug("rig target missing, skipping", "name", name)
	}
}
