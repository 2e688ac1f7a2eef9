package rig

import "gonum.org/v1/gonum/num/quat"

// Bone is a handle to one rotatable joint of a rig.
type Bone interface {
	Rotation() quat.Number
	SetRotation(q quat.Number)
}

// Blendshape is a handle to one morph target weight.
type Blendshape interface {
	Weight() float64
	SetWeight(w float64)
}

// Target is the rig the applier writes into. Lookups report absence with
// false; an asset need not carry every canonical bone or blendshape.
type Target interface {
	Bone(name string) (Bone, bool)
	Blendshape(name string) (Blendshape, bool)
}
