// Package rig maps stabilized pose signals onto an avatar's bones and
// blendshapes.
package rig

// Canonical bone names.
const (
	BoneNeck     = "Neck"
	BoneHead     = "Head"
	BoneLeftEye  = "LeftEye"
	BoneRightEye = "RightEye"
)

// Canonical blendshape names.
const (
	ShapeBlink      = "Blink"
	ShapeBlinkLeft  = "Blink_L"
	ShapeBlinkRight = "Blink_R"
	ShapeA          = "A"
	ShapeE          = "E"
	ShapeI          = "I"
	ShapeO          = "O"
	ShapeU          = "U"
)

// Bones lists every canonical bone.
var Bones = []string{BoneNeck, BoneHead, BoneLeftEye, BoneRightEye}

// Blendshapes lists every canonical blendshape.
var Blendshapes = []string{
	ShapeBlink, ShapeBlinkLeft, ShapeBlinkRight,
	ShapeA, ShapeE, ShapeI, ShapeO, ShapeU,
}

// IsBone reports whether name is a canonical bone name.
func IsBone(name string) bool {
	return contains(Bones, name)
}

// IsBlendshape reports whether name is a canonical blendshape name.
func IsBlendshape(name string) bool {
	return contains(Blendshapes, name)
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
