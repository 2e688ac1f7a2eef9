package solver

import (
	"fmt"
	"math"

	"github.com/ayusman/kathakali/internal/detector"
	"github.com/ayusman/kathakali/internal/pose"
)

// solveEyes returns per-eye openness. Ratios are taken in 2D since lid depth
// is noisy and the gap is a screen-space quantity.
func solveEyes(pts detector.LandmarkFrame, cal EyeCalibration) (pose.Eyes, error) {
	left, err := eyeOpenness(pts, detector.LeftEye, cal)
	if err != nil {
		return pose.Eyes{}, err
	}
	right, err := eyeOpenness(pts, detector.RightEye, cal)
	if err != nil {
		return pose.Eyes{}, err
	}
	return pose.Eyes{Left: left, Right: right}, nil
}

func eyeOpenness(pts detector.LandmarkFrame, eye detector.EyeIndices, cal EyeCalibration) (float64, error) {
	width := dist2D(pts[eye.Outer], pts[eye.Inner])
	if width < epsilon {
		return 0, fmt.Errorf("%w: eye width is zero", ErrDegenerateGeometry)
	}

	var gap float64
	for i := range eye.Upper {
		gap += dist2D(pts[eye.Upper[i]], pts[eye.Lower[i]])
	}
	gap /= float64(len(eye.Upper))

	ratio := math.Max(0, math.Min(2, gap/width/cal.MaxRatio))
	return remap(ratio, cal.Low, cal.High), nil
}

// solveMouth decomposes lip opening and width into the five vowel shapes.
// Several shapes usually carry weight at once.
func solveMouth(pts detector.LandmarkFrame, cal MouthCalibration) (pose.Mouth, error) {
	innerDist := distance(pts[detector.LeftEye.Inner], pts[detector.RightEye.Inner])
	outerDist := distance(pts[detector.LeftEye.Outer], pts[detector.RightEye.Outer])
	if innerDist < epsilon || outerDist < epsilon {
		return pose.Mouth{}, fmt.Errorf("%w: eye corners coincide", ErrDegenerateGeometry)
	}

	open := distance(pts[detector.UpperInnerLip], pts[detector.LowerInnerLip])
	width := distance(pts[detector.MouthLeft], pts[detector.MouthRight])

	mouthX := (remap(width/outerDist, cal.WidthLow, cal.WidthHigh) - cal.WidthOffset) * 2
	mouthY := remap(open/innerDist, cal.OpenLow, cal.OpenHigh)

	wide := remap(mouthX, 0, 1)
	ratioI := pose.Clamp01(wide * 2 * remap(mouthY, 0.2, 0.7))

	m := pose.Mouth{
		A: mouthY*0.4 + mouthY*(1-ratioI)*0.6,
		E: mouthY * wide * (1 - ratioI) * 0.5,
		I: ratioI,
		O: (1 - ratioI) * remap(mouthY, 0.3, 1) * 0.4,
		U: mouthY * remap(1-ratioI, 0, 0.3) * 0.1,
	}
	return m.Clamp(), nil
}

// solvePupils averages both irises' offsets from their socket centers.
func solvePupils(pts detector.LandmarkFrame, gain float64) (pose.Gaze, error) {
	l, err := pupilOffset(pts, detector.LeftEye, gain)
	if err != nil {
		return pose.Gaze{}, err
	}
	r, err := pupilOffset(pts, detector.RightEye, gain)
	if err != nil {
		return pose.Gaze{}, err
	}
	return pose.Gaze{X: (l.X + r.X) / 2, Y: (l.Y + r.Y) / 2}.Clamp(), nil
}

// pupilOffset measures the iris center against the bounding box of the eye
// corners and lids. The vertical half-extent is floored at a tenth of the
// socket width so a nearly closed eye does not amplify noise.
func pupilOffset(pts detector.LandmarkFrame, eye detector.EyeIndices, gain float64) (pose.Gaze, error) {
	idx := []int{eye.Outer, eye.Inner}
	idx = append(idx, eye.Upper[:]...)
	idx = append(idx, eye.Lower[:]...)

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		p := pts[i]
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	halfW := (maxX - minX) / 2
	if halfW < epsilon {
		return pose.Gaze{}, fmt.Errorf("%w: eye socket has no width", ErrDegenerateGeometry)
	}
	halfH := math.Max((maxY-minY)/2, 0.2*halfW)

	iris := pts[eye.Iris]
	cx, cy := (minX+maxX)/2, (minY+maxY)/2

	return pose.Gaze{
		X: (cx - iris.X) / halfW * gain,
		Y: (cy - iris.Y) / halfH * gain,
	}.Clamp(), nil
}

func distance(a, b detector.Point3D) float64 {
	return math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y) + (a.Z-b.Z)*(a.Z-b.Z))
}
