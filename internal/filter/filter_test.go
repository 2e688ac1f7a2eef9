package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/kathakali/internal/pose"
)

func TestSmooth(t *testing.T) {
	tests := []struct {
		name              string
		prev, cur, factor float64
		want              float64
	}{
		{"snap", 0.2, 0.9, 1, 0.9},
		{"half", 1, 0, 0.5, 0.5},
		{"quarter", 0, 1, 0.25, 0.25},
		{"equal", 0.7, 0.7, 0.3, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Smooth(tt.prev, tt.cur, tt.factor), 1e-12)
		})
	}
}

func TestSmooth_ConvergesWithoutOvershoot(t *testing.T) {
	for _, factor := range []float64{0.05, 0.3, 0.5, 0.99, 1} {
		for _, start := range []float64{-5, 0, 0.4, 12} {
			const target = 1.0
			v := start
			prevDist := math.Abs(target - v)
			for i := 0; i < 200; i++ {
				next := Smooth(v, target, factor)
				dist := math.Abs(target - next)
				require.LessOrEqual(t, dist, prevDist, "factor %v start %v step %d", factor, start, i)
				if start < target {
					require.LessOrEqual(t, next, target)
					require.GreaterOrEqual(t, next, v)
				} else {
					require.GreaterOrEqual(t, next, target)
					require.LessOrEqual(t, next, v)
				}
				v, prevDist = next, dist
			}
			assert.InDelta(t, target, v, 1e-3, "factor %v start %v", factor, start)
		}
	}
}

func TestSmoothAngle_ShortestArc(t *testing.T) {
	prev := math.Pi - 0.1
	cur := -math.Pi + 0.1

	got := SmoothAngle(prev, cur, 0.5)

	// Halfway along the short arc is exactly ±π, not zero.
	assert.InDelta(t, math.Pi, math.Abs(got), 1e-9)
	assert.Greater(t, got, -math.Pi)
	assert.LessOrEqual(t, got, math.Pi)

	got = SmoothAngle(prev, cur, 0.25)
	assert.InDelta(t, math.Pi-0.05, got, 1e-9)
}

func TestSmoothRotation(t *testing.T) {
	prev := pose.Rotation{Pitch: 0.2, Yaw: -0.4, Roll: 0}
	cur := pose.Rotation{Pitch: 0.4, Yaw: 0, Roll: -0.2}

	got := SmoothRotation(prev, cur, 0.5)

	assert.InDelta(t, 0.3, got.Pitch, 1e-12)
	assert.InDelta(t, -0.2, got.Yaw, 1e-12)
	assert.InDelta(t, -0.1, got.Roll, 1e-12)
}

func TestSmoothEyesAndMouth_Clamp(t *testing.T) {
	eyes := SmoothEyes(pose.Eyes{Left: 1, Right: 0}, pose.Eyes{Left: 3, Right: -2}, 1)
	assert.Equal(t, pose.Eyes{Left: 1, Right: 0}, eyes)

	mouth := SmoothMouth(pose.Mouth{}, pose.Mouth{A: 2, E: -1, I: 0.5}, 1)
	assert.Equal(t, pose.Mouth{A: 1, E: 0, I: 0.5}, mouth)
}

func TestFactors_Validate(t *testing.T) {
	require.NoError(t, DefaultFactors().Validate())

	for _, bad := range []Factors{
		{Head: 0, Eyes: 0.5, Mouth: 0.5, Gaze: 0.5},
		{Head: 0.3, Eyes: 1.5, Mouth: 0.5, Gaze: 0.5},
		{Head: 0.3, Eyes: 0.5, Mouth: -0.1, Gaze: 0.5},
		{Head: 0.3, Eyes: 0.5, Mouth: 0.5, Gaze: math.NaN()},
	} {
		assert.Error(t, bad.Validate(), "%+v", bad)
	}

	d := DefaultFactors()
	assert.Less(t, d.Head, d.Eyes, "head should damp harder than blendshapes")
	assert.Less(t, d.Head, d.Mouth)
}

func TestStabilizeBlink_YawMonotonic(t *testing.T) {
	opts := DefaultBlinkOptions()
	opts.Symmetrize = false

	for _, raw := range []float64{0, 0.1, 0.5, 0.9, 1} {
		prev := -1.0
		for i := 0; i <= 100; i++ {
			yaw := float64(i) * 0.03
			for _, sign := range []float64{1, -1} {
				got := StabilizeBlink(pose.Eyes{Left: raw, Right: raw}, sign*yaw, opts)
				require.GreaterOrEqual(t, got.Left, prev-1e-15, "raw %v yaw %v", raw, yaw)
				require.LessOrEqual(t, got.Left, 1.0)
				require.GreaterOrEqual(t, got.Left, raw)
				assert.Equal(t, got.Left, got.Right)
			}
			prev = StabilizeBlink(pose.Eyes{Left: raw, Right: raw}, yaw, opts).Left
		}
	}
}

func TestStabilizeBlink_Bias(t *testing.T) {
	opts := DefaultBlinkOptions()
	opts.Symmetrize = false

	t.Run("no yaw leaves openness", func(t *testing.T) {
		got := StabilizeBlink(pose.Eyes{Left: 0.2, Right: 0.7}, 0, opts)
		assert.InDelta(t, 0.2, got.Left, 1e-12)
		assert.InDelta(t, 0.7, got.Right, 1e-12)
	})

	t.Run("bias is capped", func(t *testing.T) {
		got := StabilizeBlink(pose.Eyes{}, 3, opts)
		assert.InDelta(t, opts.YawCap, got.Left, 1e-12)
	})

	t.Run("closed eye at moderate yaw still reads closed", func(t *testing.T) {
		got := StabilizeBlink(pose.Eyes{}, 0.3, opts)
		assert.Less(t, got.Left, 0.5)
	})

	t.Run("out of range input is clamped", func(t *testing.T) {
		got := StabilizeBlink(pose.Eyes{Left: 1.4, Right: -0.3}, 0.2, opts)
		assert.InDelta(t, 1, got.Left, 1e-12)
		assert.GreaterOrEqual(t, got.Right, 0.0)
	})
}

func TestStabilizeBlink_Symmetrize(t *testing.T) {
	opts := DefaultBlinkOptions()

	t.Run("wink is preserved", func(t *testing.T) {
		got := StabilizeBlink(pose.Eyes{Left: 0.05, Right: 0.95}, 0, opts)
		assert.InDelta(t, 0.05, got.Left, 1e-12)
		assert.InDelta(t, 0.95, got.Right, 1e-12)
	})

	t.Run("uneven blink follows the closed eye", func(t *testing.T) {
		got := StabilizeBlink(pose.Eyes{Left: 0.2, Right: 0.6}, 0, opts)
		assert.InDelta(t, got.Left, got.Right, 1e-12)
		assert.InDelta(t, 0.22, got.Left, 1e-9)
	})

	t.Run("equal eyes are unchanged", func(t *testing.T) {
		got := StabilizeBlink(pose.Eyes{Left: 0.5, Right: 0.5}, 0, opts)
		assert.InDelta(t, 0.5, got.Left, 1e-12)
		assert.InDelta(t, 0.5, got.Right, 1e-12)
	})
}

func TestBlinkOptions_Validate(t *testing.T) {
	require.NoError(t, DefaultBlinkOptions().Validate())
	assert.Error(t, BlinkOptions{YawGain: -1}.Validate())
	assert.Error(t, BlinkOptions{YawCap: 1.5}.Validate())
	assert.Error(t, BlinkOptions{WinkThreshold: 2}.Validate())
}

func TestGazeFilter(t *testing.T) {
	g := NewGazeFilter(0.4)

	got := g.Apply(pose.Gaze{}, pose.Gaze{X: 1, Y: -0.5})
	assert.InDelta(t, 0.4, got.X, 1e-12)
	assert.InDelta(t, -0.2, got.Y, 1e-12)

	got = NewGazeFilter(1).Apply(pose.Gaze{}, pose.Gaze{X: 3, Y: -3})
	assert.Equal(t, pose.Gaze{X: 1, Y: -1}, got)

	// Independent of the head factor: converges at its own rate.
	v := pose.Gaze{}
	for i := 0; i < 50; i++ {
		v = g.Apply(v, pose.Gaze{X: 0.8})
	}
	assert.InDelta(t, 0.8, v.X, 1e-6)
}
