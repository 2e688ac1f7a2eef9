package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion detection constants
const (
	// BlurSize is the Gaussian kernel applied before differencing.
	BlurSize = 21
	// PixelDelta is the per-pixel intensity change counted as motion.
	PixelDelta = 25
)

// MotionSource reports whether a frame differs enough from the previous one.
type MotionSource interface {
	Detect(frame *gocv.Mat) (bool, float64)
	Reset()
	Close()
}

// MotionDetector compares each frame with the previous one after grayscale
// conversion and blurring. It reuses its intermediate Mats across calls.
type MotionDetector struct {
	mu        sync.Mutex
	threshold float64
	prev      gocv.Mat
	gray      gocv.Mat
	blurred   gocv.Mat
	diff      gocv.Mat
	hasPrev   bool
}

// NewMotionDetector creates a detector. threshold is the percentage of
// pixels that must change, so 1.0 means 1%.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prev:      gocv.NewMat(),
		gray:      gocv.NewMat(),
		blurred:   gocv.NewMat(),
		diff:      gocv.NewMat(),
	}
}

// Detect reports motion and the percentage of changed pixels. The first frame
// after construction or Reset only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &m.gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&m.gray)
	}
	gocv.GaussianBlur(m.gray, &m.blurred, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)

	if !m.hasPrev || m.prev.Rows() != m.blurred.Rows() || m.prev.Cols() != m.blurred.Cols() {
		m.blurred.CopyTo(&m.prev)
		m.hasPrev = true
		return false, 0
	}

	gocv.AbsDiff(m.blurred, m.prev, &m.diff)
	gocv.Threshold(m.diff, &m.diff, PixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(m.diff)) / float64(m.diff.Rows()*m.diff.Cols()) * 100.0
	m.blurred.CopyTo(&m.prev)

	return changed > m.threshold, changed
}

// SetThreshold changes the motion threshold. Values <= 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Threshold returns the motion threshold.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// Reset drops the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasPrev = false
}

// Close releases the detector's Mats. It is safe to call more than once.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mat := range []*gocv.Mat{&m.prev, &m.gray, &m.blurred, &m.diff} {
		mat.Close()
		*mat = gocv.NewMat()
	}
	m.hasPrev = false
}

// GateConfig sets the detection cadence.
type GateConfig struct {
	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration
}

// ActivityGate switches detection between an idle and an active rate. Motion
// moves it to active; IdleTimeout without motion moves it back. Detection
// still runs while idle, only less often: a still face keeps its pose.
type ActivityGate struct {
	mu         sync.Mutex
	cfg        GateConfig
	motion     MotionSource
	active     bool
	lastMotion time.Time
	now        func() time.Time
}

// NewActivityGate creates a gate in idle mode.
func NewActivityGate(cfg GateConfig, motion MotionSource) *ActivityGate {
	return &ActivityGate{cfg: normalizeGate(cfg), motion: motion, now: time.Now}
}

// Observe feeds a frame through motion detection and reports whether the
// gate changed mode.
func (g *ActivityGate) Observe(frame *gocv.Mat) (changed bool) {
	moving := false
	if g.motion != nil {
		moving, _ = g.motion.Detect(frame)
	}
	return g.ObserveMotion(moving)
}

// ObserveMotion advances the state machine with an external motion verdict.
func (g *ActivityGate) ObserveMotion(moving bool) (changed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if moving {
		g.lastMotion = now
		if !g.active {
			g.active = true
			return true
		}
		return false
	}

	if g.active && now.Sub(g.lastMotion) > g.cfg.IdleTimeout {
		g.active = false
		return true
	}
	return false
}

// Active reports whether the gate is in active mode.
func (g *ActivityGate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// FPS returns the detection rate for the current mode.
func (g *ActivityGate) FPS() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return g.cfg.ActiveFPS
	}
	return g.cfg.IdleFPS
}

// Interval returns the time between detections for the current mode.
func (g *ActivityGate) Interval() time.Duration {
	return time.Second / time.Duration(g.FPS())
}

// SetConfig replaces the cadence settings.
func (g *ActivityGate) SetConfig(cfg GateConfig) {
	cfg = normalizeGate(cfg)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

func normalizeGate(cfg GateConfig) GateConfig {
	if cfg.IdleFPS <= 0 {
		cfg.IdleFPS = DefaultFPS
	}
	if cfg.ActiveFPS < cfg.IdleFPS {
		cfg.ActiveFPS = cfg.IdleFPS
	}
	return cfg
}

// Reset returns the gate to idle and clears the motion baseline.
func (g *ActivityGate) Reset() {
	g.mu.Lock()
	g.active = false
	g.lastMotion = time.Time{}
	g.mu.Unlock()
	if g.motion != nil {
		g.motion.Reset()
	}
}
