// Package app wires the capture, detection, retargeting and output stages of
// kathakali together.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ayusman/kathakali/internal/bridge"
	"github.com/ayusman/kathakali/internal/capture"
	"github.com/ayusman/kathakali/internal/config"
	"github.com/ayusman/kathakali/internal/detector"
	"github.com/ayusman/kathakali/internal/log"
	"github.com/ayusman/kathakali/internal/pose"
	"github.com/ayusman/kathakali/internal/publish"
	"github.com/ayusman/kathakali/internal/retarget"
	"github.com/ayusman/kathakali/internal/rig"
	"github.com/ayusman/kathakali/internal/store"
)

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("app stopped")

// Config holds what the application is built from. Camera and Detector
// override the configured devices when set.
type Config struct {
	Config   config.Config
	Store    *store.Store
	Camera   capture.Camera
	Detector detector.Detector
}

// Status summarizes the running application.
type Status struct {
	Session   string         `json:"session"`
	Running   bool           `json:"running"`
	Enabled   bool           `json:"enabled"`
	Active    bool           `json:"active"`
	DetectFPS int            `json:"detect_fps"`
	Detector  string         `json:"detector"`
	Tracking  retarget.Stats `json:"tracking"`
}

// App orchestrates two independent cycles: detection (camera, gate,
// detector, tracker) and rendering (renderer, sinks). They share nothing but
// the published pose.
type App struct {
	cfg     config.Config
	store   *store.Store
	session string
	logger  *slog.Logger

	camera       capture.Camera
	motion       *capture.MotionDetector
	gate         *capture.ActivityGate
	detector     detector.Detector
	detectorName string

	holder   *pose.Holder
	tracker  *retarget.Tracker
	renderer *retarget.Renderer
	bridges  *bridge.Manager

	settings atomic.Pointer[retarget.Settings]
	enabled  atomic.Bool
	overlay  atomic.Bool
	preview  atomic.Pointer[previewFrame]

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
	mqtt    *publish.MQTTSink
	running []*bridge.Process
}

// New creates an App. Detection starts enabled; call Start to open the camera.
func New(c Config) (*App, error) {
	cfg := c.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		cfg:     cfg,
		store:   c.Store,
		session: uuid.New().String(),
		holder:  &pose.Holder{},
	}
	a.logger = log.With("component", "app", "session", a.session)

	a.camera = c.Camera
	if a.camera == nil {
		a.camera = capture.NewCamera(capture.Options{
			Device: cfg.Camera.Device,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.IdleFPS,
		})
	}

	a.detector = c.Detector
	a.detectorName = "custom"
	if a.detector == nil {
		if mp, err := detector.NewMediaPipeDetector(cfg.Detector); err == nil {
			a.detector = mp
			a.detectorName = "mediapipe"
			a.logger.Info("using MediaPipe face mesh")
		} else {
			a.detector = detector.NewMockDetector()
			a.detectorName = "mock"
			a.logger.Warn("MediaPipe not available, using mock detector", "error", err)
		}
	}

	a.motion = capture.NewMotionDetector(cfg.Camera.MotionThreshold)
	a.gate = capture.NewActivityGate(gateConfig(cfg.Camera), a.motion)

	settings := cfg.Tracking
	if a.store != nil {
		p, err := a.store.ActiveProfile()
		switch {
		case err == nil:
			settings = p.Settings
			a.logger.Info("applied active profile", "profile", p.Name)
		case !errors.Is(err, store.ErrNotFound):
			a.logger.Warn("failed to load active profile", "error", err)
		}
	}
	a.settings.Store(&settings)

	a.tracker = retarget.NewTracker(a.holder)
	a.renderer = retarget.NewRenderer(a.holder, rig.NewModel(cfg.Rig), settings.Rig)

	if cfg.Bridges.Enabled {
		dir, err := cfg.BridgeDir()
		if err != nil {
			return nil, err
		}
		a.bridges = bridge.NewManager(dir)
	}

	a.enabled.Store(true)
	a.overlay.Store(cfg.Preview.Overlay)
	return a, nil
}

func gateConfig(c config.CameraConfig) capture.GateConfig {
	return capture.GateConfig{
		IdleFPS:     c.IdleFPS,
		ActiveFPS:   c.ActiveFPS,
		IdleTimeout: c.IdleTimeout.Std(),
	}
}

// Session returns the ID of this run.
func (a *App) Session() string {
	return a.session
}

// Settings returns the current tracking settings snapshot.
func (a *App) Settings() retarget.Settings {
	return *a.settings.Load()
}

// SetSettings validates and installs new tracking settings. They take effect
// from the next detection frame and render tick.
func (a *App) SetSettings(s retarget.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	a.settings.Store(&s)
	return nil
}

// SetChannel turns one channel group on or off.
func (a *App) SetChannel(ch pose.Channel, on bool) {
	for {
		cur := a.settings.Load()
		s := *cur
		mask := s.Channels.Mask()
		if on {
			mask |= ch
		} else {
			mask &^= ch
		}
		s.Channels = retarget.FlagsOf(mask)
		if a.settings.CompareAndSwap(cur, &s) {
			return
		}
	}
}

// SetEnabled turns detection on or off. While off the last pose is held and
// rendering continues.
func (a *App) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) != enabled {
		a.logger.Info("detection toggled", "enabled", enabled)
	}
}

// Enabled reports whether detection is on.
func (a *App) Enabled() bool {
	return a.enabled.Load()
}

// SetOverlay turns the landmark overlay on the preview on or off.
func (a *App) SetOverlay(enabled bool) {
	a.overlay.Store(enabled)
}

// Overlay reports whether the landmark overlay is drawn.
func (a *App) Overlay() bool {
	return a.overlay.Load()
}

// Pose returns the latest published pose.
func (a *App) Pose() (pose.Pose, bool) {
	return a.holder.Load()
}

// RigFrame returns the latest rendered rig frame.
func (a *App) RigFrame() (rig.Frame, rig.Report, bool) {
	return a.renderer.Last()
}

// Stats returns the tracker counters.
func (a *App) Stats() retarget.Stats {
	return a.tracker.Stats()
}

// AddSink registers a rig-frame sink.
func (a *App) AddSink(s retarget.Sink) {
	a.renderer.AddSink(s)
}

// RemoveSink unregisters a sink by name.
func (a *App) RemoveSink(name string) {
	a.renderer.RemoveSink(name)
}

// Bridges returns the bridge manager, or nil when bridges are disabled.
func (a *App) Bridges() *bridge.Manager {
	return a.bridges
}

// Status returns a summary of the application state.
func (a *App) Status() Status {
	a.mu.Lock()
	running := a.stopCh != nil
	a.mu.Unlock()
	return Status{
		Session:   a.session,
		Running:   running,
		Enabled:   a.Enabled(),
		Active:    a.gate.Active(),
		DetectFPS: a.gate.FPS(),
		Detector:  a.detectorName,
		Tracking:  a.tracker.Stats(),
	}
}

// Start opens the camera, connects the configured outputs and starts both
// cycles. Output failures are logged and do not stop the pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrStopped
	}
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	a.camera.SetFPS(a.gate.FPS())

	a.startOutputs()

	a.stopCh = make(chan struct{})
	a.wg.Add(2)
	go a.runDetection(a.stopCh)
	go a.runRender(a.stopCh)

	a.logger.Info("pipeline started", "detector", a.detectorName)
	return nil
}

// Stop halts both cycles and releases the camera, detector and outputs.
// It also releases them when Start was never called or failed. An App cannot
// be started again after Stop.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}
	a.stopped = true
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
		a.wg.Wait()
		a.stopOutputs()
	}

	if err := a.camera.Close(); err != nil {
		a.logger.Warn("error closing camera", "error", err)
	}
	a.motion.Close()
	if err := a.detector.Close(); err != nil {
		a.logger.Warn("error closing detector", "error", err)
	}

	a.logger.Info("pipeline stopped")
}
