package app

import (
	"time"

	"github.com/ayusman/kathakali/internal/capture"
	"github.com/ayusman/kathakali/internal/detector"
)

// runDetection is the detection cycle. The activity gate only sets the
// cadence: frames are detected at the idle rate too, so a face that holds
// still keeps being tracked.
func (a *App) runDetection(stop <-chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.gate.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if !a.Enabled() {
			continue
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			a.logger.Debug("frame read failed", "error", err)
			continue
		}

		if a.gate.Observe(&frame.Mat) {
			a.camera.SetFPS(a.gate.FPS())
			ticker.Reset(a.gate.Interval())
			a.logger.Debug("detection cadence changed", "active", a.gate.Active(), "fps", a.gate.FPS())
		}

		a.processFrame(frame)
		frame.Close()
	}
}

// processFrame detects, tracks and refreshes the preview for one frame.
// Only the first face is tracked.
func (a *App) processFrame(frame *capture.Frame) {
	settings := a.Settings()

	faces, err := a.detector.Detect(&frame.Mat)
	var face *detector.Face
	switch {
	case err != nil:
		a.logger.Debug("detection failed", "error", err)
	case len(faces) == 0:
		a.tracker.NoFace()
	default:
		face = &faces[0]
		// Rejections are counted and logged by the tracker; the held pose stays.
		a.tracker.Update(face.Landmarks, frame.Width, frame.Height, settings)
	}

	a.updatePreview(frame, face)
}

// runRender is the render cycle. It ticks at the render rate whether or not
// detection produced anything new.
func (a *App) runRender(stop <-chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.Render.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.renderer.Tick(a.Settings())
		}
	}
}
