package app

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/kathakali/internal/capture"
	"github.com/ayusman/kathakali/internal/detector"
)

var (
	meshColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	irisColor = color.RGBA{R: 255, G: 255, B: 0, A: 0}
)

type previewFrame struct {
	jpeg []byte
	seq  uint64
}

// Preview returns the latest preview JPEG and its sequence number.
func (a *App) Preview() ([]byte, uint64, bool) {
	p := a.preview.Load()
	if p == nil {
		return nil, 0, false
	}
	return p.jpeg, p.seq, true
}

// updatePreview draws the overlay onto frame when enabled and stores it as
// the latest preview. Called only from the detection cycle.
func (a *App) updatePreview(frame *capture.Frame, face *detector.Face) {
	if face != nil && a.Overlay() {
		drawLandmarks(&frame.Mat, face.Landmarks)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame.Mat, []int{int(gocv.IMWriteJpegQuality), a.cfg.Preview.Quality})
	if err != nil {
		a.logger.Debug("preview encode failed", "error", err)
		return
	}
	defer buf.Close()

	var seq uint64 = 1
	if prev := a.preview.Load(); prev != nil {
		seq = prev.seq + 1
	}
	a.preview.Store(&previewFrame{
		jpeg: append([]byte(nil), buf.GetBytes()...),
		seq:  seq,
	})
}

// drawLandmarks plots every mesh point and marks both iris centers.
func drawLandmarks(mat *gocv.Mat, landmarks detector.LandmarkFrame) {
	w, h := float64(mat.Cols()), float64(mat.Rows())
	for i, p := range landmarks {
		pt := image.Pt(int(p.X*w), int(p.Y*h))
		switch i {
		case detector.LeftIrisCenter, detector.RightIrisCenter:
			gocv.Circle(mat, pt, 3, irisColor, -1)
		default:
			gocv.Circle(mat, pt, 1, meshColor, -1)
		}
	}
}
