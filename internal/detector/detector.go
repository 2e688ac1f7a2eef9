package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrMalformedResponse is returned when the detector produced output that
// cannot be interpreted as landmarks. It is distinct from "no face present",
// which is an empty result with a nil error.
var ErrMalformedResponse = errors.New("malformed detector response")

// Detector defines the interface for face landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected faces.
	// Returns an empty slice if no face is present.
	Detect(frame *gocv.Mat) ([]Face, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds options forwarded to the landmark model. The thresholds are
// not interpreted on this side of the process boundary.
type Config struct {
	// MaxFaces is the maximum number of faces to detect.
	MaxFaces int `json:"max_faces"`

	// MinDetectionConfidence is the minimum detection confidence (0.0-1.0).
	MinDetectionConfidence float64 `json:"min_detection_confidence"`

	// MinTrackingConfidence is the minimum tracking confidence (0.0-1.0).
	MinTrackingConfidence float64 `json:"min_tracking_confidence"`

	// RefineLandmarks requests the 478-point mesh with iris landmarks.
	RefineLandmarks bool `json:"refine_landmarks"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxFaces:               1,
		MinDetectionConfidence: 0.7,
		MinTrackingConfidence:  0.7,
		RefineLandmarks:        true,
	}
}

// Topology returns the landmark topology the configuration asks for.
func (c Config) Topology() Topology {
	if c.RefineLandmarks {
		return TopologyRefined
	}
	return TopologyBase
}
