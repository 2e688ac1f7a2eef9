package api

import (
	"net/http"

	"github.com/ayusman/kathakali/internal/pose"
	"github.com/ayusman/kathakali/internal/retarget"
	"github.com/ayusman/kathakali/internal/rig"
)

// Pipeline is the running retargeting pipeline as seen by the API.
type Pipeline interface {
	Pose() (pose.Pose, bool)
	RigFrame() (rig.Frame, rig.Report, bool)
	Stats() retarget.Stats

	Settings() retarget.Settings
	SetSettings(s retarget.Settings) error

	Enabled() bool
	SetEnabled(enabled bool)
	Overlay() bool
	SetOverlay(enabled bool)
}

// PipelineHandler serves the live pose, rig and tuning endpoints.
type PipelineHandler struct {
	pipeline Pipeline
}

// NewPipelineHandler creates a PipelineHandler for p.
func NewPipelineHandler(p Pipeline) *PipelineHandler {
	return &PipelineHandler{pipeline: p}
}

type rigResponse struct {
	Frame  rig.Frame  `json:"frame"`
	Report rig.Report `json:"report"`
}

type trackingState struct {
	Enabled  bool                  `json:"enabled"`
	Overlay  bool                  `json:"overlay"`
	Channels retarget.ChannelFlags `json:"channels"`
}

// Pose handles GET /api/pose.
func (h *PipelineHandler) Pose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	p, ok := h.pipeline.Pose()
	if !ok {
		WriteError(w, http.StatusNotFound, "No pose published yet")
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Rig handles GET /api/rig.
func (h *PipelineHandler) Rig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	frame, report, ok := h.pipeline.RigFrame()
	if !ok {
		WriteError(w, http.StatusNotFound, "No rig frame rendered yet")
		return
	}
	WriteJSON(w, http.StatusOK, rigResponse{Frame: frame, Report: report})
}

// Config handles GET and PUT /api/config. PUT bodies may be partial.
func (h *PipelineHandler) Config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, h.pipeline.Settings())
	case http.MethodPut:
		s := h.pipeline.Settings()
		if err := decodeOnto(w, r, &s); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.pipeline.SetSettings(s); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, h.pipeline.Settings())
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Tracking handles GET and POST /api/tracking: detection on/off, the
// landmark overlay and per-channel toggles.
func (h *PipelineHandler) Tracking(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, h.state())
	case http.MethodPost:
		state := h.state()
		if err := decodeOnto(w, r, &state); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		s := h.pipeline.Settings()
		s.Channels = state.Channels
		if err := h.pipeline.SetSettings(s); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.pipeline.SetEnabled(state.Enabled)
		h.pipeline.SetOverlay(state.Overlay)
		WriteJSON(w, http.StatusOK, h.state())
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *PipelineHandler) state() trackingState {
	return trackingState{
		Enabled:  h.pipeline.Enabled(),
		Overlay:  h.pipeline.Overlay(),
		Channels: h.pipeline.Settings().Channels,
	}
}
