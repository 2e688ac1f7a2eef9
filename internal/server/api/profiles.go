package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/kathakali/internal/retarget"
	"github.com/ayusman/kathakali/internal/store"
)

// ProfileHandler handles HTTP requests for tuning profiles.
type ProfileHandler struct {
	store    *store.Store
	pipeline Pipeline
}

// NewProfileHandler creates a ProfileHandler. p may be nil, in which case new
// profiles start from the default settings and activation only records the
// choice.
func NewProfileHandler(s *store.Store, p Pipeline) *ProfileHandler {
	return &ProfileHandler{store: s, pipeline: p}
}

// ServeHTTP routes /api/profiles, /api/profiles/{id} and
// /api/profiles/{id}/activate.
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/profiles")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	id, action, _ := strings.Cut(path, "/")
	switch action {
	case "":
	case "activate":
		if r.Method != http.MethodPost {
			WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.activate(w, r, id)
		return
	default:
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type profileRequest struct {
	Name     string            `json:"name"`
	Settings retarget.Settings `json:"settings"`
}

type profileResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Settings  retarget.Settings `json:"settings"`
	Active    bool              `json:"active"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

type listProfilesResponse struct {
	Profiles []profileResponse `json:"profiles"`
}

func toResponse(p *store.Profile, activeID string) profileResponse {
	return profileResponse{
		ID:        p.ID,
		Name:      p.Name,
		Settings:  p.Settings,
		Active:    p.ID == activeID,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *ProfileHandler) activeID() string {
	id, err := h.store.Settings().Get(store.KeyActiveProfile)
	if err != nil {
		return ""
	}
	return id
}

// storeError maps store errors to HTTP responses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, store.ErrDuplicate):
		WriteError(w, http.StatusConflict, "Profile name already exists")
	case errors.Is(err, store.ErrInvalidProfile):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "Profile storage failed")
	}
}

func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.Profiles().List()
	if err != nil {
		storeError(w, err)
		return
	}
	active := h.activeID()
	resp := listProfilesResponse{Profiles: make([]profileResponse, 0, len(profiles))}
	for _, p := range profiles {
		resp.Profiles = append(resp.Profiles, toResponse(p, active))
	}
	WriteJSON(w, http.StatusOK, resp)
}

// create handles POST /api/profiles. Settings omitted from the body are
// taken from the running pipeline.
func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	req := profileRequest{Settings: retarget.DefaultSettings()}
	if h.pipeline != nil {
		req.Settings = h.pipeline.Settings()
	}
	if err := decodeOnto(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := &store.Profile{Name: req.Name, Settings: req.Settings}
	if err := h.store.Profiles().Create(p); err != nil {
		storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toResponse(p, h.activeID()))
}

func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toResponse(p, h.activeID()))
}

// update handles PUT /api/profiles/{id}. The body overlays the stored
// profile. Updating the active profile applies it to the pipeline.
func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		storeError(w, err)
		return
	}
	req := profileRequest{Name: p.Name, Settings: p.Settings}
	if err := decodeOnto(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.Name = req.Name
	p.Settings = req.Settings
	if err := h.store.Profiles().Update(p); err != nil {
		storeError(w, err)
		return
	}

	active := h.activeID()
	if active == p.ID && h.pipeline != nil {
		if err := h.pipeline.SetSettings(p.Settings); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	WriteJSON(w, http.StatusOK, toResponse(p, active))
}

func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Profiles().Delete(id); err != nil {
		storeError(w, err)
		return
	}
	if h.activeID() == id {
		h.store.Settings().Delete(store.KeyActiveProfile)
	}
	w.WriteHeader(http.StatusNoContent)
}

// activate handles POST /api/profiles/{id}/activate.
func (h *ProfileHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		storeError(w, err)
		return
	}
	if h.pipeline != nil {
		if err := h.pipeline.SetSettings(p.Settings); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := h.store.SetActiveProfile(p.ID); err != nil {
		storeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toResponse(p, p.ID))
}
