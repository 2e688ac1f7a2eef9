package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ayusman/kathakali/internal/pose"
	"github.com/ayusman/kathakali/internal/retarget"
	"github.com/ayusman/kathakali/internal/rig"
	"github.com/ayusman/kathakali/internal/store"
)

type fakePipeline struct {
	mu       sync.Mutex
	pose     *pose.Pose
	frame    *rig.Frame
	settings retarget.Settings
	enabled  bool
	overlay  bool
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{settings: retarget.DefaultSettings(), enabled: true}
}

func (f *fakePipeline) Pose() (pose.Pose, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pose == nil {
		return pose.Pose{}, false
	}
	return *f.pose, true
}

func (f *fakePipeline) RigFrame() (rig.Frame, rig.Report, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frame == nil {
		return rig.Frame{}, rig.Report{}, false
	}
	return *f.frame, rig.Report{Applied: []string{rig.BoneNeck}, Missing: []string{"Blink_L"}}, true
}

func (f *fakePipeline) Stats() retarget.Stats { return retarget.Stats{} }

func (f *fakePipeline) Settings() retarget.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakePipeline) SetSettings(s retarget.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = s
	return nil
}

func (f *fakePipeline) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakePipeline) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *fakePipeline) Overlay() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlay
}

func (f *fakePipeline) SetOverlay(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overlay = enabled
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func do(t *testing.T, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestPipelineHandler_Pose(t *testing.T) {
	p := newFakePipeline()
	h := NewPipelineHandler(p)

	rec := do(t, h.Pose, http.MethodGet, "/api/pose", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before first pose, got %d", rec.Code)
	}

	p.pose = &pose.Pose{Eyes: pose.Eyes{Left: 1, Right: 0.5}, Seq: 4, Channels: pose.AllChannels}
	rec = do(t, h.Pose, http.MethodGet, "/api/pose", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got pose.Pose
	decode(t, rec, &got)
	if got.Seq != 4 || got.Eyes.Right != 0.5 {
		t.Errorf("unexpected pose %+v", got)
	}

	rec = do(t, h.Pose, http.MethodPost, "/api/pose", "{}")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestPipelineHandler_Rig(t *testing.T) {
	p := newFakePipeline()
	h := NewPipelineHandler(p)

	if rec := do(t, h.Rig, http.MethodGet, "/api/rig", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before first frame, got %d", rec.Code)
	}

	p.frame = &rig.Frame{Asset: "default", Seq: 2, Blendshapes: map[string]float64{rig.ShapeA: 0.3}}
	rec := do(t, h.Rig, http.MethodGet, "/api/rig", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got rigResponse
	decode(t, rec, &got)
	if got.Frame.Blendshapes[rig.ShapeA] != 0.3 {
		t.Errorf("unexpected frame %+v", got.Frame)
	}
	if len(got.Report.Missing) != 1 || got.Report.Missing[0] != "Blink_L" {
		t.Errorf("unexpected report %+v", got.Report)
	}
}

func TestPipelineHandler_Config(t *testing.T) {
	p := newFakePipeline()
	h := NewPipelineHandler(p)

	rec := do(t, h.Config, http.MethodGet, "/api/config", "")
	var got retarget.Settings
	decode(t, rec, &got)
	if got.Smoothing != retarget.DefaultSettings().Smoothing {
		t.Errorf("GET returned %+v", got.Smoothing)
	}

	rec = do(t, h.Config, http.MethodPut, "/api/config", `{"smoothing":{"head":0.9}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	s := p.Settings()
	if s.Smoothing.Head != 0.9 {
		t.Errorf("head factor = %v, want 0.9", s.Smoothing.Head)
	}
	if s.Smoothing.Eyes != retarget.DefaultSettings().Smoothing.Eyes {
		t.Error("partial PUT should keep other factors")
	}

	tests := []struct {
		name string
		body string
	}{
		{"invalid factor", `{"smoothing":{"eyes":0}}`},
		{"unknown field", `{"speed":3}`},
		{"malformed", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h.Config, http.MethodPut, "/api/config", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			var e errorResponse
			decode(t, rec, &e)
			if e.Error == "" {
				t.Error("expected error message")
			}
		})
	}
	if p.Settings().Smoothing.Head != 0.9 {
		t.Error("rejected PUT must not change settings")
	}
}

func TestPipelineHandler_Tracking(t *testing.T) {
	p := newFakePipeline()
	h := NewPipelineHandler(p)

	rec := do(t, h.Tracking, http.MethodGet, "/api/tracking", "")
	var state trackingState
	decode(t, rec, &state)
	if !state.Enabled || state.Overlay || state.Channels != retarget.AllChannels() {
		t.Errorf("unexpected initial state %+v", state)
	}

	rec = do(t, h.Tracking, http.MethodPost, "/api/tracking", `{"enabled":false,"channels":{"mouth":false}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST expected 200, got %d", rec.Code)
	}
	decode(t, rec, &state)
	if state.Enabled {
		t.Error("detection should be disabled")
	}
	want := retarget.AllChannels()
	want.Mouth = false
	if state.Channels != want {
		t.Errorf("channels = %+v, want %+v", state.Channels, want)
	}
	if p.Settings().Channels != want {
		t.Error("channels not applied to pipeline settings")
	}

	rec = do(t, h.Tracking, http.MethodPost, "/api/tracking", `{"overlay":true}`)
	decode(t, rec, &state)
	if !state.Overlay || state.Enabled {
		t.Errorf("overlay toggle changed other fields: %+v", state)
	}

	if rec := do(t, h.Tracking, http.MethodDelete, "/api/tracking", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestProfileHandler_Workflow(t *testing.T) {
	s := newTestStore(t)
	p := newFakePipeline()
	h := NewProfileHandler(s, p)

	rec := do(t, h.ServeHTTP, http.MethodPost, "/api/profiles", `{"name":"stage","settings":{"smoothing":{"mouth":0.2}}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created profileResponse
	decode(t, rec, &created)
	if created.ID == "" || created.Name != "stage" || created.Active {
		t.Fatalf("unexpected created profile %+v", created)
	}
	if created.Settings.Smoothing.Mouth != 0.2 {
		t.Errorf("mouth factor = %v, want 0.2", created.Settings.Smoothing.Mouth)
	}

	rec = do(t, h.ServeHTTP, http.MethodPost, "/api/profiles", `{"name":"stage"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate expected 409, got %d", rec.Code)
	}
	rec = do(t, h.ServeHTTP, http.MethodPost, "/api/profiles", `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name expected 400, got %d", rec.Code)
	}

	rec = do(t, h.ServeHTTP, http.MethodGet, "/api/profiles", "")
	var list listProfilesResponse
	decode(t, rec, &list)
	if len(list.Profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(list.Profiles))
	}

	rec = do(t, h.ServeHTTP, http.MethodPost, "/api/profiles/"+created.ID+"/activate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("activate expected 200, got %d", rec.Code)
	}
	if p.Settings().Smoothing.Mouth != 0.2 {
		t.Error("activation should apply the profile settings")
	}

	rec = do(t, h.ServeHTTP, http.MethodPut, "/api/profiles/"+created.ID, `{"settings":{"smoothing":{"mouth":0.6}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update expected 200, got %d", rec.Code)
	}
	var updated profileResponse
	decode(t, rec, &updated)
	if !updated.Active || updated.Name != "stage" {
		t.Errorf("unexpected updated profile %+v", updated)
	}
	if p.Settings().Smoothing.Mouth != 0.6 {
		t.Error("updating the active profile should apply it")
	}

	rec = do(t, h.ServeHTTP, http.MethodDelete, "/api/profiles/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete expected 204, got %d", rec.Code)
	}
	if _, err := s.Settings().Get(store.KeyActiveProfile); err == nil {
		t.Error("deleting the active profile should clear active_profile")
	}
	rec = do(t, h.ServeHTTP, http.MethodGet, "/api/profiles/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete expected 404, got %d", rec.Code)
	}
}

func TestProfileHandler_CreateUsesPipelineSettings(t *testing.T) {
	s := newTestStore(t)
	p := newFakePipeline()
	p.settings.Channels.Gaze = false
	h := NewProfileHandler(s, p)

	rec := do(t, h.ServeHTTP, http.MethodPost, "/api/profiles", `{"name":"current"}`)
	var created profileResponse
	decode(t, rec, &created)
	if created.Settings.Channels.Gaze {
		t.Error("profile should capture the running settings")
	}
}

func TestProfileHandler_Errors(t *testing.T) {
	h := NewProfileHandler(newTestStore(t), nil)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"missing profile", http.MethodGet, "/api/profiles/nope", http.StatusNotFound},
		{"activate missing", http.MethodPost, "/api/profiles/nope/activate", http.StatusNotFound},
		{"activate wrong method", http.MethodGet, "/api/profiles/nope/activate", http.StatusMethodNotAllowed},
		{"unknown action", http.MethodPost, "/api/profiles/nope/rename", http.StatusNotFound},
		{"collection method", http.MethodDelete, "/api/profiles", http.StatusMethodNotAllowed},
		{"delete missing", http.MethodDelete, "/api/profiles/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h.ServeHTTP, tt.method, tt.target, "")
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
