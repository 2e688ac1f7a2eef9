// Package server provides the HTTP server for kathakali.
package server

import (
	"net/http"
	"time"

	"github.com/ayusman/kathakali/internal/retarget"
	"github.com/ayusman/kathakali/internal/server/api"
	"github.com/ayusman/kathakali/internal/store"
)

// Pipeline is what the server needs from the running application.
type Pipeline interface {
	api.Pipeline
	PreviewSource

	AddSink(s retarget.Sink)
	RemoveSink(name string)
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Pipeline  Pipeline
	// PreviewFPS caps the MJPEG stream rate. Zero means 15.
	PreviewFPS int
}

// Server represents the HTTP server for the kathakali application.
type Server struct {
	config Config
	mux    *http.ServeMux
	hub    *Hub
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if p := s.config.Pipeline; p != nil {
		h := api.NewPipelineHandler(p)
		s.mux.HandleFunc("/api/pose", h.Pose)
		s.mux.HandleFunc("/api/rig", h.Rig)
		s.mux.HandleFunc("/api/config", h.Config)
		s.mux.HandleFunc("/api/tracking", h.Tracking)

		s.hub = NewHub()
		p.AddSink(s.hub)
		s.mux.Handle("/api/rig/ws", s.hub)

		s.mux.Handle("/api/stream", NewStreamHandler(p, s.config.PreviewFPS))
	}

	if s.config.Store != nil {
		var p api.Pipeline
		if s.config.Pipeline != nil {
			p = s.config.Pipeline
		}
		profiles := api.NewProfileHandler(s.config.Store, p)
		s.mux.Handle("/api/profiles", profiles)
		s.mux.Handle("/api/profiles/", profiles)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Hub returns the rig-frame websocket hub, or nil without a pipeline.
func (s *Server) Hub() *Hub {
	return s.hub
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if p := s.config.Pipeline; p != nil {
		response["enabled"] = p.Enabled()
		response["tracking"] = p.Stats()
	}
	if s.hub != nil {
		response["clients"] = s.hub.Clients()
	}

	api.WriteJSON(w, http.StatusOK, response)
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// Close detaches the websocket hub from the pipeline and drops its clients.
func (s *Server) Close() {
	if s.hub == nil {
		return
	}
	s.config.Pipeline.RemoveSink(s.hub.Name())
	s.hub.Close()
}
