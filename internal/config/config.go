// Package config loads the kathakali configuration file.
//
// A configuration file is JSON. Any field it omits keeps its default, so a
// file holding only {"tracking":{"smoothing":{"head":0.2}}} is valid.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/kathakali/internal/detector"
	"github.com/ayusman/kathakali/internal/retarget"
	"github.com/ayusman/kathakali/internal/rig"
)

// maxFileSize bounds configuration files.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Duration is a time.Duration written as a string such as "2s" or "150ms".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// CameraConfig configures capture and the activity gate.
type CameraConfig struct {
	Device int `json:"device"`
	Width  int `json:"width"`
	Height int `json:"height"`

	// IdleFPS is the detection rate while nothing moves in front of the camera.
	IdleFPS int `json:"idle_fps"`
	// ActiveFPS is the detection rate once motion is seen.
	ActiveFPS int `json:"active_fps"`
	// MotionThreshold is the percentage of pixels that must change to count as motion.
	MotionThreshold float64 `json:"motion_threshold"`
	// IdleTimeout is how long without motion before dropping to IdleFPS.
	IdleTimeout Duration `json:"idle_timeout"`
}

// RenderConfig configures the render cycle.
type RenderConfig struct {
	FPS int `json:"fps"`
}

// StoreConfig configures the profile database.
type StoreConfig struct {
	// Path is the SQLite file. Empty means ~/.kathakali/kathakali.db.
	Path string `json:"path"`
}

// MQTTConfig configures the MQTT rig-frame publisher.
type MQTTConfig struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	// MinInterval drops frames arriving sooner than this after the last publish.
	MinInterval Duration `json:"min_interval"`
}

// BridgeConfig configures out-of-process renderer bridges.
type BridgeConfig struct {
	Enabled bool `json:"enabled"`
	// Dir is scanned for bridge manifests. Empty means ~/.kathakali/bridges.
	Dir string `json:"dir"`
}

// PreviewConfig configures the MJPEG preview stream.
type PreviewConfig struct {
	// Overlay draws the landmark mesh and iris centers onto preview frames.
	Overlay bool `json:"overlay"`
	Quality int  `json:"quality"`
}

// Config is the complete configuration.
type Config struct {
	LogLevel string `json:"log_level"`

	Server   ServerConfig      `json:"server"`
	Camera   CameraConfig      `json:"camera"`
	Detector detector.Config   `json:"detector"`
	Render   RenderConfig      `json:"render"`
	Tracking retarget.Settings `json:"tracking"`
	Rig      rig.Asset         `json:"rig"`
	Store    StoreConfig       `json:"store"`
	MQTT     MQTTConfig        `json:"mqtt"`
	Bridges  BridgeConfig      `json:"bridges"`
	Preview  PreviewConfig     `json:"preview"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server:   ServerConfig{Addr: ":8080"},
		Camera: CameraConfig{
			Device:          0,
			Width:           640,
			Height:          480,
			IdleFPS:         5,
			ActiveFPS:       30,
			MotionThreshold: 1.0,
			IdleTimeout:     Duration(2 * time.Second),
		},
		Detector: detector.DefaultConfig(),
		Render:   RenderConfig{FPS: 60},
		Tracking: retarget.DefaultSettings(),
		Rig:      rig.DefaultAsset(),
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "kathakali",
			Topic:       "kathakali/rig",
			MinInterval: Duration(33 * time.Millisecond),
		},
		Preview: PreviewConfig{Overlay: true, Quality: 80},
	}
}

// Load reads a configuration file and overlays it onto Default.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Parse overlays JSON data onto Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera size %dx%d must be positive", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.IdleFPS <= 0 || c.Camera.ActiveFPS < c.Camera.IdleFPS {
		errs = append(errs, fmt.Errorf("camera fps must satisfy 0 < idle_fps (%d) <= active_fps (%d)",
			c.Camera.IdleFPS, c.Camera.ActiveFPS))
	}
	if c.Camera.MotionThreshold < 0 {
		errs = append(errs, errors.New("camera.motion_threshold must not be negative"))
	}
	if c.Detector.MaxFaces < 1 {
		errs = append(errs, errors.New("detector.max_faces must be at least 1"))
	}
	for name, v := range map[string]float64{
		"min_detection_confidence": c.Detector.MinDetectionConfidence,
		"min_tracking_confidence":  c.Detector.MinTrackingConfidence,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("detector.%s must be between 0 and 1, got %f", name, v))
		}
	}
	if c.Render.FPS <= 0 {
		errs = append(errs, errors.New("render.fps must be positive"))
	}
	if err := c.Tracking.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracking: %w", err))
	}
	if err := c.Rig.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rig: %w", err))
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		errs = append(errs, errors.New("mqtt.broker and mqtt.topic are required when mqtt is enabled"))
	}
	if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
		errs = append(errs, fmt.Errorf("preview.quality must be between 1 and 100, got %d", c.Preview.Quality))
	}

	return errors.Join(errs...)
}

// DataDir returns ~/.kathakali, the default home of the database and bridges.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".kathakali"), nil
}

// StorePath returns the configured database path or the default one.
func (c Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kathakali.db"), nil
}

// BridgeDir returns the configured bridge directory or the default one.
func (c Config) BridgeDir() (string, error) {
	if c.Bridges.Dir != "" {
		return c.Bridges.Dir, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bridges"), nil
}
