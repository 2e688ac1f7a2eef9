// Package bridge discovers out-of-process renderer bridges and streams rig
// frames to them as JSON lines on stdin.
package bridge

// ManifestFile is the file name a bridge directory must contain.
const ManifestFile = "bridge.json"

// Manifest describes a bridge and how to start it.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Args        []string `json:"args,omitempty"`
	// Autostart bridges are launched with the pipeline.
	Autostart bool `json:"autostart"`
}

// Bridge is a discovered bridge with its manifest and location.
type Bridge struct {
	Manifest   Manifest `json:"manifest"`
	Path       string   `json:"path"`
	Executable string   `json:"executable"`
}
