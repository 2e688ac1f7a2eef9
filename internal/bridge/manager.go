package bridge

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ayusman/kathakali/internal/log"
)

// ErrBridgeNotFound is returned when a requested bridge cannot be found.
var ErrBridgeNotFound = errors.New("bridge not found")

// Manager discovers bridges under a directory.
type Manager struct {
	dir     string
	bridges map[string]*Bridge
	mu      sync.RWMutex
}

// NewManager creates a Manager scanning dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:     dir,
		bridges: make(map[string]*Bridge),
	}
}

// Discover scans each subdirectory of the bridge directory for a manifest.
// A missing directory yields no bridges. Unreadable or invalid manifests are
// skipped.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bridges = make(map[string]*Bridge)

	info, err := os.Stat(m.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(path, ManifestFile))
		if err != nil {
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			log.Warn("skipping bridge with invalid manifest", "path", path, "error", err)
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			log.Warn("skipping bridge without name or executable", "path", path)
			continue
		}

		m.bridges[manifest.Name] = &Bridge{
			Manifest:   manifest,
			Path:       path,
			Executable: filepath.Join(path, manifest.Executable),
		}
	}

	return nil
}

// Get returns a bridge by name.
func (m *Manager) Get(name string) (*Bridge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bridges[name]
	if !ok {
		return nil, ErrBridgeNotFound
	}
	return b, nil
}

// List returns all discovered bridges sorted by name.
func (m *Manager) List() []*Bridge {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bridges := make([]*Bridge, 0, len(m.bridges))
	for _, b := range m.bridges {
		bridges = append(bridges, b)
	}
	sort.Slice(bridges, func(i, j int) bool {
		return bridges[i].Manifest.Name < bridges[j].Manifest.Name
	})
	return bridges
}

// Dir returns the bridge directory path.
func (m *Manager) Dir() string {
	return m.dir
}
