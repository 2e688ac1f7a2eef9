package rig

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"
)

// Asset describes which bones and blendshapes an avatar provides.
type Asset struct {
	Name        string   `json:"name"`
	Bones       []string `json:"bones"`
	Blendshapes []string `json:"blendshapes"`
}

// DefaultAsset returns an asset carrying every canonical bone and blendshape.
func DefaultAsset() Asset {
	return Asset{
		Name:        "default",
		Bones:       append([]string(nil), Bones...),
		Blendshapes: append([]string(nil), Blendshapes...),
	}
}

// Validate rejects empty or duplicate names.
func (a Asset) Validate() error {
	if a.Name == "" {
		return errors.New("asset name is required")
	}
	seen := make(map[string]bool)
	for _, n := range a.Bones {
		if n == "" || seen["b:"+n] {
			return fmt.Errorf("invalid or duplicate bone %q", n)
		}
		seen["b:"+n] = true
	}
	for _, n := range a.Blendshapes {
		if n == "" || seen["s:"+n] {
			return fmt.Errorf("invalid or duplicate blendshape %q", n)
		}
		seen["s:"+n] = true
	}
	return nil
}

// Frame is a serializable snapshot of a rig's driven state.
type Frame struct {
	Asset       string             `json:"asset"`
	Seq         uint64             `json:"seq"`
	Time        time.Time          `json:"time"`
	Bones       map[string]Quat    `json:"bones"`
	Blendshapes map[string]float64 `json:"blendshapes"`
}

// Model is an in-memory rig built from an Asset. It implements Target and
// can be read concurrently with writes from the render cycle.
type Model struct {
	mu     sync.RWMutex
	name   string
	bones  map[string]quat.Number
	shapes map[string]float64
}

// NewModel creates a rig at rest for the asset.
func NewModel(a Asset) *Model {
	m := &Model{
		name:   a.Name,
		bones:  make(map[string]quat.Number, len(a.Bones)),
		shapes: make(map[string]float64, len(a.Blendshapes)),
	}
	for _, b := range a.Bones {
		m.bones[b] = Identity
	}
	for _, s := range a.Blendshapes {
		m.shapes[s] = 0
	}
	return m
}

// Name returns the asset name.
func (m *Model) Name() string {
	return m.name
}

// Bone implements Target.
func (m *Model) Bone(name string) (Bone, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.bones[name]; !ok {
		return nil, false
	}
	return modelBone{m: m, name: name}, true
}

// Blendshape implements Target.
func (m *Model) Blendshape(name string) (Blendshape, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.shapes[name]; !ok {
		return nil, false
	}
	return modelShape{m: m, name: name}, true
}

// Reset returns every bone and blendshape to rest.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for b := range m.bones {
		m.bones[b] = Identity
	}
	for s := range m.shapes {
		m.shapes[s] = 0
	}
}

// Frame returns a copy of the current state. Seq and Time are left for the
// caller to stamp.
func (m *Model) Frame() Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f := Frame{
		Asset:       m.name,
		Bones:       make(map[string]Quat, len(m.bones)),
		Blendshapes: make(map[string]float64, len(m.shapes)),
	}
	for name, q := range m.bones {
		f.Bones[name] = QuatOf(q)
	}
	for name, w := range m.shapes {
		f.Blendshapes[name] = w
	}
	return f
}

type modelBone struct {
	m    *Model
	name string
}

func (b modelBone) Rotation() quat.Number {
	b.m.mu.RLock()
	defer b.m.mu.RUnlock()
	return b.m.bones[b.name]
}

func (b modelBone) SetRotation(q quat.Number) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	b.m.bones[b.name] = q
}

type modelShape struct {
	m    *Model
	name string
}

func (s modelShape) Weight() float64 {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	return s.m.shapes[s.name]
}

func (s modelShape) SetWeight(w float64) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.shapes[s.name] = w
}
