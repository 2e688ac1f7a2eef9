package retarget

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/kathakali/internal/log"
	"github.com/ayusman/kathakali/internal/pose"
	"github.com/ayusman/kathakali/internal/rig"
)

// Sink receives every rendered rig frame. Send is called on the render cycle
// and must not block; slow consumers drop frames.
type Sink interface {
	Name() string
	Send(frame rig.Frame) error
}

// Renderer applies the latest published pose to a rig model once per tick and
// fans the resulting frame out to sinks. It never waits on the detection cycle.
type Renderer struct {
	holder  *pose.Holder
	model   *rig.Model
	applier *rig.Applier
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	sinks  []Sink
	last   rig.Frame
	report rig.Report
	ticks  uint64
}

// NewRenderer creates a renderer reading from holder and writing to model.
func NewRenderer(holder *pose.Holder, model *rig.Model, opts rig.Options) *Renderer {
	return &Renderer{
		holder:  holder,
		model:   model,
		applier: rig.NewApplier(opts),
		logger:  log.With("component", "renderer"),
		now:     time.Now,
	}
}

// AddSink registers a sink for rendered frames.
func (r *Renderer) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// RemoveSink unregisters a sink by name.
func (r *Renderer) RemoveSink(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sinks {
		if s.Name() == name {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			return
		}
	}
}

// Tick applies the held pose with the given settings. It reports false when
// no pose has been published yet; the rig is left at rest in that case.
func (r *Renderer) Tick(s Settings) (rig.Frame, bool) {
	p, ok := r.holder.Load()
	if !ok {
		return rig.Frame{}, false
	}

	r.applier.SetOptions(s.Rig)
	report := r.applier.Apply(r.model, p, s.Channels.Mask())

	frame := r.model.Frame()
	frame.Seq = p.Seq
	frame.Time = r.now()

	r.mu.Lock()
	r.last = frame
	r.report = report
	r.ticks++
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.Unlock()

	for _, s := range sinks {
		if err := s.Send(frame); err != nil {
			r.logger.Debug("sink send failed", "sink", s.Name(), "error", err)
		}
	}

	return frame, true
}

// Last returns the most recent frame and apply report.
func (r *Renderer) Last() (rig.Frame, rig.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.report, r.ticks > 0
}

// Model returns the rig the renderer writes into.
func (r *Renderer) Model() *rig.Model {
	return r.model
}

// Reset returns the rig to rest.
func (r *Renderer) Reset() {
	r.model.Reset()
	r.applier.Reset()
	r.mu.Lock()
	r.last = rig.Frame{}
	r.report = rig.Report{}
	r.ticks = 0
	r.mu.Unlock()
}
