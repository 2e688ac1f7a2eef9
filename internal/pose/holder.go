package pose

import "sync/atomic"

// Holder is a single-slot, latest-wins publication point for a Pose.
//
// One writer publishes whole records and any number of readers load them;
// a reader never observes a partially written pose. There is no queue: a
// publish overwrites whatever the readers have not yet seen.
type Holder struct {
	current atomic.Pointer[Pose]
}

// Publish replaces the held pose.
func (h *Holder) Publish(p Pose) {
	h.current.Store(&p)
}

// Load returns a copy of the held pose and whether one has been published.
func (h *Holder) Load() (Pose, bool) {
	p := h.current.Load()
	if p == nil {
		return Pose{}, false
	}
	return *p, true
}

// Reset drops the held pose so that Load reports nothing until the next publish.
func (h *Holder) Reset() {
	h.current.Store(nil)
}
