package retarget

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/kathakali/internal/detector"
	"github.com/ayusman/kathakali/internal/filter"
	"github.com/ayusman/kathakali/internal/log"
	"github.com/ayusman/kathakali/internal/pose"
	"github.com/ayusman/kathakali/internal/solver"
)

// warnInterval bounds how often rejected frames are summarized at Warn.
const warnInterval = 10 * time.Second

// Stats counts detection-cycle outcomes since the last Reset.
type Stats struct {
	Frames    uint64 `json:"frames"`
	Published uint64 `json:"published"`
	Rejected  uint64 `json:"rejected"`
	NoFace    uint64 `json:"no_face"`
	LastError string `json:"last_error,omitempty"`
}

// Tracker owns the smoothed pose of one subject. Update is called from the
// detection cycle; every successful call publishes a whole new pose to the
// holder. A failed call leaves both the smoothed state and the holder as
// they were.
type Tracker struct {
	mu     sync.Mutex
	holder *pose.Holder
	logger *slog.Logger
	now    func() time.Time

	// smoothed is the filter state before blink stabilization, so the yaw
	// bias is not fed back into the next frame.
	smoothed pose.Pose
	seeded   pose.Channel
	seq      uint64

	stats       Stats
	unreported  uint64
	lastWarning time.Time
}

// NewTracker creates a tracker publishing to holder.
func NewTracker(holder *pose.Holder) *Tracker {
	return &Tracker{
		holder: holder,
		logger: log.With("component", "tracker"),
		now:    time.Now,
	}
}

// Holder returns the holder the tracker publishes to.
func (t *Tracker) Holder() *pose.Holder {
	return t.holder
}

// Update solves, smooths and stabilizes one frame and publishes the result.
// width and height are the source image size in pixels.
//
// The first frame observed for a channel seeds its smoothed value directly;
// later frames move it by the channel's factor.
func (t *Tracker) Update(frame detector.LandmarkFrame, width, height int, s Settings) (pose.Pose, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Frames++

	raw, err := solver.Solve(frame, width, height, s.solverOptions())
	if err != nil {
		return t.reject(err)
	}

	next := t.smoothed
	fresh := raw.Channels &^ t.seeded

	if raw.Channels.Has(pose.ChannelHead) {
		if fresh.Has(pose.ChannelHead) {
			next.Head = raw.Head
		} else {
			next.Head = filter.SmoothRotation(next.Head, raw.Head, s.Smoothing.Head)
		}
	}
	if raw.Channels.Has(pose.ChannelEyes) {
		if fresh.Has(pose.ChannelEyes) {
			next.Eyes = raw.Eyes.Clamp()
		} else {
			next.Eyes = filter.SmoothEyes(next.Eyes, raw.Eyes, s.Smoothing.Eyes)
		}
	}
	if raw.Channels.Has(pose.ChannelMouth) {
		if fresh.Has(pose.ChannelMouth) {
			next.Mouth = raw.Mouth.Clamp()
		} else {
			next.Mouth = filter.SmoothMouth(next.Mouth, raw.Mouth, s.Smoothing.Mouth)
		}
	}
	if raw.Channels.Has(pose.ChannelGaze) {
		if fresh.Has(pose.ChannelGaze) {
			next.Gaze = raw.Gaze.Clamp()
		} else {
			next.Gaze = filter.NewGazeFilter(s.Smoothing.Gaze).Apply(next.Gaze, raw.Gaze)
		}
	}
	next.Channels = t.seeded | raw.Channels

	out := next
	if raw.Channels.Has(pose.ChannelEyes) {
		var yaw float64
		if next.Channels.Has(pose.ChannelHead) && s.Channels.Head {
			yaw = next.Head.Yaw
		}
		out.Eyes = filter.StabilizeBlink(next.Eyes, yaw, s.Blink)
	}

	if !next.IsFinite() || !out.IsFinite() {
		return t.reject(fmt.Errorf("%w: non-finite smoothed pose", solver.ErrDegenerateGeometry))
	}

	t.smoothed = next
	t.seeded = next.Channels
	t.seq++
	t.stats.Published++

	out.Seq = t.seq
	out.UpdatedAt = t.now()
	t.holder.Publish(out)

	return out, nil
}

// NoFace records a detection cycle that found no face. The published pose
// is held as is.
func (t *Tracker) NoFace() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Frames++
	t.stats.NoFace++
}

// Reset starts a new session: smoothed state, sequence and statistics are
// cleared and the holder is emptied.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.smoothed = pose.Pose{}
	t.seeded = 0
	t.seq = 0
	t.stats = Stats{}
	t.unreported = 0
	t.holder.Reset()
}

// Stats returns a copy of the counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Tracker) reject(err error) (pose.Pose, error) {
	t.stats.Rejected++
	t.stats.LastError = err.Error()
	t.unreported++

	t.logger.Debug("frame rejected", "error", err)

	now := t.now()
	if now.Sub(t.lastWarning) >= warnInterval {
		kind := "incomplete"
		if errors.Is(err, solver.ErrDegenerateGeometry) {
			kind = "degenerate"
		}
		t.logger.Warn("rejecting landmark frames", "count", t.unreported, "last", kind, "error", err)
		t.unreported = 0
		t.lastWarning = now
	}

	held, _ := t.holder.Load()
	return held, err
}
