// Package tray provides the system tray menu for kathakali.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/kathakali/internal/pose"
)

// channelItems orders the per-channel menu entries.
var channelItems = []struct {
	channel pose.Channel
	title   string
}{
	{pose.ChannelHead, "Head"},
	{pose.ChannelEyes, "Eyes"},
	{pose.ChannelMouth, "Mouth"},
	{pose.ChannelGaze, "Gaze"},
}

// State is the initial state shown by the menu.
type State struct {
	Enabled  bool
	Overlay  bool
	Channels pose.Channel
}

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onChannel  func(ch pose.Channel, on bool)
	onOverlay  func(enabled bool)
	onSettings func()
	onQuit     func()

	enabled  bool
	overlay  bool
	channels pose.Channel
	mu       sync.RWMutex

	menuToggle   *systray.MenuItem
	menuOverlay  *systray.MenuItem
	menuStatus   *systray.MenuItem
	menuChannels map[pose.Channel]*systray.MenuItem
}

// New creates a Tray showing s.
func New(s State) *Tray {
	return &Tray{
		enabled:      s.Enabled,
		overlay:      s.Overlay,
		channels:     s.Channels,
		menuChannels: make(map[pose.Channel]*systray.MenuItem),
	}
}

// OnToggle sets the callback for the detection on/off item.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnChannel sets the callback for the per-channel items.
func (t *Tray) OnChannel(fn func(ch pose.Channel, on bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChannel = fn
}

// OnOverlay sets the callback for the landmark overlay item.
func (t *Tray) OnOverlay(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOverlay = fn
}

// OnSettings sets the callback for the settings item.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback for the quit item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetTitle("Kathakali")
	systray.SetTooltip("Kathakali face tracking")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle face tracking")
	t.menuStatus = systray.AddMenuItem("Waiting for camera", "Tracking status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	for _, item := range channelItems {
		t.menuChannels[item.channel] = systray.AddMenuItemCheckbox(item.title, "Drive "+item.title, t.channels.Has(item.channel))
	}
	systray.AddSeparator()

	t.menuOverlay = systray.AddMenuItemCheckbox("Show Landmarks", "Draw landmarks on the preview", t.overlay)
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Kathakali")
	t.mu.Unlock()

	for _, item := range channelItems {
		ch := item.channel
		mi := t.menuChannels[ch]
		go func() {
			for range mi.ClickedCh {
				t.handleChannel(ch)
			}
		}()
	}

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuOverlay.ClickedCh:
				t.handleOverlay()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Tracking"
	}
	return "○ Paused"
}

func setChecked(mi *systray.MenuItem, on bool) {
	if mi == nil {
		return
	}
	if on {
		mi.Check()
	} else {
		mi.Uncheck()
	}
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleChannel(ch pose.Channel) {
	t.mu.Lock()
	on := !t.channels.Has(ch)
	if on {
		t.channels |= ch
	} else {
		t.channels &^= ch
	}
	setChecked(t.menuChannels[ch], on)
	callback := t.onChannel
	t.mu.Unlock()

	if callback != nil {
		callback(ch, on)
	}
}

func (t *Tray) handleOverlay() {
	t.mu.Lock()
	t.overlay = !t.overlay
	overlay := t.overlay
	setChecked(t.menuOverlay, overlay)
	callback := t.onOverlay
	t.mu.Unlock()

	if callback != nil {
		callback(overlay)
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus updates the status line.
func (t *Tray) SetStatus(text string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(text)
	}
}

// IsEnabled returns whether tracking is on.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Channels returns the channels currently checked.
func (t *Tray) Channels() pose.Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.channels
}

// Overlay returns whether the landmark overlay is checked.
func (t *Tray) Overlay() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.overlay
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}
