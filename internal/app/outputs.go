package app

import (
	"context"

	"github.com/ayusman/kathakali/internal/bridge"
	"github.com/ayusman/kathakali/internal/publish"
)

// startOutputs connects the MQTT publisher and launches autostart bridges.
// Called with a.mu held.
func (a *App) startOutputs() {
	if m := a.cfg.MQTT; m.Enabled {
		sink, err := publish.Connect(publish.Options{
			Broker:      m.Broker,
			ClientID:    m.ClientID,
			Topic:       m.Topic,
			MinInterval: m.MinInterval.Std(),
		})
		if err != nil {
			a.logger.Warn("MQTT publisher disabled", "error", err)
		} else {
			a.mqtt = sink
			a.renderer.AddSink(sink)
		}
	}

	if a.bridges == nil {
		return
	}
	if err := a.bridges.Discover(); err != nil {
		a.logger.Warn("bridge discovery failed", "dir", a.bridges.Dir(), "error", err)
		return
	}
	for _, b := range a.bridges.List() {
		if !b.Manifest.Autostart {
			continue
		}
		if _, err := a.startBridge(b); err != nil {
			a.logger.Warn("failed to start bridge", "bridge", b.Manifest.Name, "error", err)
		}
	}
}

func (a *App) startBridge(b *bridge.Bridge) (*bridge.Process, error) {
	p, err := bridge.Start(context.Background(), b)
	if err != nil {
		return nil, err
	}
	a.running = append(a.running, p)
	a.renderer.AddSink(p)
	return p, nil
}

// StartBridge launches a discovered bridge by name and attaches it as a sink.
func (a *App) StartBridge(name string) error {
	if a.bridges == nil {
		return bridge.ErrBridgeNotFound
	}
	b, err := a.bridges.Get(name)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.startBridge(b)
	return err
}

// stopOutputs detaches and closes every output. Called with a.mu held.
func (a *App) stopOutputs() {
	if a.mqtt != nil {
		a.renderer.RemoveSink(a.mqtt.Name())
		a.mqtt.Close()
		a.mqtt = nil
	}
	for _, p := range a.running {
		a.renderer.RemoveSink(p.Name())
		p.Close()
	}
	a.running = nil
}
