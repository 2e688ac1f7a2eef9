// Package publish forwards rendered rig frames to an MQTT broker.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/kathakali/internal/log"
	"github.com/ayusman/kathakali/internal/rig"
)

// ErrBusy is returned by Send when the previous publish is still in flight.
var ErrBusy = errors.New("publish in flight")

const (
	connectTimeout  = 5 * time.Second
	disconnectQuiet = 250
)

// Client is the part of mqtt.Client the sink uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Options configures an MQTT sink.
type Options struct {
	Broker   string
	ClientID string
	Topic    string
	// MinInterval drops frames that arrive sooner than this after the last publish.
	MinInterval time.Duration
	QoS         byte
	Retained    bool
}

// Stats counts sink activity.
type Stats struct {
	Published uint64 `json:"published"`
	Skipped   uint64 `json:"skipped"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// MQTTSink publishes rig frames as JSON to a topic. Send never waits for the
// broker: a frame is dropped while the previous one is still in flight.
type MQTTSink struct {
	client Client
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending mqtt.Token
	last    time.Time
	stats   Stats
}

// newClient is replaced in tests.
var newClient = mqtt.NewClient

// Connect dials the broker and returns a sink publishing to opts.Topic.
func Connect(opts Options) (*MQTTSink, error) {
	if opts.Broker == "" || opts.Topic == "" {
		return nil, fmt.Errorf("mqtt: broker and topic are required")
	}
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := newClient(co)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect to %s timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect to %s: %w", opts.Broker, err)
	}
	log.Info("connected to MQTT broker", "broker", opts.Broker, "topic", opts.Topic)
	return NewMQTTSink(client, opts), nil
}

// NewMQTTSink wraps an already connected client.
func NewMQTTSink(client Client, opts Options) *MQTTSink {
	return &MQTTSink{
		client: client,
		opts:   opts,
		logger: log.With("component", "mqtt"),
		now:    time.Now,
	}
}

// Name implements retarget.Sink.
func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Send implements retarget.Sink.
func (s *MQTTSink) Send(frame rig.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.opts.MinInterval > 0 && !s.last.IsZero() && now.Sub(s.last) < s.opts.MinInterval {
		s.stats.Skipped++
		return nil
	}

	if s.pending != nil {
		select {
		case <-s.pending.Done():
			if err := s.pending.Error(); err != nil {
				s.stats.Failed++
				s.logger.Warn("publish failed", "error", err)
			}
			s.pending = nil
		default:
			s.stats.Dropped++
			return ErrBusy
		}
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("mqtt: encode frame: %w", err)
	}
	s.pending = s.client.Publish(s.opts.Topic, s.opts.QoS, s.opts.Retained, payload)
	s.last = now
	s.stats.Published++
	return nil
}

// Stats returns a copy of the counters.
func (s *MQTTSink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(disconnectQuiet)
}
