package room

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/deckrelay/internal/button"
	"github.com/nerrad567/deckrelay/internal/infrastructure/mqtt"
)

// mirrorQueueSize bounds the messages waiting for the broker.
const mirrorQueueSize = 256

// Publisher is the subset of *mqtt.Client the mirror needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	QoS() byte
	Topics() mqtt.Topics
}

// pressMessage is published on the press topic for every keyUp.
type pressMessage struct {
	Coordinates button.Coordinate `json:"coordinates"`
	Events      int               `json:"events"`
	At          string            `json:"at"`
}

type mirrorMessage struct {
	topic    string
	payload  []byte
	retained bool
}

// Mirror is an Observer that republishes saved configs (retained) and key
// presses to MQTT. Publishing happens on its own goroutine; when the
// queue is full new messages are dropped.
type Mirror struct {
	pub    Publisher
	logger Logger
	now    func() time.Time

	queue chan mirrorMessage
	wg    sync.WaitGroup
}

// NewMirror creates a mirror. Call Start before use.
func NewMirror(pub Publisher, logger Logger) *Mirror {
	return &Mirror{
		pub:    pub,
		logger: logger,
		now:    time.Now,
		queue:  make(chan mirrorMessage, mirrorQueueSize),
	}
}

// Start publishes queued messages until ctx is cancelled. Messages still
// queued at that point are discarded.
func (m *Mirror) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-m.queue:
				if err := m.pub.Publish(msg.topic, msg.payload, m.pub.QoS(), msg.retained); err != nil {
					m.logger.Warn("mqtt mirror publish failed", "topic", msg.topic, "error", err)
				}
			}
		}
	}()
}

// Wait blocks until the goroutine started by Start has returned.
func (m *Mirror) Wait() {
	m.wg.Wait()
}

// ConfigSaved publishes cfg on the button's retained state topic.
func (m *Mirror) ConfigSaved(identity string, cfg button.Config) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		m.logger.Error("encoding mirrored config", "identity", identity, "error", err)
		return
	}
	m.enqueue(mirrorMessage{
		topic:    m.pub.Topics().ButtonState(identity, cfg.Coordinates.String()),
		payload:  payload,
		retained: true,
	})
}

// KeyPressed publishes a press notification.
func (m *Mirror) KeyPressed(identity string, c button.Coordinate, events int) {
	payload, err := json.Marshal(pressMessage{
		Coordinates: c,
		Events:      events,
		At:          m.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		m.logger.Error("encoding press", "identity", identity, "error", err)
		return
	}
	m.enqueue(mirrorMessage{topic: m.pub.Topics().Press(identity, c.String()), payload: payload})
}

// FetchFailed is not mirrored.
func (m *Mirror) FetchFailed(string, button.Kind, error) {}

func (m *Mirror) enqueue(msg mirrorMessage) {
	select {
	case m.queue <- msg:
	default:
		m.logger.Warn("mqtt mirror queue full, dropping message", "topic", msg.topic)
	}
}
