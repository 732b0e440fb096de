package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// outboxLimit bounds messages kept while the broker is unreachable.
const outboxLimit = 32

const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are queued and sent on (re)connect.
type RealPublisher struct {
	client   paho.Client
	deviceID string

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher starts connecting to broker in the background and returns
// immediately; the device never waits on the broker.
func NewRealPublisher(broker, deviceID string) *RealPublisher {
	p := &RealPublisher{
		deviceID: deviceID,
		outbox:   newOutbox(outboxLimit),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline, Reason: "connection lost"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("status-pod-" + deviceID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(SystemTopic(deviceID), string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// PublishPresence sends a presence change, retained so late subscribers see
// the current value.
func (p *RealPublisher) PublishPresence(event PresenceEvent) error {
	payload, err := FormatPresencePayload(event)
	if err != nil {
		return fmt.Errorf("format presence payload: %w", err)
	}
	return p.send(queued{topic: PresenceTopic(p.deviceID), payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(queued{topic: SystemTopic(p.deviceID), payload: payload, qos: 1, retained: event.Retained})
}

// PublishRaw sends payload to topic at QoS 0.
func (p *RealPublisher) PublishRaw(topic string, payload []byte, retained bool) error {
	return p.send(queued{topic: topic, payload: payload, retained: retained})
}

func (p *RealPublisher) send(m queued) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.outbox.add(m)
		p.mu.Unlock()
		return nil
	}
	return p.publish(m)
}

func (p *RealPublisher) publish(m queued) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs := p.outbox.take()
	p.mu.Unlock()
	if len(msgs) > 0 {
		log.Printf("mqtt: connected, sending %d queued message(s)", len(msgs))
	}
	for _, m := range msgs {
		if err := p.publish(m); err != nil {
			log.Printf("mqtt: %v", err)
		}
	}
}

// Close disconnects from the broker, allowing in-flight messages 250ms.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	pending := p.outbox.len()
	p.mu.Unlock()
	if pending > 0 {
		log.Printf("mqtt: closing with %d unsent message(s)", pending)
	}
	p.client.Disconnect(250)
	return nil
}
