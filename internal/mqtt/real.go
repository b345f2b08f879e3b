package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/co2-monitor/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	TopicPrefix string
	BufferSize  int // messages kept while disconnected
	Logger      *zap.Logger

	// OnReconnect, if set, is called after the connection is re-established
	// and the buffer has been flushed.
	OnReconnect func(p Publisher)
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topics Topics
	out    *outbox
	log    *zap.Logger
}

// ClientID returns a broker client ID unique to this process.
func ClientID() string {
	return "co2-monitor-" + uuid.NewString()[:8]
}

// NewRealPublisher creates a publisher for the given broker. If the broker is
// not reachable within the connect timeout the publisher is still returned:
// paho keeps retrying in the background and events are buffered meanwhile.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}

	p := &RealPublisher{
		topics: NewTopics(opts.TopicPrefix),
		log:    opts.Logger.With(zap.String("component", "mqtt")),
	}

	var connectedOnce atomic.Bool
	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(ClientID()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(WillPayload(time.Now())), 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			n, err := p.out.flush()
			if err != nil {
				p.log.Warn("buffer flush incomplete", zap.Int("sent", n), zap.Error(err))
			} else if n > 0 {
				p.log.Info("buffer flushed", zap.Int("sent", n))
			}
			if connectedOnce.Swap(true) && opts.OnReconnect != nil {
				opts.OnReconnect(p)
			}
		})

	p.client = paho.NewClient(clientOpts)
	p.out = newOutbox(opts.BufferSize, p.client.IsConnectionOpen, p.send, p.log)

	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warn("broker not reachable yet, retrying in background", zap.String("broker", opts.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// PublishReading sends a reading. QoS 0; dropped while disconnected.
func (p *RealPublisher) PublishReading(r logic.Reading) error {
	payload, err := FormatReadingPayload(r)
	if err != nil {
		return fmt.Errorf("format reading payload: %w", err)
	}
	return p.out.publish(bufferedMsg{topic: p.topics.Readings, payload: payload}, false)
}

// PublishEvent sends an event. QoS 1; buffered while disconnected.
func (p *RealPublisher) PublishEvent(e logic.Event) error {
	payload, err := FormatEventPayload(e)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	return p.out.publish(bufferedMsg{topic: p.topics.Events, payload: payload, qos: 1}, true)
}

// PublishSystem sends a system lifecycle event. QoS 1; buffered while
// disconnected.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	msg := bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained}
	return p.out.publish(msg, true)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Pending returns the number of buffered messages.
func (p *RealPublisher) Pending() int {
	return p.out.pending()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
