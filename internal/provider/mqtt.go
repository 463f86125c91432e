package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
)

// DefaultMQTTTopic carries RawReading JSON from a relay.
const DefaultMQTTTopic = "geowatch/location"

// MQTT keeps the latest reading published on a topic.
type MQTT struct {
	cache  *latest
	client mqtt.Client
	topic  string
	log    logrus.FieldLogger
}

// NewMQTT creates an MQTT provider. Call Start to subscribe.
func NewMQTT(client mqtt.Client, topic string, log logrus.FieldLogger) *MQTT {
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTT{
		cache:  newLatest(nil),
		client: client,
		topic:  topic,
		log:    logging.OrNop(log),
	}
}

// Start subscribes to the topic and unsubscribes when ctx ends.
func (m *MQTT) Start(ctx context.Context) error {
	token := m.client.Subscribe(m.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		m.handle(msg.Payload())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", m.topic, err)
	}
	m.log.WithField("topic", m.topic).Info("subscribed to location topic")

	context.AfterFunc(ctx, func() {
		m.client.Unsubscribe(m.topic)
	})
	return nil
}

func (m *MQTT) handle(payload []byte) {
	var r model.RawReading
	if err := json.Unmarshal(payload, &r); err != nil {
		m.log.WithError(err).WithField("topic", m.topic).Warn("dropping malformed location payload")
		return
	}
	m.cache.publish(r)
}

// CurrentSample implements monitor.Provider.
func (m *MQTT) CurrentSample(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error) {
	return m.cache.current(ctx, opts)
}

// Subscribe calls fn for every reading received on the topic.
func (m *MQTT) Subscribe(ctx context.Context, fn WatchFunc, _ model.AcquireOptions) (Subscription, error) {
	return m.cache.subscribe(ctx, fn), nil
}
