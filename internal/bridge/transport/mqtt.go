package transport

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/logging"
)

// DefaultTopic is the MQTT topic used for bridge messages.
const DefaultTopic = "geowatch/bridge"

// Connect opens an MQTT client connection to broker (tcp://host:1883).
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	return client, nil
}

// MQTTMessenger publishes bridge messages to a topic.
type MQTTMessenger struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewMQTTMessenger publishes on topic with QoS 1.
func NewMQTTMessenger(client mqtt.Client, topic string) *MQTTMessenger {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTMessenger{client: client, topic: topic, qos: 1}
}

// Send publishes msg and waits for the broker acknowledgement or ctx.
func (m *MQTTMessenger) Send(ctx context.Context, msg bridge.Message) error {
	data, err := bridge.Encode(msg)
	if err != nil {
		return err
	}

	token := m.client.Publish(m.topic, m.qos, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("bridge publish: %w", err)
	}
	return nil
}

// SubscribeMQTT feeds every payload on topic to router. Paho delivers
// messages for one subscription in order.
func SubscribeMQTT(ctx context.Context, client mqtt.Client, topic string, router *bridge.Router, log logrus.FieldLogger) error {
	if topic == "" {
		topic = DefaultTopic
	}
	log = logging.OrNop(log)

	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		_ = router.Dispatch(ctx, msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	log.WithField("topic", topic).Info("bridge subscribed")

	go func() {
		<-ctx.Done()
		client.Unsubscribe(topic)
	}()
	return nil
}
