package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/model"
)

func invalidVerdict() model.Verdict {
	s := model.NewSample(model.RawReading{
		Latitude:  -6.2,
		Longitude: 106.8,
		Accuracy:  model.Float(72),
		Provider:  "network",
		Timestamp: 1700000000000,
	})
	return model.NewVerdict(s, []model.Issue{{Code: model.IssueLowAccuracy, Detail: "72"}})
}

func TestWebsocketBridgeDeliversInOrder(t *testing.T) {
	r := bridge.NewRouter(nil)
	var mu sync.Mutex
	var order []string
	r.Handle(bridge.TypeCheckSpooferApps, func(_ context.Context, msg bridge.Message) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, msg.Apps[0])
		return nil
	})

	h := NewWSHandler(r, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	m, err := DialWS(ctx, wsURL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer m.Close()

	for _, app := range []string{"a", "b", "c"} {
		if err := m.Send(ctx, bridge.CheckSpooferApps([]string{app})); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("expected ordered delivery a,b,c, got %v", order)
	}
	if h.Connections() != 1 {
		t.Errorf("expected 1 open connection, got %d", h.Connections())
	}
}

// fakeToken is a completed paho token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient records publishes. Unimplemented methods panic via the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client
	topic   string
	payload []byte
	err     error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.payload, _ = payload.([]byte)
	return newFakeToken(c.err)
}

func TestMQTTMessengerPublishes(t *testing.T) {
	c := &fakeClient{}
	m := NewMQTTMessenger(c, "")

	if err := m.Send(context.Background(), bridge.ValidationFailed(invalidVerdict())); err != nil {
		t.Fatal(err)
	}
	if c.topic != DefaultTopic {
		t.Errorf("expected default topic, got %s", c.topic)
	}
	msg, err := bridge.Decode(c.payload)
	if err != nil {
		t.Fatalf("payload not decodable: %v", err)
	}
	if msg.Type != bridge.TypeValidationFailed {
		t.Errorf("unexpected type %s", msg.Type)
	}
}

func TestMQTTMessengerPublishError(t *testing.T) {
	c := &fakeClient{err: errors.New("not connected")}
	m := NewMQTTMessenger(c, "t")

	if err := m.Send(context.Background(), bridge.CheckSpooferApps([]string{"x"})); err == nil {
		t.Error("expected publish error")
	}
}
