package provider

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/monitor"
)

var (
	_ monitor.Provider = (*NMEA)(nil)
	_ monitor.Provider = (*MQTT)(nil)
	_ monitor.Provider = (*Replay)(nil)
)

const (
	rmcValid   = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	rmcVoid    = "$GPRMC,123521,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*76"
	ggaFix     = "$GPGGA,123520,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*4D"
	ggaInvalid = "$GPGGA,123522,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,*76"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func cached() model.AcquireOptions {
	return model.AcquireOptions{MaxAge: time.Minute, Timeout: 50 * time.Millisecond}
}

func TestNMEARMCFix(t *testing.T) {
	n := NewNMEA(NMEAOptions{})
	if err := n.HandleSentence(rmcValid); err != nil {
		t.Fatal(err)
	}

	r, err := n.CurrentSample(context.Background(), cached())
	if err != nil {
		t.Fatal(err)
	}
	if !near(r.Latitude, 48.1173, 1e-4) || !near(r.Longitude, 11.516667, 1e-4) {
		t.Errorf("unexpected position %v,%v", r.Latitude, r.Longitude)
	}
	if r.Speed == nil || !near(*r.Speed, 22.4*0.514444, 1e-6) {
		t.Errorf("expected speed converted from knots, got %v", r.Speed)
	}
	if r.Accuracy != nil {
		t.Errorf("accuracy unknown before GGA, got %v", *r.Accuracy)
	}
	if r.Provider != ProviderGPS {
		t.Errorf("expected provider gps, got %q", r.Provider)
	}
	if r.Mocked == nil || *r.Mocked {
		t.Error("expected mocked=false")
	}
	if r.Timestamp == 0 {
		t.Error("expected timestamp set")
	}
}

func TestNMEAGGAAddsAccuracyAndAltitude(t *testing.T) {
	n := NewNMEA(NMEAOptions{})
	n.HandleSentence(rmcValid)
	n.HandleSentence(ggaFix)

	r, err := n.CurrentSample(context.Background(), cached())
	if err != nil {
		t.Fatal(err)
	}
	if r.Accuracy == nil || !near(*r.Accuracy, 0.9*DefaultUERE, 1e-9) {
		t.Errorf("expected accuracy HDOP*UERE=4.5, got %v", r.Accuracy)
	}
	if r.Altitude == nil || *r.Altitude != 545.4 {
		t.Errorf("expected altitude 545.4, got %v", r.Altitude)
	}
	if r.Speed == nil {
		t.Error("expected speed kept from RMC")
	}
}

func TestNMEACustomUERE(t *testing.T) {
	n := NewNMEA(NMEAOptions{UERE: 10})
	n.HandleSentence(ggaFix)
	r, _ := n.CurrentSample(context.Background(), cached())
	if r.Accuracy == nil || !near(*r.Accuracy, 9, 1e-9) {
		t.Errorf("expected accuracy 9, got %v", r.Accuracy)
	}
}

func TestNMEAIgnoresInvalidFixes(t *testing.T) {
	n := NewNMEA(NMEAOptions{})
	for _, line := range []string{rmcVoid, ggaInvalid, "not nmea", ""} {
		if err := n.HandleSentence(line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	if err := n.HandleSentence("$GPRMC,garbage*00"); err == nil {
		t.Error("expected parse error for bad sentence")
	}

	_, err := n.CurrentSample(context.Background(), cached())
	if !errors.Is(err, ErrNoFix) {
		t.Fatalf("expected ErrNoFix, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline in error chain, got %v", err)
	}
}

func TestNMEARunReadsStream(t *testing.T) {
	n := NewNMEA(NMEAOptions{})
	stream := strings.Join([]string{"garbage", rmcVoid, rmcValid, ggaFix, "$GPXXX,1*00"}, "\r\n")

	if err := n.Run(context.Background(), strings.NewReader(stream)); err != nil {
		t.Fatal(err)
	}
	r, err := n.CurrentSample(context.Background(), cached())
	if err != nil {
		t.Fatal(err)
	}
	if r.Accuracy == nil {
		t.Error("expected accuracy from GGA in stream")
	}
}

func TestNMEARunStopsOnCancel(t *testing.T) {
	n := NewNMEA(NMEAOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Run(ctx, strings.NewReader(rmcValid+"\n")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCurrentSampleWaitsForFreshFix(t *testing.T) {
	n := NewNMEA(NMEAOptions{})
	n.HandleSentence(rmcValid)

	go func() {
		time.Sleep(20 * time.Millisecond)
		n.HandleSentence(ggaFix)
	}()

	// MaxAge 0 refuses the cached RMC fix and waits for the GGA one.
	r, err := n.CurrentSample(context.Background(), model.AcquireOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if r.Accuracy == nil {
		t.Error("expected the fresh GGA fix")
	}
}

func TestCurrentSampleRejectsStaleFix(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)}
	n := NewNMEA(NMEAOptions{Now: clock.Now})
	n.HandleSentence(rmcValid)

	clock.Add(10 * time.Second)
	_, err := n.CurrentSample(context.Background(), model.AcquireOptions{MaxAge: 5 * time.Second, Timeout: 30 * time.Millisecond})
	if !errors.Is(err, ErrNoFix) {
		t.Fatalf("expected stale fix rejected, got %v", err)
	}

	r, err := n.CurrentSample(context.Background(), model.AcquireOptions{MaxAge: 15 * time.Second, Timeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if r.Timestamp != clock.t.Add(-10*time.Second).UnixMilli() {
		t.Errorf("expected fix timestamp from clock, got %d", r.Timestamp)
	}
}

func TestNMEASubscribe(t *testing.T) {
	n := NewNMEA(NMEAOptions{})
	var mu sync.Mutex
	var got []model.RawReading
	sub, err := n.Subscribe(context.Background(), func(r model.RawReading) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}, model.DefaultAcquireOptions())
	if err != nil {
		t.Fatal(err)
	}

	n.HandleSentence(rmcValid)
	n.HandleSentence(ggaFix)
	sub.Unsubscribe()
	sub.Unsubscribe()
	n.HandleSentence(rmcValid)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 readings before unsubscribe, got %d", len(got))
	}
}

func TestSubscribeEndsWithContext(t *testing.T) {
	n := NewNMEA(NMEAOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	var mu sync.Mutex
	n.Subscribe(ctx, func(model.RawReading) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, model.AcquireOptions{})

	cancel()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n.cache.mu.Lock()
		left := len(n.cache.subs)
		n.cache.mu.Unlock()
		if left == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	n.HandleSentence(rmcValid)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no calls after cancel, got %d", calls)
	}
}

func TestMQTTHandlesReadings(t *testing.T) {
	m := NewMQTT(nil, "", nil)
	if m.topic != DefaultMQTTTopic {
		t.Errorf("expected default topic, got %q", m.topic)
	}

	m.handle([]byte(`not json`))
	if _, err := m.CurrentSample(context.Background(), cached()); !errors.Is(err, ErrNoFix) {
		t.Fatalf("malformed payload must not produce a fix, got %v", err)
	}

	m.handle([]byte(`{"latitude":-6.2,"longitude":106.8,"accuracy":12,"provider":"fused","mocked":true}`))
	r, err := m.CurrentSample(context.Background(), cached())
	if err != nil {
		t.Fatal(err)
	}
	if r.Latitude != -6.2 || r.Accuracy == nil || *r.Accuracy != 12 {
		t.Errorf("unexpected reading %+v", r)
	}
	if r.Mocked == nil || !*r.Mocked {
		t.Error("expected mocked flag carried")
	}
	if r.Timestamp == 0 {
		t.Error("expected timestamp filled on receipt")
	}
}

func TestReplaySequence(t *testing.T) {
	r := NewReplay([]model.RawReading{{Latitude: 1}, {Latitude: 2}}, ReplayOptions{})
	ctx := context.Background()

	for _, want := range []float64{1, 2} {
		got, err := r.CurrentSample(ctx, model.AcquireOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if got.Latitude != want {
			t.Errorf("expected %v, got %v", want, got.Latitude)
		}
	}
	if _, err := r.CurrentSample(ctx, model.AcquireOptions{}); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if r.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", r.Remaining())
	}
}

func TestReplayLoop(t *testing.T) {
	r := NewReplay([]model.RawReading{{Latitude: 1}, {Latitude: 2}}, ReplayOptions{Loop: true})
	var lats []float64
	for i := 0; i < 5; i++ {
		got, err := r.CurrentSample(context.Background(), model.AcquireOptions{})
		if err != nil {
			t.Fatal(err)
		}
		lats = append(lats, got.Latitude)
	}
	if lats[2] != 1 || lats[4] != 1 {
		t.Errorf("expected looping sequence, got %v", lats)
	}

	empty := NewReplay(nil, ReplayOptions{Loop: true})
	if _, err := empty.CurrentSample(context.Background(), model.AcquireOptions{}); !errors.Is(err, ErrExhausted) {
		t.Errorf("empty looping replay must be exhausted, got %v", err)
	}
}

func TestReplaySubscribe(t *testing.T) {
	r := NewReplay([]model.RawReading{{Latitude: 1}, {Latitude: 2}, {Latitude: 3}}, ReplayOptions{Step: time.Millisecond})
	got := make(chan float64, 3)
	if _, err := r.Subscribe(context.Background(), func(rd model.RawReading) { got <- rd.Latitude }, model.AcquireOptions{}); err != nil {
		t.Fatal(err)
	}

	for _, want := range []float64{1, 2, 3} {
		select {
		case lat := <-got:
			if lat != want {
				t.Errorf("expected %v, got %v", want, lat)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("reading %v not delivered", want)
		}
	}
}

func TestLoadReplayFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "walk.yaml")
	os.WriteFile(yamlPath, []byte("- latitude: -6.2\n  longitude: 106.8\n  accuracy: 8\n  provider: gps\n  timestamp: 1000\n"), 0644)
	jsonPath := filepath.Join(dir, "walk.json")
	os.WriteFile(jsonPath, []byte(`[{"latitude":1,"longitude":2,"mocked":true}]`), 0644)

	readings, err := LoadReplayFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 1 || readings[0].Accuracy == nil || *readings[0].Accuracy != 8 || readings[0].Provider != "gps" {
		t.Errorf("unexpected yaml readings %+v", readings)
	}

	readings, err = LoadReplayFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(readings) != 1 || readings[0].Mocked == nil || !*readings[0].Mocked {
		t.Errorf("unexpected json readings %+v", readings)
	}

	if _, err := LoadReplayFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
