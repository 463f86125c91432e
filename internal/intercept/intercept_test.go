package intercept

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/monitor"
	"github.com/ppiankov/geowatch/internal/policy"
	"github.com/ppiankov/geowatch/internal/provider"
)

var _ monitor.Reporter = (*PageReporter)(nil)

type recordingMessenger struct {
	mu   sync.Mutex
	msgs []bridge.Message
	err  error
}

func (m *recordingMessenger) Send(_ context.Context, msg bridge.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return m.err
}

func (m *recordingMessenger) all() []bridge.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bridge.Message(nil), m.msgs...)
}

// newPage wires the page validator reporting through a recording messenger.
func newPage(src Source) (*Interceptor, *recordingMessenger) {
	msgs := &recordingMessenger{}
	return NewPage(src, PageOptions{Messenger: msgs}).Interceptor, msgs
}

func reading(acc float64) model.RawReading {
	return model.RawReading{Latitude: -6.2, Longitude: 106.8, Accuracy: model.Float(acc), Provider: "gps", Timestamp: 1000}
}

func TestOneShotUsesFirstPassThreshold(t *testing.T) {
	// 30 m passes continuous (50 m) but fails first pass (20 m)
	src := provider.NewReplay([]model.RawReading{reading(30)}, provider.ReplayOptions{})
	i, msgs := newPage(src)

	got, err := i.CurrentSample(context.Background(), model.DefaultAcquireOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got.Accuracy == nil || *got.Accuracy != 30 {
		t.Errorf("expected original reading forwarded, got %+v", got)
	}

	sent := msgs.all()
	if len(sent) != 1 {
		t.Fatalf("expected 1 validation failure posted, got %d", len(sent))
	}
	if sent[0].Type != bridge.TypeValidationFailed || sent[0].Issues[0] != "Low accuracy: 30m" {
		t.Errorf("unexpected message %+v", sent[0])
	}
}

func TestOneShotValidPostsNothing(t *testing.T) {
	src := provider.NewReplay([]model.RawReading{reading(10)}, provider.ReplayOptions{})
	i, msgs := newPage(src)

	if _, err := i.CurrentSample(context.Background(), model.DefaultAcquireOptions()); err != nil {
		t.Fatal(err)
	}
	if n := len(msgs.all()); n != 0 {
		t.Errorf("expected no messages, got %d", n)
	}
}

func TestOneShotErrorPassesThrough(t *testing.T) {
	src := provider.NewReplay(nil, provider.ReplayOptions{})
	i, msgs := newPage(src)

	if _, err := i.CurrentSample(context.Background(), model.DefaultAcquireOptions()); !errors.Is(err, provider.ErrExhausted) {
		t.Fatalf("expected source error, got %v", err)
	}
	if n := len(msgs.all()); n != 0 {
		t.Errorf("page must not post acquisition errors, got %d", n)
	}
}

type fakeObserver struct {
	modes []policy.Mode
}

func (f *fakeObserver) Observe(_ context.Context, raw model.RawReading, mode policy.Mode) model.Verdict {
	f.modes = append(f.modes, mode)
	return model.NewVerdict(model.NewSample(raw), nil)
}

func TestWatchUsesContinuousThreshold(t *testing.T) {
	n := provider.NewNMEA(provider.NMEAOptions{})
	obs := &fakeObserver{}
	i := New(n, obs, nil)

	var got []model.RawReading
	sub, err := i.Watch(context.Background(), func(r model.RawReading) { got = append(got, r) }, model.AcquireOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	n.HandleSentence("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")

	if len(got) != 1 {
		t.Fatalf("expected reading forwarded, got %d", len(got))
	}
	if len(obs.modes) != 1 || obs.modes[0] != policy.ModeContinuous {
		t.Errorf("expected continuous mode, got %v", obs.modes)
	}
}

func TestWatchForwardsInvalidReadings(t *testing.T) {
	src := provider.NewReplay([]model.RawReading{reading(80)}, provider.ReplayOptions{})
	i, msgs := newPage(src)

	got := make(chan model.RawReading, 1)
	if _, err := i.Watch(context.Background(), func(r model.RawReading) { got <- r }, model.AcquireOptions{}); err != nil {
		t.Fatal(err)
	}

	r := <-got
	if *r.Accuracy != 80 {
		t.Errorf("expected original reading, got %+v", r)
	}
	if n := len(msgs.all()); n != 1 {
		t.Errorf("expected 1 validation failure, got %d", n)
	}
}

func TestAnnounceSpooferApps(t *testing.T) {
	m := &recordingMessenger{}
	if err := AnnounceSpooferApps(context.Background(), m, nil); err != nil {
		t.Fatal(err)
	}
	if len(m.all()) != 0 {
		t.Error("empty list must not be announced")
	}

	AnnounceSpooferApps(context.Background(), m, policy.DefaultSpooferApps)
	sent := m.all()
	if len(sent) != 1 || sent[0].Type != bridge.TypeCheckSpooferApps || len(sent[0].Apps) != len(policy.DefaultSpooferApps) {
		t.Errorf("unexpected message %+v", sent)
	}
}

func TestInspectReportsCallerReading(t *testing.T) {
	i, msgs := newPage(provider.NewReplay(nil, provider.ReplayOptions{}))

	v := i.Inspect(context.Background(), model.RawReading{Latitude: -6.2, Longitude: 106.8, Mocked: model.Bool(true)}, policy.ModeContinuous)
	if v.Valid || !v.Has(model.IssueMockLocation) {
		t.Fatalf("expected mock_location, got %v", v.Codes())
	}
	if n := len(msgs.all()); n != 1 {
		t.Errorf("expected one bridge message, got %d", n)
	}

	v = i.Inspect(context.Background(), reading(10), policy.ModeContinuous)
	if !v.Valid {
		t.Errorf("expected valid reading, got %v", v.Codes())
	}
	if n := len(msgs.all()); n != 1 {
		t.Errorf("valid reading must not post, got %d messages", n)
	}
}

func verdict(acc float64, issues ...model.Issue) model.Verdict {
	return model.NewVerdict(model.NewSample(reading(acc)), issues)
}

func TestPageReporterPostsOnlyInvalid(t *testing.T) {
	m := &recordingMessenger{}
	p := NewPageReporter(m, nil)

	p.Report(context.Background(), verdict(8))
	p.ReportFailure(context.Background(), errors.New("timeout"))
	if len(m.all()) != 0 {
		t.Fatalf("expected no messages for valid verdict or failure, got %d", len(m.all()))
	}

	p.Report(context.Background(), verdict(72,
		model.Issue{Code: model.IssueLowAccuracy, Detail: "72"},
		model.Issue{Code: model.IssueNetworkProvider, Detail: "network"},
	))
	sent := m.all()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Type != bridge.TypeValidationFailed {
		t.Errorf("expected %s, got %s", bridge.TypeValidationFailed, sent[0].Type)
	}
	if len(sent[0].Issues) != 2 || sent[0].Issues[0] != "Low accuracy: 72m" {
		t.Errorf("unexpected issues %v", sent[0].Issues)
	}
	if sent[0].Position == nil || sent[0].Position.Latitude != -6.2 {
		t.Errorf("unexpected position %+v", sent[0].Position)
	}
}

func TestPageReporterDropsDeliveryError(t *testing.T) {
	m := &recordingMessenger{err: errors.New("no webview")}
	p := NewPageReporter(m, nil)

	p.Report(context.Background(), verdict(72, model.Issue{Code: model.IssueLowAccuracy, Detail: "72"}))
	if len(m.all()) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(m.all()))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInstallStartsContinuousMonitoring(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.Monitor.Interval = 20 * time.Millisecond
	cfg.Monitor.InitialDelay = 0
	src := provider.NewReplay([]model.RawReading{reading(80)}, provider.ReplayOptions{Loop: true})
	msgs := &recordingMessenger{}

	p := NewPage(src, PageOptions{Policy: policy.NewStore(cfg, ""), Messenger: msgs})
	defer p.Monitor().Close()

	if err := p.Install(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if !p.Monitor().Running() {
		t.Fatal("expected monitoring running after install")
	}

	// The page never asks for a position; ticks alone must validate.
	waitFor(t, func() bool {
		failures := 0
		for _, m := range msgs.all() {
			if m.Type == bridge.TypeValidationFailed {
				failures++
			}
		}
		return failures >= 2
	})
	if first := msgs.all()[0]; first.Type != bridge.TypeCheckSpooferApps {
		t.Errorf("expected spoofer app check first, got %s", first.Type)
	}
}

func TestInstallExplicitIntervalOverridesPolicy(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.Monitor.InitialDelay = 0
	cfg.SpooferApps = nil
	src := provider.NewReplay([]model.RawReading{reading(80)}, provider.ReplayOptions{Loop: true})
	msgs := &recordingMessenger{}

	// policy interval stays at 15s; only the override can tick this fast
	p := NewPage(src, PageOptions{Policy: policy.NewStore(cfg, ""), Messenger: msgs})
	defer p.Monitor().Close()

	if err := p.Install(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(msgs.all()) >= 2 })
}
