// Package monitor periodically samples the device location and reports
// heuristic verdicts.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/policy"
)

// ErrInvalidInterval is returned by Start for a non-positive interval.
var ErrInvalidInterval = errors.New("monitor: interval must be positive")

// Config holds monitor configuration.
type Config struct {
	// InitialDelay postpones the first tick after Start.
	InitialDelay time.Duration
	// Acquire is passed to the provider on every tick. Zero value means
	// model.DefaultAcquireOptions.
	Acquire model.AcquireOptions
	// Policy supplies thresholds; read on every tick so reloads apply.
	Policy *policy.Store
	// Mode selects the accuracy limit for ticks. Default ModeContinuous.
	Mode policy.Mode
	Log  logrus.FieldLogger
}

// Monitor runs at most one periodic validation loop at a time.
type Monitor struct {
	cfg      Config
	provider Provider
	reporter Reporter
	log      logrus.FieldLogger

	mu      sync.Mutex
	cancel  context.CancelFunc // non-nil iff running
	gen     uint64
	last    *model.Sample
	session string
}

// New creates an idle Monitor.
func New(cfg Config, p Provider, r Reporter) *Monitor {
	if cfg.Acquire == (model.AcquireOptions{}) {
		cfg.Acquire = model.DefaultAcquireOptions()
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.NewStore(nil, "")
	}
	if cfg.Mode == "" {
		cfg.Mode = policy.ModeContinuous
	}
	return &Monitor{
		cfg:      cfg,
		provider: p,
		reporter: r,
		log:      logging.OrNop(cfg.Log),
	}
}

// Start begins periodic validation. A running loop is stopped first, so
// exactly one ticker is ever active.
func (m *Monitor) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.session = uuid.NewString()

	go m.run(ctx, m.gen, interval)

	m.log.WithFields(logrus.Fields{
		"session":  m.session,
		"interval": interval.String(),
	}).Info("location monitoring started")
	return nil
}

// Stop halts the loop and clears the last sample. Safe to call when idle.
// It does not wait for an in-flight provider call; that result is discarded.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}
	session := m.session
	m.stopLocked()
	m.log.WithField("session", session).Info("location monitoring stopped")
}

// Close releases the monitor. Equivalent to Stop.
func (m *Monitor) Close() {
	m.Stop()
}

// Running reports whether a loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Session returns the current session ID, or "" when idle.
func (m *Monitor) Session() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return ""
	}
	return m.session
}

// LastSample returns the most recent sample of the current session.
func (m *Monitor) LastSample() (model.Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return model.Sample{}, false
	}
	return *m.last, true
}

// Observe evaluates a reading delivered outside the loop (a one-shot
// position request), updates the last sample and reports the verdict.
func (m *Monitor) Observe(ctx context.Context, raw model.RawReading, mode policy.Mode) model.Verdict {
	sample := model.NewSample(raw)
	th := m.cfg.Policy.Thresholds(mode)

	m.mu.Lock()
	v := policy.Evaluate(sample, m.last, th)
	m.last = &sample
	m.mu.Unlock()

	m.reporter.Report(ctx, v)
	return v
}

// stopLocked must be called with mu held.
func (m *Monitor) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.gen++
	m.last = nil
	m.session = ""
}

func (m *Monitor) run(ctx context.Context, gen uint64, interval time.Duration) {
	if d := m.cfg.InitialDelay; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	m.tick(ctx, gen)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, gen)
		}
	}
}

// tick acquires one sample, evaluates it against the previous one and
// reports. Results from a stale generation are dropped.
func (m *Monitor) tick(ctx context.Context, gen uint64) {
	opts := m.cfg.Acquire
	actx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	raw, err := m.provider.CurrentSample(actx, opts)
	if err != nil {
		if !m.current(gen) {
			return
		}
		m.log.WithError(err).Warn("location acquisition failed")
		m.reporter.ReportFailure(ctx, err)
		return
	}

	sample := model.NewSample(raw)
	th := m.cfg.Policy.Thresholds(m.cfg.Mode)

	m.mu.Lock()
	if gen != m.gen || m.cancel == nil {
		m.mu.Unlock()
		return
	}
	v := policy.Evaluate(sample, m.last, th)
	m.last = &sample
	m.mu.Unlock()

	if !v.Valid {
		m.log.WithField("issues", v.Lines()).Warn("suspicious location")
	}
	m.reporter.Report(ctx, v)
}

func (m *Monitor) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.cancel != nil
}
