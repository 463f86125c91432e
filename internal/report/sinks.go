package report

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/alert"
	"github.com/ppiankov/geowatch/internal/audit"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/metrics"
	"github.com/ppiankov/geowatch/internal/model"
)

// Log writes verdicts as structured log lines.
type Log struct {
	log    logrus.FieldLogger
	labels Labels
}

// NewLog creates a logging reporter.
func NewLog(log logrus.FieldLogger, labels Labels) *Log {
	return &Log{log: logging.OrNop(log), labels: labels}
}

// Report implements Reporter.
func (l *Log) Report(_ context.Context, v model.Verdict) {
	fields := logrus.Fields{
		"source":   l.labels.Source,
		"lat":      v.Sample.Latitude,
		"lon":      v.Sample.Longitude,
		"provider": v.Sample.Provider,
	}
	if s := l.labels.session(); s != "" {
		fields["session"] = s
	}
	if v.Sample.Accuracy != nil {
		fields["accuracy"] = *v.Sample.Accuracy
	}
	if v.Valid {
		l.log.WithFields(fields).Debug("location valid")
		return
	}
	fields["issues"] = v.Codes()
	l.log.WithFields(fields).Warn("location invalid")
}

// ReportFailure implements Reporter.
func (l *Log) ReportFailure(_ context.Context, err error) {
	l.log.WithError(err).WithField("source", l.labels.Source).Warn("location unavailable")
}

// Metrics counts verdicts in a collector.
type Metrics struct {
	c *metrics.Collector
}

// NewMetrics creates a metrics reporter.
func NewMetrics(c *metrics.Collector) *Metrics {
	return &Metrics{c: c}
}

// Report implements Reporter.
func (m *Metrics) Report(_ context.Context, v model.Verdict) {
	m.c.ObserveVerdict(v)
}

// ReportFailure implements Reporter.
func (m *Metrics) ReportFailure(context.Context, error) {
	m.c.ObserveFailure()
}

// Audit appends every verdict to a hash-chained audit log.
type Audit struct {
	al     *audit.Log
	labels Labels
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewAudit creates an audit reporter. Write errors are logged, never returned.
func NewAudit(al *audit.Log, labels Labels, log logrus.FieldLogger) *Audit {
	return &Audit{al: al, labels: labels, log: logging.OrNop(log), now: time.Now}
}

// Report implements Reporter.
func (a *Audit) Report(_ context.Context, v model.Verdict) {
	a.record(v)
}

// ReportFailure implements Reporter.
func (a *Audit) ReportFailure(_ context.Context, err error) {
	a.record(model.UnavailableVerdict(err))
}

func (a *Audit) record(v model.Verdict) {
	e := audit.EntryFromVerdict(v, a.labels.session(), a.labels.Source, a.labels.policyHash()).At(a.now())
	if err := a.al.Record(e); err != nil {
		a.log.WithError(err).Error("audit write failed")
	}
}

// Alert sends invalid verdicts and failures to webhooks.
type Alert struct {
	d      *alert.Dispatcher
	labels Labels
	now    func() time.Time
}

// NewAlert creates an alert reporter. A nil dispatcher makes it a no-op.
func NewAlert(d *alert.Dispatcher, labels Labels) *Alert {
	return &Alert{d: d, labels: labels, now: time.Now}
}

// Report implements Reporter. Valid verdicts are not alerted.
func (a *Alert) Report(_ context.Context, v model.Verdict) {
	if v.Valid || a.d == nil {
		return
	}
	a.dispatch(v)
}

// ReportFailure implements Reporter.
func (a *Alert) ReportFailure(_ context.Context, err error) {
	if a.d == nil {
		return
	}
	a.dispatch(model.UnavailableVerdict(err))
}

func (a *Alert) dispatch(v model.Verdict) {
	ev := alert.EventFromVerdict(v, a.now())
	ev.Session = a.labels.session()
	ev.PolicyHash = a.labels.policyHash()
	a.d.Dispatch(ev)
}
