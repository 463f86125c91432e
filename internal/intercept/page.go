package intercept

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
)

// PageReporter posts invalid verdicts to the host across the bridge.
type PageReporter struct {
	messenger bridge.Messenger
	log       logrus.FieldLogger
}

// NewPageReporter creates the page-side reporter.
func NewPageReporter(m bridge.Messenger, log logrus.FieldLogger) *PageReporter {
	return &PageReporter{messenger: m, log: logging.OrNop(log)}
}

// Report posts LOCATION_VALIDATION_FAILED for an invalid verdict. Valid
// verdicts are not posted. Delivery errors are dropped.
func (p *PageReporter) Report(ctx context.Context, v model.Verdict) {
	if v.Valid {
		return
	}
	if err := p.messenger.Send(ctx, bridge.ValidationFailed(v)); err != nil {
		p.log.WithError(err).Debug("bridge delivery failed, dropping message")
	}
}

// ReportFailure only logs; the page never posts acquisition failures.
func (p *PageReporter) ReportFailure(_ context.Context, err error) {
	p.log.WithError(err).Warn("location unavailable")
}
