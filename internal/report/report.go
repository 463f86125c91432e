// Package report delivers verdicts to the surfaces that act on them.
package report

import (
	"context"

	"github.com/ppiankov/geowatch/internal/model"
)

// Reporter receives every verdict and every acquisition failure.
// It matches monitor.Reporter.
type Reporter interface {
	Report(ctx context.Context, v model.Verdict)
	ReportFailure(ctx context.Context, err error)
}

// Labels supplies per-report metadata. Nil funcs yield "".
type Labels struct {
	Source     string
	Session    func() string
	PolicyHash func() string
}

func (l Labels) session() string {
	if l.Session == nil {
		return ""
	}
	return l.Session()
}

func (l Labels) policyHash() string {
	if l.PolicyHash == nil {
		return ""
	}
	return l.PolicyHash()
}

// Multi fans a verdict out to every reporter in order. Nil entries are skipped.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(ctx context.Context, v model.Verdict) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, v)
		}
	}
}

// ReportFailure implements Reporter.
func (m Multi) ReportFailure(ctx context.Context, err error) {
	for _, r := range m {
		if r != nil {
			r.ReportFailure(ctx, err)
		}
	}
}
