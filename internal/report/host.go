package report

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/confirm"
	"github.com/ppiankov/geowatch/internal/gate"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
)

// errNoRetry is what a Host without a RetryFunc reports on Retry.
var errNoRetry = errors.New("report: no retry function")

// RetryFunc acquires and evaluates a fresh sample after the user chose Retry.
type RetryFunc func(ctx context.Context) (model.Verdict, error)

// HostOptions configure a Host reporter.
type HostOptions struct {
	Retry RetryFunc
	// Exit is called when the user chooses Exit.
	Exit func()
	// OnValid is called for a valid verdict, including one reached by Retry.
	OnValid     func(model.Verdict)
	MaxAttempts int
	Log         logrus.FieldLogger
}

// Host raises a non-dismissible Retry/Exit confirmation for invalid verdicts
// and for acquisition failures. At most one confirmation is open at a time;
// verdicts arriving while it is open are dropped.
type Host struct {
	gate *gate.Gate
	opts HostOptions
	log  logrus.FieldLogger
	busy sync.Mutex
}

// NewHost creates a host-side reporter that asks on surface.
func NewHost(surface confirm.Surface, opts HostOptions) *Host {
	log := logging.OrNop(opts.Log)
	retry := opts.Retry
	if retry == nil {
		retry = func(context.Context) (model.Verdict, error) { return model.Verdict{}, errNoRetry }
	}
	return &Host{
		gate: gate.New(gate.CheckFunc(retry), surface, gate.Options{
			MaxAttempts: opts.MaxAttempts,
			Log:         log,
		}),
		opts: opts,
		log:  log,
	}
}

// Report implements Reporter.
func (h *Host) Report(ctx context.Context, v model.Verdict) {
	if v.Valid {
		h.valid(v)
		return
	}
	if !h.busy.TryLock() {
		h.log.WithField("issues", v.Lines()).Debug("confirmation already open, dropping verdict")
		return
	}
	defer h.busy.Unlock()

	res, err := h.gate.Resume(ctx, v)
	switch {
	case errors.Is(err, gate.ErrTerminated):
		h.log.WithField("attempts", res.Attempts).Warn("user exited after location warning")
		if h.opts.Exit != nil {
			h.opts.Exit()
		}
	case err != nil:
		h.log.WithError(err).Debug("location confirmation interrupted")
	default:
		h.valid(res.Verdict)
	}
}

// ReportFailure fails closed: the failure is shown like an invalid verdict.
func (h *Host) ReportFailure(ctx context.Context, err error) {
	h.Report(ctx, model.UnavailableVerdict(err))
}

func (h *Host) valid(v model.Verdict) {
	if h.opts.OnValid != nil {
		h.opts.OnValid(v)
	}
}
