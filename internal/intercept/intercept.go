// Package intercept wraps the page's location source so every position the
// page receives is validated first. The page always gets the original reading.
package intercept

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/monitor"
	"github.com/ppiankov/geowatch/internal/policy"
)

// Source is the wrapped location source.
type Source interface {
	CurrentSample(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error)
	Subscribe(ctx context.Context, fn monitor.WatchFunc, opts model.AcquireOptions) (monitor.Subscription, error)
}

// Observer evaluates a reading and reports the verdict. *monitor.Monitor
// implements it.
type Observer interface {
	Observe(ctx context.Context, raw model.RawReading, mode policy.Mode) model.Verdict
}

// Interceptor validates readings on their way from Source to the page.
type Interceptor struct {
	src Source
	obs Observer
	log logrus.FieldLogger
}

// New creates an Interceptor.
func New(src Source, obs Observer, log logrus.FieldLogger) *Interceptor {
	return &Interceptor{src: src, obs: obs, log: logging.OrNop(log)}
}

// CurrentSample serves a one-shot position request. The reading is checked
// with the first-pass thresholds and returned unchanged whatever the verdict.
func (i *Interceptor) CurrentSample(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error) {
	raw, err := i.src.CurrentSample(ctx, opts)
	if err != nil {
		return raw, err
	}
	i.Inspect(ctx, raw, policy.ModeFirstPass)
	return raw, nil
}

// Watch serves a watch request. Every reading is checked with the
// continuous thresholds before fn receives it.
func (i *Interceptor) Watch(ctx context.Context, fn monitor.WatchFunc, opts model.AcquireOptions) (monitor.Subscription, error) {
	return i.src.Subscribe(ctx, func(raw model.RawReading) {
		i.Inspect(ctx, raw, policy.ModeContinuous)
		fn(raw)
	}, opts)
}

// Inspect validates a reading the caller delivers itself, such as a
// position forwarded by a platform callback.
func (i *Interceptor) Inspect(ctx context.Context, raw model.RawReading, mode policy.Mode) model.Verdict {
	v := i.obs.Observe(ctx, raw, mode)
	if !v.Valid {
		i.log.WithFields(logrus.Fields{"mode": mode, "issues": v.Lines()}).Warn("location validation failed")
	}
	return v
}

// AnnounceSpooferApps asks the host to check for installed spoofing apps.
func AnnounceSpooferApps(ctx context.Context, m bridge.Messenger, apps []string) error {
	if len(apps) == 0 {
		return nil
	}
	return m.Send(ctx, bridge.CheckSpooferApps(apps))
}
