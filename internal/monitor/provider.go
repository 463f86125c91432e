package monitor

import (
	"context"
	"errors"

	"github.com/ppiankov/geowatch/internal/model"
)

// ErrNoFix is returned by a source when no reading arrived before the deadline.
var ErrNoFix = errors.New("provider: no location fix")

// WatchFunc receives every new reading of a subscription.
type WatchFunc func(model.RawReading)

// Subscription is an active watch. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Provider acquires a single location reading.
type Provider interface {
	CurrentSample(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error)

// CurrentSample calls f.
func (f ProviderFunc) CurrentSample(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error) {
	return f(ctx, opts)
}

// Reporter receives every verdict and every acquisition failure.
type Reporter interface {
	Report(ctx context.Context, v model.Verdict)
	ReportFailure(ctx context.Context, err error)
}
