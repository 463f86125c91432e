package intercept

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/monitor"
	"github.com/ppiankov/geowatch/internal/policy"
)

// PageOptions configure the validator running inside the page.
type PageOptions struct {
	Policy    *policy.Store
	Messenger bridge.Messenger
	// Reporter receives every verdict. Default is a PageReporter on Messenger.
	Reporter monitor.Reporter
	Log      logrus.FieldLogger
}

// Page is the page-side validator: an Interceptor on the page's location
// source plus a continuous monitor on the same source.
type Page struct {
	*Interceptor
	mon  *monitor.Monitor
	opts PageOptions
	log  logrus.FieldLogger
}

// NewPage wires the interceptor and monitor. Nothing runs until Install.
func NewPage(src Source, opts PageOptions) *Page {
	if opts.Policy == nil {
		opts.Policy = policy.NewStore(nil, "")
	}
	log := logging.OrNop(opts.Log)
	if opts.Reporter == nil {
		opts.Reporter = NewPageReporter(opts.Messenger, log)
	}
	cfg := opts.Policy.Config()
	mon := monitor.New(monitor.Config{
		InitialDelay: cfg.Monitor.InitialDelay,
		Acquire:      cfg.Monitor.Acquire,
		Policy:       opts.Policy,
		Log:          log,
	}, src, opts.Reporter)
	return &Page{
		Interceptor: New(src, mon, log),
		mon:         mon,
		opts:        opts,
		log:         log,
	}
}

// Monitor returns the continuous monitor.
func (p *Page) Monitor() *monitor.Monitor { return p.mon }

// Install asks the host to check for spoofing apps and starts continuous
// monitoring. A zero interval means the policy's monitor interval.
func (p *Page) Install(ctx context.Context, interval time.Duration) error {
	cfg := p.opts.Policy.Config()
	if p.opts.Messenger != nil {
		if err := AnnounceSpooferApps(ctx, p.opts.Messenger, cfg.SpooferApps); err != nil {
			p.log.WithError(err).Warn("spoofer app announcement failed")
		}
	}
	if interval <= 0 {
		interval = cfg.Monitor.Interval
	}
	return p.mon.Start(interval)
}
