package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/alert"
	"github.com/ppiankov/geowatch/internal/audit"
	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/bridge/transport"
	"github.com/ppiankov/geowatch/internal/config"
	"github.com/ppiankov/geowatch/internal/confirm"
	"github.com/ppiankov/geowatch/internal/devopts"
	"github.com/ppiankov/geowatch/internal/gate"
	"github.com/ppiankov/geowatch/internal/integrity"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/metrics"
	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/monitor"
	"github.com/ppiankov/geowatch/internal/policy"
	"github.com/ppiankov/geowatch/internal/ratelimit"
	"github.com/ppiankov/geowatch/internal/report"
	"github.com/ppiankov/geowatch/internal/server"
)

// errUserExit is the cause recorded when the user chose Exit.
var errUserExit = errors.New("exited by user after location warning")

var (
	hostSource      sourceFlags
	hostPolicy      string
	hostListen      string
	hostAuditLog    string
	hostADBSerial   string
	hostNoDevOpts   bool
	hostBridgeTopic string
	hostInterval    time.Duration
	hostMaxAttempts int
)

func init() {
	rootCmd.AddCommand(hostCmd)
	hostSource.register(hostCmd)
	f := hostCmd.Flags()
	f.StringVar(&hostPolicy, "policy", "", "Path to policy YAML (env "+config.EnvPolicy+")")
	f.StringVar(&hostListen, "listen", "", "HTTP listen address for /bridge, /metrics and /healthz (env "+config.EnvListen+", default :8787)")
	f.StringVar(&hostAuditLog, "audit-log", "", "Path to audit log JSONL file (env "+config.EnvAuditLog+")")
	f.StringVar(&hostADBSerial, "adb-serial", "", "adb device serial for the developer-options guard (env "+config.EnvADBSerial+")")
	f.BoolVar(&hostNoDevOpts, "no-devopts", false, "Disable the developer-options guard")
	f.StringVar(&hostBridgeTopic, "bridge-topic", transport.DefaultTopic, "MQTT topic for page bridge messages (needs --mqtt-broker)")
	f.DurationVar(&hostInterval, "interval", 0, "Monitor interval, overrides the policy (env "+config.EnvInterval+")")
	f.IntVar(&hostMaxAttempts, "max-attempts", -1, "Retry limit for the location warning, 0 = unlimited (env "+config.EnvMaxAttempts+")")
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run the host side: startup gate, monitor, bridge and guards",
	Long: "Acquires one location and blocks until it passes the rules (Retry/Exit\n" +
		"prompt on the terminal), then monitors continuously. Page verdicts arrive\n" +
		"over the /bridge websocket or MQTT and raise the same prompt. The\n" +
		"developer-options guard polls the device over adb.",
	RunE: runHost,
}

// hostApp is the assembled host. Fields are wired by runHost; handlers
// are methods so they can be exercised without a network.
type hostApp struct {
	store    *policy.Store
	src      monitor.Provider
	metrics  *metrics.Collector
	sinks    *sinkSet
	page     report.Multi
	prompt   *report.Host
	apps     devopts.PackageLister
	monitor  *monitor.Monitor
	log      logrus.FieldLogger
	pageLink string
	// runCtx ends with the host; prompts raised from page messages use it.
	runCtx context.Context
}

func runHost(cmd *cobra.Command, args []string) error {
	log := logging.New("geowatch-host")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, exit := context.WithCancelCause(ctx)
	defer exit(nil)

	store, err := loadPolicy(ctx, hostPolicy, log)
	if err != nil {
		return err
	}
	pcfg := store.Config()

	src, mqttClient, err := hostSource.open(ctx, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer mqttClient.Disconnect(250)
	}

	app := &hostApp{
		store:    store,
		src:      src,
		metrics:  metrics.New(version),
		log:      log,
		pageLink: config.GetEnv(config.EnvPageURL, ""),
		runCtx:   ctx,
	}

	app.sinks, err = newSinks(store, app.labels("host"), firstSet(hostAuditLog, config.GetEnv(config.EnvAuditLog, "")), log)
	if err != nil {
		return err
	}
	defer app.sinks.Close()

	if err := app.verifyBinary(); err != nil {
		return err
	}

	pageSinks, err := newSinks(store, app.labels("page"), "", log)
	if err != nil {
		return err
	}
	// Page verdicts share the host audit log.
	if app.sinks.audit != nil {
		pageSinks.multi = append(pageSinks.multi, report.NewAudit(app.sinks.audit, app.labels("page"), log))
	}
	app.page = append(pageSinks.multi, report.NewMetrics(app.metrics))

	surface := confirm.NewTerminal(os.Stdin, os.Stderr)
	maxAttempts := hostMaxAttempts
	if maxAttempts < 0 {
		maxAttempts = config.GetEnvInt(config.EnvMaxAttempts, pcfg.Gate.MaxAttempts)
	}

	app.prompt = report.NewHost(surface, report.HostOptions{
		Retry: func(ctx context.Context) (model.Verdict, error) {
			return app.check(ctx, policy.ModeContinuous)
		},
		Exit:        func() { exit(errUserExit) },
		OnValid:     app.confirmed,
		MaxAttempts: maxAttempts,
		Log:         log,
	})

	app.monitor = monitor.New(monitor.Config{
		InitialDelay: pcfg.Monitor.InitialDelay,
		Acquire:      pcfg.Monitor.Acquire,
		Policy:       store,
		Mode:         policy.ModeContinuous,
		Log:          log,
	}, src, append(app.sinks.multi, report.NewMetrics(app.metrics), app.prompt))
	defer app.monitor.Close()

	adb := devopts.NewADB(firstSet(hostADBSerial, config.GetEnv(config.EnvADBSerial, "")))
	app.apps = adb

	router := app.router()
	srv := server.New(server.Config{
		Addr:    firstSet(hostListen, config.GetEnv(config.EnvListen, "")),
		Version: version,
		Policy:  store,
		Metrics: app.metrics,
		Bridge:  transport.NewWSHandler(router, log),
		Monitor: app.monitor,
		Log:     log,
	})
	go func() {
		if err := srv.Serve(ctx); err != nil {
			exit(fmt.Errorf("http server: %w", err))
		}
	}()

	if mqttClient != nil && hostBridgeTopic != "" {
		if err := transport.SubscribeMQTT(ctx, mqttClient, hostBridgeTopic, router, log); err != nil {
			log.WithError(err).Warn("MQTT bridge disabled")
		}
	}

	if !hostNoDevOpts {
		guard := devopts.NewGuard(adb, surface, devopts.GuardOptions{
			InitialDelay: pcfg.DevOpts.InitialDelay,
			Exit:         func() { exit(devopts.ErrEnabled) },
			OnCheck:      app.devOptsChecked,
			Log:          log,
		})
		go func() { _ = guard.Run(ctx, pcfg.DevOpts.Interval) }()
	}

	// Startup gate: the page is not shown until a sample passes.
	g := gate.New(func(ctx context.Context) (model.Verdict, error) {
		return app.check(ctx, policy.ModeStartup)
	}, surface, gate.Options{
		MaxAttempts: maxAttempts,
		Log:         log,
		OnTransition: func(from, to string) {
			log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("startup gate")
		},
	})
	res, err := g.Run(ctx)
	if err != nil {
		if errors.Is(err, gate.ErrTerminated) {
			app.sinks.multi.Report(ctx, res.Verdict)
			return fmt.Errorf("startup location check: %w", err)
		}
		return hostExit(ctx, err)
	}
	app.sinks.multi.Report(ctx, res.Verdict)
	app.confirmed(res.Verdict)

	interval := hostInterval
	if interval <= 0 {
		interval = config.GetEnvDuration(config.EnvInterval, pcfg.Monitor.Interval)
	}
	if err := app.monitor.Start(interval); err != nil {
		return err
	}

	<-ctx.Done()
	return hostExit(ctx, nil)
}

// hostExit maps the cancellation cause to the command result. A signal is
// a clean shutdown.
func hostExit(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return err
	case errors.Is(cause, context.Canceled):
		fmt.Fprintln(os.Stderr, "\nShutting down geowatch host...")
		return nil
	default:
		return cause
	}
}

func (a *hostApp) labels(source string) report.Labels {
	return report.Labels{
		Source: source,
		Session: func() string {
			if a.monitor == nil {
				return ""
			}
			return a.monitor.Session()
		},
		PolicyHash: a.store.Hash,
	}
}

// check acquires one sample and evaluates it against the last one seen by
// the monitor.
func (a *hostApp) check(ctx context.Context, mode policy.Mode) (model.Verdict, error) {
	raw, err := a.src.CurrentSample(ctx, a.store.Config().Monitor.Acquire)
	if err != nil {
		return model.Verdict{}, err
	}
	var prev *model.Sample
	if a.monitor != nil {
		if last, ok := a.monitor.LastSample(); ok {
			prev = &last
		}
	}
	return policy.Evaluate(model.NewSample(raw), prev, a.store.Thresholds(mode)), nil
}

func (a *hostApp) confirmed(v model.Verdict) {
	fields := logrus.Fields{}
	if a.pageLink != "" {
		fields["page"] = a.pageLink
	}
	a.log.WithFields(fields).Info("location confirmed")
}

func (a *hostApp) router() *bridge.Router {
	r := bridge.NewRouter(a.log)
	r.OnDrop = a.metrics.ObserveBridgeDrop
	limiter := ratelimit.New(a.store.Config().Bridge.RateLimits)
	r.Handle(bridge.TypeValidationFailed, a.limited(limiter, a.handleValidationFailed))
	r.Handle(bridge.TypeCheckSpooferApps, a.limited(limiter, a.handleSpooferApps))
	return r
}

// verifyBinary refuses to start a binary that fails its checksum. The
// mismatch is audited and alerted before returning.
func (a *hostApp) verifyBinary() error {
	res, err := integrity.Verify()
	switch {
	case errors.Is(err, integrity.ErrMismatch):
		a.sinks.event(audit.EventTamper, alert.EventTamper, res.Reason())
		return err
	case err != nil:
		a.log.WithError(err).Warn("binary integrity check failed")
	case res.Skipped:
		a.log.Debug("no binary checksum recorded, integrity check skipped")
	default:
		a.log.WithField("sha256", res.Actual[:16]).Info("binary checksum verified")
	}
	return nil
}

// limited drops messages over the per-type rate limit before they reach h.
func (a *hostApp) limited(l *ratelimit.Limiter, h bridge.HandlerFunc) bridge.HandlerFunc {
	return func(ctx context.Context, msg bridge.Message) error {
		if res := l.Allow(string(msg.Type)); res.Exceeded {
			a.metrics.ObserveBridgeDrop("rate_limited")
			a.log.WithField("type", msg.Type).Debug(res.Reason)
			return nil
		}
		return h(ctx, msg)
	}
}

// handleValidationFailed records a page verdict and raises the prompt. The
// prompt runs off the bridge goroutine so later messages keep flowing.
func (a *hostApp) handleValidationFailed(ctx context.Context, msg bridge.Message) error {
	a.metrics.ObserveBridgeMessage(string(msg.Type))
	v := msg.Verdict()
	a.page.Report(ctx, v)
	go a.prompt.Report(a.detached(ctx), v)
	return nil
}

// handleSpooferApps checks the announced package names against the device.
// An empty list falls back to the policy's spoofer_apps.
func (a *hostApp) handleSpooferApps(ctx context.Context, msg bridge.Message) error {
	a.metrics.ObserveBridgeMessage(string(msg.Type))
	candidates := msg.Apps
	if len(candidates) == 0 {
		candidates = a.store.Config().SpooferApps
	}
	go a.checkSpooferApps(a.detached(ctx), candidates)
	return nil
}

// detached returns a context for work started by a page message. It
// survives the page disconnecting but not the host shutting down.
func (a *hostApp) detached(ctx context.Context) context.Context {
	if a.runCtx != nil {
		return a.runCtx
	}
	return context.WithoutCancel(ctx)
}

func (a *hostApp) checkSpooferApps(ctx context.Context, candidates []string) {
	found, err := devopts.InstalledAmong(ctx, a.apps, candidates)
	if err != nil {
		a.log.WithError(err).Debug("package list unavailable")
		return
	}
	if len(found) == 0 {
		return
	}
	reason := "Fake GPS app installed: " + strings.Join(found, ", ")
	a.log.WithField("apps", found).Warn("spoofer apps installed")
	a.sinks.event(audit.EventSpooferApps, alert.EventSpooferApps, reason)
	a.prompt.Report(ctx, spooferVerdict(reason))
}

func spooferVerdict(reason string) model.Verdict {
	return model.NewVerdict(model.Sample{Provider: model.ProviderUnknown}, []model.Issue{
		{Code: model.IssueReported, Detail: reason},
	})
}

func (a *hostApp) devOptsChecked(enabled bool) {
	a.metrics.SetDeveloperOptions(enabled)
	if enabled {
		a.sinks.event(audit.EventDevOpts, alert.EventDevOptions, "developer options enabled")
	}
}
