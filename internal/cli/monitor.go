package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/bridge/transport"
	"github.com/ppiankov/geowatch/internal/config"
	"github.com/ppiankov/geowatch/internal/intercept"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/report"
)

var (
	monitorSource      sourceFlags
	monitorPolicy      string
	monitorBridgeURL   string
	monitorBridgeTopic string
	monitorAuditLog    string
	monitorInterval    time.Duration
	monitorWatch       bool
)

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorSource.register(monitorCmd)
	f := monitorCmd.Flags()
	f.StringVar(&monitorPolicy, "policy", "", "Path to policy YAML (env "+config.EnvPolicy+")")
	f.StringVar(&monitorBridgeURL, "bridge-url", "", "Host websocket, ws://host:8787/bridge (env "+config.EnvBridgeURL+")")
	f.StringVar(&monitorBridgeTopic, "bridge-topic", transport.DefaultTopic, "MQTT topic for bridge messages when no --bridge-url")
	f.StringVar(&monitorAuditLog, "audit-log", "", "Path to audit log JSONL file")
	f.DurationVar(&monitorInterval, "interval", 0, "Monitor interval, overrides the policy (env "+config.EnvInterval+")")
	f.BoolVar(&monitorWatch, "watch", false, "Print every reading delivered to the page as a JSON line")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the page side: validate readings and report to the host",
	Long: "Runs the page-side validator natively. The first position request is\n" +
		"checked with the first-pass thresholds, then readings are validated\n" +
		"periodically. Suspicious verdicts are posted to the host as\n" +
		"LOCATION_VALIDATION_FAILED over the websocket bridge or MQTT. Without a\n" +
		"bridge the messages are printed to stdout.",
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	log := logging.New("geowatch-monitor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := loadPolicy(ctx, monitorPolicy, log)
	if err != nil {
		return err
	}
	pcfg := store.Config()

	src, mqttClient, err := monitorSource.open(ctx, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer mqttClient.Disconnect(250)
	}

	out := newLineWriter(cmd.OutOrStdout())
	messenger, closeMessenger, err := pageMessenger(ctx, mqttClient, out)
	if err != nil {
		return err
	}
	defer closeMessenger()

	var page *intercept.Page
	labels := report.Labels{
		Source:     "page",
		Session:    func() string { return page.Monitor().Session() },
		PolicyHash: store.Hash,
	}
	sinks, err := newSinks(store, labels, monitorAuditLog, log)
	if err != nil {
		return err
	}
	defer sinks.Close()

	page = intercept.NewPage(src, intercept.PageOptions{
		Policy:    store,
		Messenger: messenger,
		Reporter:  append(sinks.multi, intercept.NewPageReporter(messenger, log)),
		Log:       log,
	})
	defer page.Monitor().Close()

	interval := monitorInterval
	if interval <= 0 {
		interval = config.GetEnvDuration(config.EnvInterval, pcfg.Monitor.Interval)
	}
	if err := page.Install(ctx, interval); err != nil {
		return err
	}

	// First position request of the page.
	raw, err := page.CurrentSample(ctx, pcfg.Monitor.Acquire)
	if err != nil {
		log.WithError(err).Warn("first position unavailable")
	} else if monitorWatch {
		out.reading(raw)
	}

	if monitorWatch {
		sub, err := page.Watch(ctx, out.reading, pcfg.Monitor.Acquire)
		if err != nil {
			return fmt.Errorf("watch position: %w", err)
		}
		defer sub.Unsubscribe()
	}

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "\nStopping location monitoring...")
	return nil
}

// pageMessenger picks the bridge transport: websocket URL, MQTT when a
// broker connection exists, else JSON lines on stdout.
func pageMessenger(ctx context.Context, client mqtt.Client, out *lineWriter) (bridge.Messenger, func(), error) {
	if url := firstSet(monitorBridgeURL, config.GetEnv(config.EnvBridgeURL, "")); url != "" {
		ws, err := transport.DialWS(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return ws, func() { _ = ws.Close() }, nil
	}
	if client != nil {
		return transport.NewMQTTMessenger(client, monitorBridgeTopic), func() {}, nil
	}
	return bridge.FuncMessenger(func(_ context.Context, payload []byte) error {
		out.line(payload)
		return nil
	}), func() {}, nil
}

// lineWriter serializes JSON lines from the monitor and watch goroutines.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

func (l *lineWriter) line(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, string(data))
}

func (l *lineWriter) reading(raw model.RawReading) {
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	l.line(data)
}
