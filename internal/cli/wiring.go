package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/alert"
	"github.com/ppiankov/geowatch/internal/audit"
	"github.com/ppiankov/geowatch/internal/bridge/transport"
	"github.com/ppiankov/geowatch/internal/config"
	"github.com/ppiankov/geowatch/internal/intercept"
	"github.com/ppiankov/geowatch/internal/policy"
	"github.com/ppiankov/geowatch/internal/provider"
	"github.com/ppiankov/geowatch/internal/report"
)

// errNoSource is returned when no location source is configured.
var errNoSource = errors.New("no location source: set --replay, --serial or --mqtt-broker")

// sourceFlags select where readings come from. The first configured
// source wins: replay file, serial NMEA receiver, MQTT relay.
type sourceFlags struct {
	replay        string
	replayLoop    bool
	serial        string
	baud          uint
	uere          float64
	broker        string
	locationTopic string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.replay, "replay", "", "Replay readings from a YAML/JSON file")
	fl.BoolVar(&f.replayLoop, "replay-loop", false, "Restart the replay file when exhausted")
	fl.StringVar(&f.serial, "serial", "", "Serial port of an NMEA GPS receiver (env "+config.EnvSerialPort+")")
	fl.UintVar(&f.baud, "baud", 0, "Serial baud rate (env "+config.EnvSerialBaud+", default 9600)")
	fl.Float64Var(&f.uere, "uere", 0, "Range error in meters multiplied by HDOP for accuracy (env "+config.EnvUERE+")")
	fl.StringVar(&f.broker, "mqtt-broker", "", "MQTT broker URL, tcp://host:1883 (env "+config.EnvBroker+")")
	fl.StringVar(&f.locationTopic, "location-topic", provider.DefaultMQTTTopic, "MQTT topic carrying location readings")
}

// resolve fills unset flags from the environment. Runs after .env files
// are loaded.
func (f *sourceFlags) resolve() {
	f.serial = firstSet(f.serial, config.GetEnv(config.EnvSerialPort, ""))
	if f.baud == 0 {
		f.baud = uint(config.GetEnvInt(config.EnvSerialBaud, int(provider.DefaultSerialOptions().Baud)))
	}
	if f.uere == 0 {
		f.uere = config.GetEnvFloat(config.EnvUERE, provider.DefaultUERE)
	}
	f.broker = firstSet(f.broker, config.GetEnv(config.EnvBroker, ""))
}

// open starts the selected source. The returned client is the MQTT
// connection when one was opened, for reuse by the bridge.
func (f *sourceFlags) open(ctx context.Context, log logrus.FieldLogger) (intercept.Source, mqtt.Client, error) {
	f.resolve()
	switch {
	case f.replay != "":
		readings, err := provider.LoadReplayFile(f.replay)
		if err != nil {
			return nil, nil, err
		}
		log.WithFields(logrus.Fields{"file": f.replay, "readings": len(readings)}).Info("replaying readings")
		return provider.NewReplay(readings, provider.ReplayOptions{Loop: f.replayLoop}), nil, nil

	case f.serial != "":
		port, err := provider.OpenSerial(provider.SerialOptions{Port: f.serial, Baud: f.baud})
		if err != nil {
			return nil, nil, err
		}
		src := provider.NewNMEA(provider.NMEAOptions{UERE: f.uere, Log: log})
		go func() {
			if err := src.Run(ctx, port); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("nmea reader stopped")
			}
		}()
		context.AfterFunc(ctx, func() { _ = port.Close() })
		log.WithFields(logrus.Fields{"port": f.serial, "baud": f.baud}).Info("reading NMEA from serial")
		return src, nil, nil

	case f.broker != "":
		client, err := transport.Connect(f.broker, "geowatch-"+uuid.NewString()[:8])
		if err != nil {
			return nil, nil, err
		}
		src := provider.NewMQTT(client, f.locationTopic, log)
		if err := src.Start(ctx); err != nil {
			client.Disconnect(250)
			return nil, nil, err
		}
		return src, client, nil
	}
	return nil, nil, errNoSource
}

// loadPolicy loads the policy into a store and starts hot reload when the
// file's directory exists.
func loadPolicy(ctx context.Context, path string, log logrus.FieldLogger) (*policy.Store, error) {
	if path == "" {
		path = config.GetEnv(config.EnvPolicy, policy.DefaultPath())
	}
	cfg, hash, err := policy.LoadConfigWithHash(path)
	if err != nil {
		return nil, err
	}
	store := policy.NewStore(cfg, hash)
	log.WithFields(logrus.Fields{"path": path, "hash": hash}).Info("policy loaded")

	if path == "" {
		return store, nil
	}
	reloader, err := policy.NewReloader(store, path, log)
	if err != nil {
		log.WithError(err).Warn("hot-reload disabled")
		return store, nil
	}
	go func() { _ = reloader.Run(ctx) }()
	return store, nil
}

const alertFlushTimeout = 5 * time.Second

// sinkSet holds the reporters shared by host and monitor plus direct
// handles for events that are not verdicts.
type sinkSet struct {
	multi  report.Multi
	audit  *audit.Log
	alerts *alert.Dispatcher
	labels report.Labels
	log    logrus.FieldLogger
}

// newSinks builds log, audit and alert reporters.
func newSinks(store *policy.Store, labels report.Labels, auditPath string, log logrus.FieldLogger) (*sinkSet, error) {
	s := &sinkSet{
		multi:  report.Multi{report.NewLog(log, labels)},
		labels: labels,
		log:    log,
	}

	if auditPath != "" {
		al, err := audit.Open(auditPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		s.audit = al
		s.multi = append(s.multi, report.NewAudit(al, labels, log))
	}

	if d := alert.NewDispatcher(store.Config().Alerts, log); d != nil {
		s.alerts = d
		s.multi = append(s.multi, report.NewAlert(d, labels))
	}
	return s, nil
}

// event records a non-verdict event (developer options, spoofer apps) in
// the audit log and the webhooks.
func (s *sinkSet) event(auditEvent, alertEvent, reason string) {
	now := time.Now()
	session := ""
	if s.labels.Session != nil {
		session = s.labels.Session()
	}
	hash := ""
	if s.labels.PolicyHash != nil {
		hash = s.labels.PolicyHash()
	}

	if s.audit != nil {
		entry := audit.AuditEntry{
			Session:    session,
			Source:     s.labels.Source,
			Event:      auditEvent,
			Reason:     reason,
			PolicyHash: hash,
		}
		if err := s.audit.Record(entry.At(now)); err != nil {
			s.log.WithError(err).Error("audit write failed")
		}
	}
	if s.alerts != nil {
		s.alerts.Dispatch(alert.AlertEvent{
			Timestamp:  now.UTC().Format(audit.TimestampFormat),
			Session:    session,
			Type:       alertEvent,
			Issues:     []string{reason},
			PolicyHash: hash,
		})
	}
}

func (s *sinkSet) Close() {
	if s.alerts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), alertFlushTimeout)
		if err := s.alerts.Flush(ctx); err != nil {
			s.log.WithError(err).Warn("pending alerts not delivered")
		}
		cancel()
	}
	if s.audit != nil {
		_ = s.audit.Close()
	}
}
