package alert

import (
	"context"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/logging"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	sender  *Sender
	log     logrus.FieldLogger
	pending sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []AlertConfig, log logrus.FieldLogger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{
		configs: configs,
		sender:  NewSender(DefaultRetry()),
		log:     logging.OrNop(log),
	}
}

// Dispatch sends the event to every webhook subscribed to event.Type.
// Delivery runs in the background; Flush waits for it.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	for _, cfg := range d.configs {
		if !subscribed(cfg.Events, event.Type) {
			continue
		}
		d.pending.Add(1)
		go func(cfg AlertConfig) {
			defer d.pending.Done()
			if err := d.sender.Send(context.Background(), cfg, event); err != nil {
				d.log.WithError(err).WithFields(logrus.Fields{
					"type":   event.Type,
					"format": cfg.Format,
				}).Warn("alert delivery failed")
			}
		}(cfg)
	}
}

// Flush waits for in-flight deliveries or until ctx is done. The host calls
// it before exiting so a terminating verdict still reaches its webhooks.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// subscribed reports whether events names typ. "*" subscribes to all.
func subscribed(events []string, typ string) bool {
	return slices.Contains(events, typ) || slices.Contains(events, "*")
}
