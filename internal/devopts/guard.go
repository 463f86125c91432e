package devopts

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/confirm"
	"github.com/ppiankov/geowatch/internal/logging"
)

// ErrEnabled is returned by Run after developer options were found on and
// the user was sent out of the app.
var ErrEnabled = errors.New("devopts: developer options enabled")

// GuardOptions configure a Guard.
type GuardOptions struct {
	// InitialDelay postpones the first check. Default none.
	InitialDelay time.Duration
	// Exit is called after the user acknowledged the prompt.
	Exit func()
	// OnCheck receives every probe result, errors counted as disabled.
	OnCheck func(enabled bool)
	Log     logrus.FieldLogger
}

// Guard polls a Probe and blocks the app when developer options are on.
type Guard struct {
	probe   Probe
	surface confirm.Surface
	opts    GuardOptions
	log     logrus.FieldLogger
}

// NewGuard creates a Guard.
func NewGuard(p Probe, s confirm.Surface, opts GuardOptions) *Guard {
	return &Guard{probe: p, surface: s, opts: opts, log: logging.OrNop(opts.Log)}
}

// Check runs the probe once. A probe error counts as disabled.
func (g *Guard) Check(ctx context.Context) bool {
	enabled, err := g.probe.Enabled(ctx)
	if err != nil {
		g.log.WithError(err).Debug("developer options probe failed, assuming disabled")
		enabled = false
	}
	if g.opts.OnCheck != nil {
		g.opts.OnCheck(enabled)
	}
	return enabled
}

// Run checks after InitialDelay and then every interval. On detection it
// stops polling, shows the exit-only prompt, calls Exit and returns ErrEnabled.
// It returns ctx.Err() when ctx ends first.
func (g *Guard) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("devopts: interval must be positive")
	}

	if d := g.opts.InitialDelay; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if g.Check(ctx) {
			return g.block(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Guard) block(ctx context.Context) error {
	g.log.Warn("developer options detected")
	if _, err := g.surface.Ask(ctx, Prompt()); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if g.opts.Exit != nil {
		g.opts.Exit()
	}
	return ErrEnabled
}

// Prompt is the non-dismissible notice shown when developer options are on.
func Prompt() confirm.Prompt {
	return confirm.Prompt{
		Title:       "Developer Options Detected",
		Body:        "The app cannot run while developer options are enabled. Please turn off developer options in your device settings.",
		Actions:     []confirm.Action{confirm.ActionExit},
		Dismissible: false,
	}
}
