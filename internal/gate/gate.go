// Package gate runs the startup location check with a Retry/Exit loop.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/confirm"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
)

// States of a gate run.
const (
	StateChecking   = "checking"
	StateInvalid    = "invalid"
	StatePassed     = "passed"
	StateTerminated = "terminated"
)

// Events driving a gate run.
const (
	EventPass  = "pass"
	EventFail  = "fail"
	EventRetry = "retry"
	EventExit  = "exit"
)

// ErrTerminated is returned when the user chose Exit or attempts ran out.
var ErrTerminated = errors.New("gate: terminated")

// CheckFunc acquires one sample and evaluates it.
type CheckFunc func(ctx context.Context) (model.Verdict, error)

// Options configure a Gate.
type Options struct {
	// MaxAttempts bounds the number of checks in one run. 0 means unlimited.
	MaxAttempts int
	Log         logrus.FieldLogger
	// OnTransition is called after every state change.
	OnTransition func(from, to string)
}

// Gate blocks the app until a check passes or the user exits. A failed
// check or an acquisition error leads to a non-dismissible Retry/Exit prompt.
type Gate struct {
	check   CheckFunc
	surface confirm.Surface
	opts    Options
	log     logrus.FieldLogger
}

// New creates a Gate.
func New(check CheckFunc, surface confirm.Surface, opts Options) *Gate {
	return &Gate{
		check:   check,
		surface: surface,
		opts:    opts,
		log:     logging.OrNop(opts.Log),
	}
}

// Result describes a finished run.
type Result struct {
	Verdict  model.Verdict
	Attempts int
	State    string
}

func (g *Gate) newFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateChecking,
		fsm.Events{
			{Name: EventPass, Src: []string{StateChecking}, Dst: StatePassed},
			{Name: EventFail, Src: []string{StateChecking}, Dst: StateInvalid},
			{Name: EventRetry, Src: []string{StateInvalid}, Dst: StateChecking},
			{Name: EventExit, Src: []string{StateInvalid}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				g.log.WithFields(logrus.Fields{"from": e.Src, "to": e.Dst}).Debug("gate transition")
				if g.opts.OnTransition != nil {
					g.opts.OnTransition(e.Src, e.Dst)
				}
			},
		},
	)
}

// Run performs the startup check until it passes or terminates.
func (g *Gate) Run(ctx context.Context) (Result, error) {
	return g.run(ctx, nil)
}

// Resume starts from a verdict already obtained elsewhere, counting it as
// the first attempt. A valid verdict passes immediately.
func (g *Gate) Resume(ctx context.Context, v model.Verdict) (Result, error) {
	return g.run(ctx, &v)
}

func (g *Gate) run(ctx context.Context, first *model.Verdict) (Result, error) {
	machine := g.newFSM()
	res := Result{}

	for {
		// checking
		var v model.Verdict
		if first != nil {
			v, first = *first, nil
		} else {
			var err error
			v, err = g.check(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				g.log.WithError(err).Warn("startup location check failed")
				v = model.UnavailableVerdict(err)
			}
		}
		res.Attempts++
		res.Verdict = v

		if v.Valid {
			if err := machine.Event(ctx, EventPass); err != nil {
				return res, fmt.Errorf("gate pass: %w", err)
			}
			res.State = machine.Current()
			return res, nil
		}
		if err := machine.Event(ctx, EventFail); err != nil {
			return res, fmt.Errorf("gate fail: %w", err)
		}

		// invalid
		action, err := g.ask(ctx, v, res.Attempts)
		if err != nil {
			return res, err
		}
		if action == confirm.ActionRetry {
			if err := machine.Event(ctx, EventRetry); err != nil {
				return res, fmt.Errorf("gate retry: %w", err)
			}
			continue
		}
		if err := machine.Event(ctx, EventExit); err != nil {
			return res, fmt.Errorf("gate exit: %w", err)
		}
		res.State = machine.Current()
		return res, ErrTerminated
	}
}

// ask shows the prompt. Exhausted attempts offer only Exit.
func (g *Gate) ask(ctx context.Context, v model.Verdict, attempts int) (confirm.Action, error) {
	p := Prompt(v)
	if g.opts.MaxAttempts > 0 && attempts >= g.opts.MaxAttempts {
		p.Actions = []confirm.Action{confirm.ActionExit}
	}

	action, err := g.surface.Ask(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// A broken surface cannot be allowed to pass the gate.
		g.log.WithError(err).Error("confirmation failed, exiting")
		return confirm.ActionExit, nil
	}
	return action, nil
}

// Prompt builds the non-dismissible Retry/Exit confirmation for v.
func Prompt(v model.Verdict) confirm.Prompt {
	var b strings.Builder
	if v.Has(model.IssueLocationUnavailable) {
		b.WriteString("Unable to verify your location.\n")
	} else {
		b.WriteString("Suspicious location detected:\n")
	}
	for _, line := range v.Lines() {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("Please disable any fake GPS app, enable precise location and try again.")

	return confirm.Prompt{
		Title:       "Location Warning",
		Body:        b.String(),
		Actions:     []confirm.Action{confirm.ActionRetry, confirm.ActionExit},
		Dismissible: false,
	}
}
