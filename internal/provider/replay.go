package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/geowatch/internal/model"
)

// ErrExhausted is returned by a non-looping Replay after its last reading.
var ErrExhausted = errors.New("provider: replay exhausted")

// ReplayOptions configure a Replay.
type ReplayOptions struct {
	// Loop restarts from the first reading after the last one.
	Loop bool
	// Step is the delay between readings delivered to subscribers.
	// Default one second.
	Step time.Duration
}

// Replay returns a fixed sequence of readings, one per call.
type Replay struct {
	readings []model.RawReading
	opts     ReplayOptions

	mu   sync.Mutex
	next int
}

// NewReplay creates a replay of readings.
func NewReplay(readings []model.RawReading, opts ReplayOptions) *Replay {
	if opts.Step <= 0 {
		opts.Step = time.Second
	}
	return &Replay{
		readings: append([]model.RawReading(nil), readings...),
		opts:     opts,
	}
}

// LoadReplayFile reads a YAML or JSON list of readings.
func LoadReplayFile(path string) ([]model.RawReading, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	var readings []model.RawReading
	if err := yaml.Unmarshal(data, &readings); err != nil {
		return nil, fmt.Errorf("parse replay file: %w", err)
	}
	return readings, nil
}

// CurrentSample returns the next reading.
func (r *Replay) CurrentSample(ctx context.Context, _ model.AcquireOptions) (model.RawReading, error) {
	if err := ctx.Err(); err != nil {
		return model.RawReading{}, err
	}
	return r.advance()
}

// Remaining reports how many readings are left before exhaustion.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readings) - r.next
}

func (r *Replay) advance() (model.RawReading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.readings) {
		if !r.opts.Loop || len(r.readings) == 0 {
			return model.RawReading{}, ErrExhausted
		}
		r.next = 0
	}
	out := r.readings[r.next]
	r.next++
	return out, nil
}

// Subscribe delivers the remaining readings to fn, one per Step, until the
// replay is exhausted, ctx ends or the subscription is cancelled.
func (r *Replay) Subscribe(ctx context.Context, fn WatchFunc, _ model.AcquireOptions) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		ticker := time.NewTicker(r.opts.Step)
		defer ticker.Stop()
		for {
			if ctx.Err() != nil {
				return
			}
			reading, err := r.advance()
			if err != nil {
				return
			}
			fn(reading)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return subscriptionFunc(cancel), nil
}
