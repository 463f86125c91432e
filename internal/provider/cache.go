// Package provider implements location sources: NMEA receivers on a serial
// port, readings relayed over MQTT and deterministic replays.
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/monitor"
)

// ErrNoFix is returned when no reading arrived before the deadline.
var ErrNoFix = monitor.ErrNoFix

// Watch types are shared with the monitor so page-side code need not import
// this package.
type (
	WatchFunc    = monitor.WatchFunc
	Subscription = monitor.Subscription
)

type subscriptionFunc func()

func (f subscriptionFunc) Unsubscribe() { f() }

// latest caches the most recent reading of a streaming source and wakes
// waiters and subscribers on every update.
type latest struct {
	now func() time.Time

	mu      sync.Mutex
	reading *model.RawReading
	at      time.Time
	updated chan struct{}
	subs    map[int]WatchFunc
	nextSub int
}

func newLatest(now func() time.Time) *latest {
	if now == nil {
		now = time.Now
	}
	return &latest{
		now:     now,
		updated: make(chan struct{}),
		subs:    make(map[int]WatchFunc),
	}
}

// publish stores r and notifies waiters and subscribers.
func (l *latest) publish(r model.RawReading) {
	l.mu.Lock()
	if r.Timestamp == 0 {
		r.Timestamp = l.now().UnixMilli()
	}
	l.reading = &r
	l.at = l.now()
	close(l.updated)
	l.updated = make(chan struct{})
	subs := make([]WatchFunc, 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(r)
	}
}

// current returns a cached reading no older than opts.MaxAge, or waits for
// the next one. MaxAge 0 always waits for a fresh reading.
func (l *latest) current(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	start := l.now()

	for {
		l.mu.Lock()
		if r := l.reading; r != nil {
			fresh := !l.at.Before(start)
			if opts.MaxAge > 0 {
				fresh = l.now().Sub(l.at) <= opts.MaxAge
			}
			if fresh {
				out := *r
				l.mu.Unlock()
				return out, nil
			}
		}
		wait := l.updated
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return model.RawReading{}, fmt.Errorf("%w: %w", ErrNoFix, ctx.Err())
		}
	}
}

// subscribe registers fn until ctx ends or Unsubscribe is called.
func (l *latest) subscribe(ctx context.Context, fn WatchFunc) Subscription {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()

	var once sync.Once
	remove := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
	release := context.AfterFunc(ctx, remove)
	return subscriptionFunc(func() {
		release()
		remove()
	})
}
