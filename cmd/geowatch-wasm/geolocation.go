//go:build js && wasm

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/monitor"
)

// geolocation calls the browser's original navigator.geolocation methods,
// captured before they are wrapped.
type geolocation struct {
	getCurrentPosition js.Value
	watchPosition      js.Value
	clearWatch         js.Value
	target             js.Value
}

func captureGeolocation() (*geolocation, error) {
	geo := js.Global().Get("navigator").Get("geolocation")
	if geo.IsUndefined() || geo.IsNull() {
		return nil, errors.New("navigator.geolocation is not available")
	}
	return &geolocation{
		getCurrentPosition: geo.Get("getCurrentPosition").Call("bind", geo),
		watchPosition:      geo.Get("watchPosition").Call("bind", geo),
		clearWatch:         geo.Get("clearWatch").Call("bind", geo),
		target:             geo,
	}, nil
}

// CurrentSample requests one position from the unwrapped browser API.
func (g *geolocation) CurrentSample(ctx context.Context, opts model.AcquireOptions) (model.RawReading, error) {
	type result struct {
		raw model.RawReading
		err error
	}
	ch := make(chan result, 1)

	// Callbacks release themselves once either fires. JS enforces the
	// timeout option, so one of them always runs.
	var success, failure js.Func
	var once sync.Once
	release := func() {
		once.Do(func() {
			success.Release()
			failure.Release()
		})
	}
	success = js.FuncOf(func(this js.Value, args []js.Value) any {
		ch <- result{raw: readingFrom(args[0])}
		release()
		return nil
	})
	failure = js.FuncOf(func(this js.Value, args []js.Value) any {
		ch <- result{err: positionError(args[0])}
		release()
		return nil
	})

	g.getCurrentPosition.Invoke(success, failure, jsOptions(opts))

	select {
	case <-ctx.Done():
		return model.RawReading{}, fmt.Errorf("%w: %w", monitor.ErrNoFix, ctx.Err())
	case r := <-ch:
		return r.raw, r.err
	}
}

// Subscribe starts an original watchPosition and clears it on Unsubscribe
// or when ctx ends.
func (g *geolocation) Subscribe(ctx context.Context, fn monitor.WatchFunc, opts model.AcquireOptions) (monitor.Subscription, error) {
	cb := js.FuncOf(func(this js.Value, args []js.Value) any {
		fn(readingFrom(args[0]))
		return nil
	})
	id := g.watchPosition.Invoke(cb, js.Null(), jsOptions(opts))

	var once sync.Once
	stop := func() {
		once.Do(func() {
			g.clearWatch.Invoke(id)
			cb.Release()
		})
	}
	release := context.AfterFunc(ctx, stop)
	return subscription(func() {
		release()
		stop()
	}), nil
}

type subscription func()

func (s subscription) Unsubscribe() { s() }

func jsOptions(opts model.AcquireOptions) map[string]any {
	return map[string]any{
		"enableHighAccuracy": opts.HighAccuracy,
		"timeout":            opts.Timeout.Milliseconds(),
		"maximumAge":         opts.MaxAge.Milliseconds(),
	}
}

// readingFrom converts a GeolocationPosition. Android webviews may add
// provider and mocked fields on the position or its coords.
func readingFrom(pos js.Value) model.RawReading {
	coords := pos.Get("coords")
	raw := model.RawReading{
		Latitude:  coords.Get("latitude").Float(),
		Longitude: coords.Get("longitude").Float(),
		Accuracy:  optionalFloat(coords.Get("accuracy")),
		Altitude:  optionalFloat(coords.Get("altitude")),
		Speed:     optionalFloat(coords.Get("speed")),
		Timestamp: int64(pos.Get("timestamp").Float()),
	}
	for _, v := range []js.Value{pos, coords} {
		if p := v.Get("provider"); p.Type() == js.TypeString {
			raw.Provider = p.String()
		}
		if m := v.Get("mocked"); m.Type() == js.TypeBoolean {
			raw.Mocked = model.Bool(m.Bool())
		}
	}
	return raw
}

func optionalFloat(v js.Value) *float64 {
	if v.Type() != js.TypeNumber {
		return nil
	}
	return model.Float(v.Float())
}

func positionError(v js.Value) error {
	if v.IsUndefined() || v.IsNull() {
		return monitor.ErrNoFix
	}
	return fmt.Errorf("%w: %s (code %d)", monitor.ErrNoFix, v.Get("message").String(), v.Get("code").Int())
}
