//go:build js && wasm

// geowatch-wasm runs the page-side validator inside the webview. It wraps
// navigator.geolocation so every position the page receives is checked,
// posts suspicious verdicts to window.ReactNativeWebView and exposes
// window.locationMonitoring.start/stop.
package main

import (
	"context"
	"sync"
	"syscall/js"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/bridge"
	"github.com/ppiankov/geowatch/internal/intercept"
	"github.com/ppiankov/geowatch/internal/logging"
	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/monitor"
	"github.com/ppiankov/geowatch/internal/policy"
)

func main() {
	log := logging.New("geowatch-wasm")
	ctx := context.Background()

	cfg := pagePolicy(log)
	store := policy.NewStore(cfg, "")

	geo, err := captureGeolocation()
	if err != nil {
		log.WithError(err).Error("location validation disabled")
		select {}
	}

	page := intercept.NewPage(geo, intercept.PageOptions{
		Policy:    store,
		Messenger: bridge.FuncMessenger(postMessage(log)),
		Log:       log,
	})

	wrapGeolocation(ctx, geo, page.Interceptor)
	exposeMonitoring(page.Monitor(), cfg.Monitor.Interval, log)
	if err := page.Install(ctx, 0); err != nil {
		log.WithError(err).Warn("continuous monitoring not started")
	}
	log.Info("location validation installed")

	select {}
}

// pagePolicy reads window.geowatchPolicy (YAML or JSON text) when the host
// injected one, else the defaults.
func pagePolicy(log logrus.FieldLogger) *policy.PolicyConfig {
	v := js.Global().Get("geowatchPolicy")
	if v.Type() != js.TypeString {
		return policy.DefaultConfig()
	}
	cfg, err := policy.ParseConfig([]byte(v.String()))
	if err != nil {
		log.WithError(err).Warn("injected policy rejected, using defaults")
		return policy.DefaultConfig()
	}
	return cfg
}

// postMessage sends payloads through the React Native bridge. Outside a
// React Native webview the payload is only logged.
func postMessage(log logrus.FieldLogger) func(context.Context, []byte) error {
	return func(_ context.Context, payload []byte) error {
		rn := js.Global().Get("ReactNativeWebView")
		if rn.IsUndefined() || rn.IsNull() {
			log.WithField("payload", string(payload)).Warn("no ReactNativeWebView bridge")
			return nil
		}
		rn.Call("postMessage", string(payload))
		return nil
	}
}

// wrapGeolocation replaces getCurrentPosition and watchPosition. The page
// always receives the original position object; validation runs beside it.
func wrapGeolocation(ctx context.Context, geo *geolocation, ic *intercept.Interceptor) {
	target := geo.target

	target.Set("getCurrentPosition", js.FuncOf(func(this js.Value, args []js.Value) any {
		success, failure, options := callbackArgs(args)
		var onSuccess, onFailure js.Func
		var once sync.Once
		release := func() {
			once.Do(func() {
				onSuccess.Release()
				onFailure.Release()
			})
		}
		onSuccess = js.FuncOf(func(this js.Value, a []js.Value) any {
			defer release()
			pos := a[0]
			go ic.Inspect(ctx, readingFrom(pos), policy.ModeFirstPass)
			if success.Type() == js.TypeFunction {
				success.Invoke(pos)
			}
			return nil
		})
		onFailure = js.FuncOf(func(this js.Value, a []js.Value) any {
			defer release()
			if failure.Type() == js.TypeFunction && len(a) > 0 {
				failure.Invoke(a[0])
			}
			return nil
		})
		geo.getCurrentPosition.Invoke(onSuccess, onFailure, options)
		return nil
	}))

	target.Set("watchPosition", js.FuncOf(func(this js.Value, args []js.Value) any {
		success, failure, options := callbackArgs(args)
		onSuccess := js.FuncOf(func(this js.Value, a []js.Value) any {
			pos := a[0]
			go ic.Inspect(ctx, readingFrom(pos), policy.ModeContinuous)
			if success.Type() == js.TypeFunction {
				success.Invoke(pos)
			}
			return nil
		})
		return geo.watchPosition.Invoke(onSuccess, failure, options)
	}))
}

func callbackArgs(args []js.Value) (success, failure, options js.Value) {
	success, failure, options = js.Undefined(), js.Undefined(), js.Undefined()
	if len(args) > 0 {
		success = args[0]
	}
	if len(args) > 1 {
		failure = args[1]
	}
	if len(args) > 2 {
		options = args[2]
	}
	return success, failure, options
}

// exposeMonitoring installs window.locationMonitoring. start() without an
// interval uses the policy's monitor interval.
func exposeMonitoring(mon *monitor.Monitor, interval time.Duration, log logrus.FieldLogger) {
	obj := js.Global().Get("Object").New()

	obj.Set("start", js.FuncOf(func(this js.Value, args []js.Value) any {
		every := interval
		if len(args) > 0 && args[0].Type() == js.TypeNumber && args[0].Int() > 0 {
			every = time.Duration(args[0].Int()) * time.Millisecond
		}
		if err := mon.Start(every); err != nil {
			log.WithError(err).Warn("monitoring not started")
		}
		return nil
	}))
	obj.Set("stop", js.FuncOf(func(this js.Value, args []js.Value) any {
		mon.Stop()
		return nil
	}))
	obj.Set("isRunning", js.FuncOf(func(this js.Value, args []js.Value) any {
		return mon.Running()
	}))
	obj.Set("lastSample", js.FuncOf(func(this js.Value, args []js.Value) any {
		s, ok := mon.LastSample()
		if !ok {
			return js.Null()
		}
		return sampleObject(s)
	}))

	js.Global().Set("locationMonitoring", obj)
}

func sampleObject(s model.Sample) map[string]any {
	obj := map[string]any{
		"latitude":  s.Latitude,
		"longitude": s.Longitude,
		"provider":  s.Provider,
		"mocked":    s.Mocked,
		"timestamp": s.Timestamp,
	}
	for k, v := range map[string]*float64{"accuracy": s.Accuracy, "altitude": s.Altitude, "speed": s.Speed} {
		if v != nil {
			obj[k] = *v
		} else {
			obj[k] = nil
		}
	}
	return obj
}
