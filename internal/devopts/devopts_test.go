package devopts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/geowatch/internal/confirm"
)

// fakeRunner answers adb invocations from a table keyed by the joined args.
type fakeRunner struct {
	mu    sync.Mutex
	out   map[string]string
	err   error
	calls []string
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out[key]), nil
}

func TestADBEnabled(t *testing.T) {
	tests := []struct {
		name    string
		devel   string
		adb     string
		enabled bool
	}{
		{"both off", "0\n", "0\n", false},
		{"developer settings on", "1\n", "0\n", true},
		{"usb debugging on", "0\n", "1\n", true},
		{"unset", "null\n", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeRunner{out: map[string]string{
				"adb shell settings get global development_settings_enabled": tt.devel,
				"adb shell settings get global adb_enabled":                  tt.adb,
			}}
			a := &ADB{Run: f.run}
			got, err := a.Enabled(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.enabled {
				t.Errorf("expected %v, got %v", tt.enabled, got)
			}
		})
	}
}

func TestADBSerialSelectsDevice(t *testing.T) {
	f := &fakeRunner{out: map[string]string{}}
	a := &ADB{Path: "/opt/adb", Serial: "emulator-5554", Run: f.run}
	a.Enabled(context.Background())

	if len(f.calls) == 0 || f.calls[0] != "/opt/adb -s emulator-5554 shell settings get global development_settings_enabled" {
		t.Errorf("unexpected invocation %v", f.calls)
	}
}

func TestADBErrorPropagates(t *testing.T) {
	a := &ADB{Run: (&fakeRunner{err: errors.New("no devices")}).run}
	if _, err := a.Enabled(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestInstalledAmong(t *testing.T) {
	f := &fakeRunner{out: map[string]string{
		"adb shell pm list packages": "package:com.android.chrome\npackage:com.lexa.fakegps\n\ngarbage\npackage:com.whatsapp\n",
	}}
	a := &ADB{Run: f.run}

	pkgs, err := a.InstalledPackages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 3 {
		t.Fatalf("expected 3 packages, got %v", pkgs)
	}

	found, err := InstalledAmong(context.Background(), a, []string{"com.evezzon.fakegps", "com.lexa.fakegps"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0] != "com.lexa.fakegps" {
		t.Errorf("expected com.lexa.fakegps, got %v", found)
	}
}

func TestCheckTreatsErrorAsDisabled(t *testing.T) {
	var seen []bool
	g := NewGuard(ProbeFunc(func(context.Context) (bool, error) {
		return true, errors.New("boom")
	}), confirm.NewScripted(), GuardOptions{OnCheck: func(b bool) { seen = append(seen, b) }})

	if g.Check(context.Background()) {
		t.Error("probe error must count as disabled")
	}
	if len(seen) != 1 || seen[0] {
		t.Errorf("expected OnCheck(false), got %v", seen)
	}
}

func TestRunBlocksWhenEnabled(t *testing.T) {
	var mu sync.Mutex
	checks := 0
	probe := ProbeFunc(func(context.Context) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		checks++
		return checks >= 3, nil
	})
	surface := confirm.NewScripted(confirm.ActionExit)
	exited := false
	g := NewGuard(probe, surface, GuardOptions{Exit: func() { exited = true }})

	err := g.Run(context.Background(), 5*time.Millisecond)
	if !errors.Is(err, ErrEnabled) {
		t.Fatalf("expected ErrEnabled, got %v", err)
	}
	if !exited {
		t.Error("expected exit hook")
	}
	if checks != 3 {
		t.Errorf("expected polling to stop at detection, got %d checks", checks)
	}

	prompts := surface.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(prompts))
	}
	p := prompts[0]
	if p.Dismissible || len(p.Actions) != 1 || p.Actions[0] != confirm.ActionExit {
		t.Errorf("expected exit-only non-dismissible prompt, got %+v", p)
	}
}

func TestRunExitsEvenIfSurfaceFails(t *testing.T) {
	exited := false
	g := NewGuard(ProbeFunc(func(context.Context) (bool, error) { return true, nil }),
		confirm.NewScripted(), GuardOptions{Exit: func() { exited = true }})

	if err := g.Run(context.Background(), time.Second); !errors.Is(err, ErrEnabled) {
		t.Fatalf("expected ErrEnabled, got %v", err)
	}
	if !exited {
		t.Error("a broken surface must not keep the app running")
	}
}

func TestRunInitialDelayAndCancel(t *testing.T) {
	calls := 0
	g := NewGuard(ProbeFunc(func(context.Context) (bool, error) {
		calls++
		return false, nil
	}), confirm.NewScripted(), GuardOptions{InitialDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Run(ctx, time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if calls != 0 {
		t.Errorf("no check expected during initial delay, got %d", calls)
	}
}

func TestRunRejectsBadInterval(t *testing.T) {
	g := NewGuard(ProbeFunc(func(context.Context) (bool, error) { return false, nil }), confirm.NewScripted(), GuardOptions{})
	if err := g.Run(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
