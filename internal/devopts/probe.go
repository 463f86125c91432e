// Package devopts detects enabled Android developer options and blocks the
// app while they are on.
package devopts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Probe reports whether developer options are enabled.
type Probe interface {
	Enabled(ctx context.Context) (bool, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (bool, error)

// Enabled calls f.
func (f ProbeFunc) Enabled(ctx context.Context) (bool, error) { return f(ctx) }

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Global settings that count as developer options being on.
var settings = []string{"development_settings_enabled", "adb_enabled"}

// ADB queries a device through the adb tool.
type ADB struct {
	// Path to adb. Default "adb".
	Path string
	// Serial selects a device when several are attached.
	Serial string
	Run    Runner
}

// NewADB creates an ADB probe using os/exec.
func NewADB(serial string) *ADB {
	return &ADB{Path: "adb", Serial: serial, Run: ExecRunner}
}

func (a *ADB) shell(ctx context.Context, args ...string) ([]byte, error) {
	path := a.Path
	if path == "" {
		path = "adb"
	}
	run := a.Run
	if run == nil {
		run = ExecRunner
	}
	full := []string{}
	if a.Serial != "" {
		full = append(full, "-s", a.Serial)
	}
	full = append(full, "shell")
	full = append(full, args...)
	return run(ctx, path, full...)
}

// Enabled reports true when development settings or USB debugging is on.
func (a *ADB) Enabled(ctx context.Context) (bool, error) {
	for _, name := range settings {
		out, err := a.shell(ctx, "settings", "get", "global", name)
		if err != nil {
			return false, err
		}
		if v := strings.TrimSpace(string(out)); v != "" && v != "0" && v != "null" {
			return true, nil
		}
	}
	return false, nil
}

// InstalledPackages lists package names from `pm list packages`.
func (a *ADB) InstalledPackages(ctx context.Context) ([]string, error) {
	out, err := a.shell(ctx, "pm", "list", "packages")
	if err != nil {
		return nil, err
	}
	var pkgs []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if name, ok := strings.CutPrefix(line, "package:"); ok && name != "" {
			pkgs = append(pkgs, name)
		}
	}
	return pkgs, scanner.Err()
}

// PackageLister lists installed package names.
type PackageLister interface {
	InstalledPackages(ctx context.Context) ([]string, error)
}

// InstalledAmong returns the candidates that are installed, in candidate order.
func InstalledAmong(ctx context.Context, l PackageLister, candidates []string) ([]string, error) {
	pkgs, err := l.InstalledPackages(ctx)
	if err != nil {
		return nil, err
	}
	installed := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		installed[p] = true
	}
	var found []string
	for _, c := range candidates {
		if installed[strings.TrimSpace(c)] {
			found = append(found, c)
		}
	}
	return found, nil
}
