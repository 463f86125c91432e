package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithOutputJSONCarriesService(t *testing.T) {
	t.Setenv("GEOWATCH_LOG_FORMAT", "json")
	t.Setenv("GEOWATCH_LOG_LEVEL", "info")

	var buf bytes.Buffer
	l := NewWithOutput("monitor", &buf)
	l.WithField("k", "v").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "monitor" {
		t.Errorf("expected service=monitor, got %v", entry["service"])
	}
	if entry["k"] != "v" {
		t.Errorf("expected k=v, got %v", entry["k"])
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("GEOWATCH_LOG_LEVEL", "warn")

	var buf bytes.Buffer
	l := NewWithOutput("svc", &buf)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info suppressed at warn level, got %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected non-nil logger")
	}
	OrNop(nil).Info("discarded")
}
