package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// ParseLevel
// ---------------------------------------------------------------------------

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// SetupLogger
// ---------------------------------------------------------------------------

func TestSetupLogger_DoesNotPanicForAllCombinations(t *testing.T) {
	var buf bytes.Buffer
	for _, format := range []string{"json", "text", "JSON", "", "unknown"} {
		for _, level := range []string{"debug", "info", "warning", "ERROR", ""} {
			setupLogger(&buf, format, level)
		}
	}
	setupLogger(&buf, "text", "error")
}

func TestSetupLogger_JSONFormat_ProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "json", "info")
	t.Cleanup(func() { setupLogger(&bytes.Buffer{}, "text", "error") })

	buf.Reset()
	slog.Info("scan recorded", "short_code", "abc12345")

	var rec map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "scan recorded" || rec["short_code"] != "abc12345" {
		t.Errorf("record = %v", rec)
	}
}

// ---------------------------------------------------------------------------
// SetLogLevel
// ---------------------------------------------------------------------------

func TestSetLogLevel_ChangesInstalledLogger(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "text", "warn")
	t.Cleanup(func() { setupLogger(&bytes.Buffer{}, "text", "error") })

	buf.Reset()
	slog.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info record emitted at warn level: %q", buf.String())
	}

	if !SetLogLevel("debug") {
		t.Error("SetLogLevel(debug) = false, want true")
	}
	if SetLogLevel("debug") {
		t.Error("second SetLogLevel(debug) = true, want false")
	}
	if LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, want debug", LogLevel())
	}

	buf.Reset()
	slog.Debug("visible now")
	if !strings.Contains(buf.String(), "visible now") {
		t.Errorf("debug record missing after level change: %q", buf.String())
	}
}
