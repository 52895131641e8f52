package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Pretty: false, Output: &buf}), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("failed to decode log line %q: %v", line, err)
	}
	return m
}

func TestNew(t *testing.T) {
	if l := New(DefaultConfig()); l == nil {
		t.Fatal("New() returned nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != InfoLevel {
		t.Errorf("Level = %v, want InfoLevel", cfg.Level)
	}
	if !cfg.Pretty {
		t.Error("Pretty should be true by default")
	}
	if cfg.Output == nil {
		t.Error("Output should not be nil")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.WithComponent("router").Info("test message")

	m := decodeLine(t, buf)
	if m["component"] != "router" {
		t.Errorf("component = %v, want router", m["component"])
	}
	if m["message"] != "test message" {
		t.Errorf("message = %v, want test message", m["message"])
	}
}

func TestLogger_ConfigComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: InfoLevel, Output: &buf, Component: "catalog"})

	l.Info("hello")

	m := decodeLine(t, &buf)
	if m["component"] != "catalog" {
		t.Errorf("component = %v, want catalog", m["component"])
	}
}

func TestLogger_WithFields(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.WithFields(map[string]interface{}{
		"api_id": "api-001",
		"count":  3,
	}).Info("fields")

	m := decodeLine(t, buf)
	if m["api_id"] != "api-001" {
		t.Errorf("api_id = %v, want api-001", m["api_id"])
	}
	if m["count"] != float64(3) {
		t.Errorf("count = %v, want 3", m["count"])
	}
}

func TestLogger_WithStageAndModel(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.WithStage("classify").WithModel("gpt-4o-mini").Info("call")

	m := decodeLine(t, buf)
	if m["stage"] != "classify" {
		t.Errorf("stage = %v, want classify", m["stage"])
	}
	if m["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", m["model"])
	}
}

func TestLogger_WithErrorAndDuration(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.WithError(errors.New("boom")).WithDuration(1500 * time.Millisecond).Info("failed")

	m := decodeLine(t, buf)
	if m["error"] != "boom" {
		t.Errorf("error = %v, want boom", m["error"])
	}
	if _, ok := m["duration"]; !ok {
		t.Error("duration field missing")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name    string
		level   Level
		logFn   func(l *Logger)
		wantOut bool
	}{
		{"debug hidden at info", InfoLevel, func(l *Logger) { l.Debug("x") }, false},
		{"info shown at info", InfoLevel, func(l *Logger) { l.Info("x") }, true},
		{"info hidden at warn", WarnLevel, func(l *Logger) { l.Infof("x %d", 1) }, false},
		{"warn shown at warn", WarnLevel, func(l *Logger) { l.Warnf("x %d", 1) }, true},
		{"error shown at warn", WarnLevel, func(l *Logger) { l.Errorf("x %d", 1) }, true},
		{"debug shown at debug", DebugLevel, func(l *Logger) { l.Debugf("x %d", 1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferLogger(tt.level)
			tt.logFn(l)
			if got := buf.Len() > 0; got != tt.wantOut {
				t.Errorf("output present = %v, want %v", got, tt.wantOut)
			}
		})
	}
}

func TestLogger_FallbackEvent(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.FallbackEvent("synthesize", "timeout", errors.New("deadline"))

	m := decodeLine(t, buf)
	if m["level"] != "warn" {
		t.Errorf("level = %v, want warn", m["level"])
	}
	if m["stage"] != "synthesize" || m["error_type"] != "timeout" {
		t.Errorf("unexpected fields: %v", m)
	}
}

func TestLogger_CallEvent(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel)
	l.CallEvent("catalog", "gpt-4o", time.Second, nil)
	if m := decodeLine(t, buf); m["level"] != "debug" {
		t.Errorf("successful call level = %v, want debug", m["level"])
	}

	buf.Reset()
	l.CallEvent("catalog", "gpt-4o", time.Second, errors.New("x"))
	if m := decodeLine(t, buf); m["level"] != "warn" {
		t.Errorf("failed call level = %v, want warn", m["level"])
	}
}

func TestLogger_SetLevel(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.SetLevel(ErrorLevel)
	l.Warn("hidden")

	if buf.Len() != 0 {
		t.Errorf("expected no output after raising level, got %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	// Must not panic.
	Nop().WithStage("x").Error("discarded")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"info", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"bogus", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_StatsEvent(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)
	l.StatsEvent(map[string]interface{}{"questions": 2, "uptime": "1s"})

	m := decodeLine(t, buf)
	if m["message"] != "Statistics" || m["questions"] != float64(2) || m["uptime"] != "1s" {
		t.Errorf("stats line = %v", m)
	}
}

func TestGlobalLogger(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	l, buf := newBufferLogger(InfoLevel)
	SetGlobal(l)

	if Global() != l {
		t.Error("Global() did not return the logger set with SetGlobal")
	}

	Errorf("global %s", "error")
	if !strings.Contains(buf.String(), "global error") {
		t.Errorf("global Errorf not written: %q", buf.String())
	}
}
