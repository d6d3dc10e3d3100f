package pkg

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)

	tests := []struct {
		name  string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLogLevel(tt.level)
			if got := GetLogLevel(); got != tt.level {
				t.Errorf("GetLogLevel() = %v, want %v", got, tt.level)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParameter) {
					t.Errorf("ParseLogLevel(%q) error = %v, want ErrInvalidParameter", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLogLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, nil)
	if logger == nil {
		t.Fatal("NewJSONLogger returned nil")
	}

	logger.Warn("test message")
	output := buf.String()
	if !strings.Contains(output, `"msg":"test message"`) {
		t.Errorf("JSON log output missing message: %s", output)
	}
}

func TestLogDebug(t *testing.T) {
	var buf bytes.Buffer
	original := DefaultLogger
	originalLevel := GetLogLevel()
	defer func() {
		SetLogger(original)
		SetLogLevel(originalLevel)
	}()

	SetLogLevel(slog.LevelDebug)
	SetLogger(NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogDebug(ComponentTx, "run handed off", "bytes", 64)
	output := buf.String()
	if !strings.Contains(output, "run handed off") {
		t.Errorf("debug log missing message: %s", output)
	}
	if !strings.Contains(output, "component=tx") {
		t.Errorf("debug log missing component: %s", output)
	}
	if !strings.Contains(output, "bytes=64") {
		t.Errorf("debug log missing attribute: %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name      string
		log       func(Component, string, ...any)
		component Component
	}{
		{"info", LogInfo, ComponentChannel},
		{"warn", LogWarn, ComponentRx},
		{"error", LogError, ComponentTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			original := DefaultLogger
			defer SetLogger(original)

			SetLogger(NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

			tt.log(tt.component, tt.name+" message")
			output := buf.String()
			if !strings.Contains(output, tt.name+" message") {
				t.Errorf("%s log missing message: %s", tt.name, output)
			}
			if !strings.Contains(output, "component="+string(tt.component)) {
				t.Errorf("%s log missing component: %s", tt.name, output)
			}
		})
	}
}
