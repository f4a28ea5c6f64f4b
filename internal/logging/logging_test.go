package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"chatty", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	logger, flush, err := New(dir, "logs/rdk.log", "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("documents reconciled", zap.Int("count", 3))
	logger.Info("polling started")
	flush()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "rdk.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "documents reconciled") || !strings.Contains(out, `"count":3`) {
		t.Errorf("log missing debug entry:\n%s", out)
	}
	if !strings.Contains(out, "polling started") {
		t.Errorf("log missing info entry:\n%s", out)
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	dir := t.TempDir()
	logger, flush, err := New(dir, "", "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	flush()

	data, err := os.ReadFile(filepath.Join(dir, DefaultFile))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn entry missing")
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(t.TempDir(), "", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
