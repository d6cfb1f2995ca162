package logger

import (
	"os"
	"strings"
	"testing"

	"github.com/5usu/depthcam/internal/config"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(&config.Config{LogDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestLogger_WritesLevelFiles(t *testing.T) {
	l := newTestLogger(t)

	l.Info("frame %d presented", 7)
	l.Warning("estimator unavailable")
	l.Error("encode failed: %v", "boom")

	tests := []struct {
		file   string
		prefix string
		text   string
	}{
		{InfoFile, "INFO", "frame 7 presented"},
		{WarningFile, "WARNING", "estimator unavailable"},
		{ErrorFile, "ERROR", "encode failed: boom"},
	}
	for _, tt := range tests {
		data, err := os.ReadFile(l.Path(tt.file))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", tt.file, err)
		}
		content := string(data)
		if !strings.HasPrefix(content, tt.prefix) || !strings.Contains(content, tt.text) {
			t.Errorf("%s: unexpected content %q", tt.file, content)
		}
		if !strings.Contains(content, "logger_test.go") {
			t.Errorf("%s: expected caller location, got %q", tt.file, content)
		}
	}
}

func TestLogger_CleanLogs(t *testing.T) {
	l := newTestLogger(t)
	l.Info("something")

	if err := l.CleanLogs(InfoFile); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}
	data, err := os.ReadFile(l.Path(InfoFile))
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty log, got %q", data)
	}

	l.Info("after clean")
	data, _ = os.ReadFile(l.Path(InfoFile))
	if !strings.Contains(string(data), "after clean") {
		t.Errorf("Expected logging to continue after clean, got %q", data)
	}
}

func TestLogger_CleanMissingFile(t *testing.T) {
	l := newTestLogger(t)
	if err := l.CleanLogs("missing.log"); err == nil {
		t.Error("Expected error for missing file")
	}
}
