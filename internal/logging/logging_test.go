package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	if _, err := New("debug", "console"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if _, err := New("info", "json"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if _, err := New("loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewWithSink(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithSink("info", "json", zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("analysis started")

	out := buf.String()
	if !strings.Contains(out, `"message":"analysis started"`) {
		t.Errorf("expected info entry in sink, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug entry to be filtered, got %q", out)
	}
}
