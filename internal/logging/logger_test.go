package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "explicit output",
			config: &Config{
				Level:  LevelInfo,
				Output: &bytes.Buffer{},
			},
		},
		{
			name: "debug level",
			config: &Config{
				Level:  LevelDebug,
				Output: &bytes.Buffer{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("visible warning")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("Expected debug/info suppressed at LevelWarn, got: %s", output)
	}
	if !strings.Contains(output, "visible warning") {
		t.Errorf("Expected warning in output, got: %s", output)
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	// Worker context
	workerLogger := logger.WithWorker(0x42)
	workerLogger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "worker=0x0042") {
		t.Errorf("Expected worker=0x0042 in output, got: %s", output)
	}

	// Chained node context keeps the worker context
	buf.Reset()
	nodeLogger := workerLogger.WithNode(1)
	nodeLogger.Info("node message")

	output = buf.String()
	if !strings.Contains(output, "worker=0x0042") {
		t.Errorf("Expected worker=0x0042 in chained logger output, got: %s", output)
	}
	if !strings.Contains(output, "node=1") {
		t.Errorf("Expected node=1 in output, got: %s", output)
	}
}

func TestLoggerWithTimer(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	timerLogger := logger.WithTimer(123)
	timerLogger.Debug("arming timer")

	output := buf.String()
	if !strings.Contains(output, "timer=0x007b") {
		t.Errorf("Expected timer=0x007b in output, got: %s", output)
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	testErr := errors.New("test error")
	errorLogger := logger.WithError(testErr)
	errorLogger.Error("operation failed")

	output := buf.String()
	if !strings.Contains(output, "test error") {
		t.Errorf("Expected 'test error' in output, got: %s", output)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	t.Cleanup(func() { SetDefault(NewLogger(nil)) })

	// Test debug message (should appear since we set LevelDebug)
	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("Expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}

	// Test info message
	buf.Reset()
	Info("info message")
	output = buf.String()
	if !strings.Contains(output, "info message") {
		t.Errorf("Expected info message, got: %s", output)
	}

	// Test warn message
	buf.Reset()
	Warn("warning message")
	output = buf.String()
	if !strings.Contains(output, "warning message") {
		t.Errorf("Expected warning message, got: %s", output)
	}

	// Test error message
	buf.Reset()
	Error("error message")
	output = buf.String()
	if !strings.Contains(output, "error message") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestFatalBannerNamesCallSite(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	t.Cleanup(func() { SetDefault(NewLogger(nil)) })

	FatalBanner(0, "something irrecoverable")

	output := buf.String()
	if !strings.Contains(output, "FATAL EXCEPTION RAISED from") {
		t.Errorf("Expected fatal banner, got: %s", output)
	}
	if !strings.Contains(output, "logger_test.go") {
		t.Errorf("Expected the raising file in the banner, got: %s", output)
	}
	if !strings.Contains(output, "something irrecoverable") {
		t.Errorf("Expected the user message after the banner, got: %s", output)
	}
}
