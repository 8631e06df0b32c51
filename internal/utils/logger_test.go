package utils

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// TestGetLogger verifies singleton pattern - same instance returned
func TestGetLogger(t *testing.T) {
	logger1 := GetLogger()
	logger2 := GetLogger()

	if logger1 != logger2 {
		t.Error("GetLogger() should return same singleton instance")
	}
}

// TestLoggerDefaultVerboseMode verifies verbose is false by default
func TestLoggerDefaultVerboseMode(t *testing.T) {
	logger := NewLogger(&syncBuffer{})
	if logger.IsVerbose() {
		t.Error("Logger should have verbose=false by default")
	}
}

// TestSetVerboseMode verifies SetVerboseMode changes the global logger state
func TestSetVerboseMode(t *testing.T) {
	logger := GetLogger()
	defer logger.SetVerbose(false)

	SetVerboseMode(true)
	if !logger.IsVerbose() {
		t.Error("SetVerboseMode(true) should enable verbose mode")
	}

	SetVerboseMode(false)
	if logger.IsVerbose() {
		t.Error("SetVerboseMode(false) should disable verbose mode")
	}
}

// TestDebugOnlyShownWhenVerbose verifies Debug output only when verbose=true
func TestDebugOnlyShownWhenVerbose(t *testing.T) {
	buf := &syncBuffer{}
	logger := NewLogger(buf)

	logger.Debug("test message")
	if buf.String() != "" {
		t.Errorf("Debug should not output when verbose=false, got: %s", buf.String())
	}

	logger.SetVerbose(true)
	logger.Debug("test message %s", "verbose")

	out := buf.String()
	if !strings.Contains(out, "DEBUG") {
		t.Errorf("Debug should output DEBUG level when verbose=true, got: %s", out)
	}
	if !strings.Contains(out, "test message verbose") {
		t.Errorf("Debug should output formatted message, got: %s", out)
	}
}

// TestLogLevels verifies Info, Warn and Error are always shown with their level
func TestLogLevels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *Logger)
		level string
		msg   string
	}{
		{"info", func(l *Logger) { l.Info("info %d", 1) }, "INFO", "info 1"},
		{"warn", func(l *Logger) { l.Warn("careful") }, "WARN", "careful"},
		{"error", func(l *Logger) { l.Error("broken: %v", "upstream") }, "ERROR", "broken: upstream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &syncBuffer{}
			logger := NewLogger(buf)
			tt.log(logger)

			out := buf.String()
			if !strings.Contains(out, tt.level) {
				t.Errorf("expected level %s in output, got: %s", tt.level, out)
			}
			if !strings.Contains(out, tt.msg) {
				t.Errorf("expected message %q in output, got: %s", tt.msg, out)
			}
		})
	}
}

// TestLogTimestampFormat verifies lines start with an HH:MM:SS timestamp
func TestLogTimestampFormat(t *testing.T) {
	buf := &syncBuffer{}
	logger := NewLogger(buf)
	logger.Info("stamped")

	if !regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\s`).MatchString(buf.String()) {
		t.Errorf("expected HH:MM:SS prefix, got: %q", buf.String())
	}
}

// TestLoggerWithFields verifies structured fields reach the output
func TestLoggerWithFields(t *testing.T) {
	buf := &syncBuffer{}
	logger := NewLogger(buf)

	logger.With(zap.String("request_id", "abc-123")).Info("served")

	out := buf.String()
	if !strings.Contains(out, "abc-123") || !strings.Contains(out, "served") {
		t.Errorf("expected field and message in output, got: %s", out)
	}
}

// TestLoggerSetOutput verifies output can be redirected without losing level
func TestLoggerSetOutput(t *testing.T) {
	first := &syncBuffer{}
	second := &syncBuffer{}
	logger := NewLogger(first)
	logger.SetVerbose(true)

	logger.SetOutput(second)
	logger.Debug("redirected")

	if first.String() != "" {
		t.Errorf("old output should be unused, got: %s", first.String())
	}
	if !strings.Contains(second.String(), "redirected") {
		t.Errorf("new output should receive debug line, got: %s", second.String())
	}
}

// TestLoggerThreadSafety verifies concurrent logging and level switching
func TestLoggerThreadSafety(t *testing.T) {
	buf := &syncBuffer{}
	logger := NewLogger(buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			logger.Info("line %d", i)
		}(i)
		go func(i int) {
			defer wg.Done()
			logger.SetVerbose(i%2 == 0)
			_ = logger.IsVerbose()
		}(i)
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "INFO"); got != 50 {
		t.Errorf("expected 50 info lines, got %d", got)
	}
}
