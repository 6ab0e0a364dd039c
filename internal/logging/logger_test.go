package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	logger, err := New(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer logger.Close()
	for i := 0; i < 5; i++ {
		logger.Info("entry-%d", i)
	}
	lines, total := logger.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestMinimumLevelFilters(t *testing.T) {
	logger, err := New(t.TempDir(), LevelWarn)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer logger.Close()
	var echo bytes.Buffer
	logger.SetEcho(&echo)

	logger.Debug("hidden debug")
	logger.Printf("hidden info")
	logger.Warn("shown %s", "warning")
	logger.Error("shown error")

	lines, total := logger.Tail(10)
	if total != 2 {
		t.Fatalf("total lines = %d, want 2: %v", total, lines)
	}
	if !strings.Contains(lines[0], "WARN  shown warning") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if strings.Count(echo.String(), "\n") != 2 {
		t.Fatalf("expected two echoed lines, got %q", echo.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored")
	if lines, total := logger.Tail(3); lines != nil || total != 0 {
		t.Fatalf("nil logger tail = %v, %d", lines, total)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("close nil logger: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel(" warn ")
	if err != nil || level != LevelWarn {
		t.Fatalf("ParseLevel(warn) = %v, %v", level, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
