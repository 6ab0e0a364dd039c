package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

// ParseLevel maps a config value ("info", "WARN", ...) to a Level.
func ParseLevel(value string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := levelRank[level]; !ok {
		return "", fmt.Errorf("logging: unknown level %q", value)
	}
	return level, nil
}

// FileName is the log file written inside the logs directory.
const FileName = "hhmm.log"

// Logger appends timestamped, leveled lines to .hhmm/logs/hhmm.log so users
// can inspect build failures after the terminal output is gone.
type Logger struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	min   Level
	echo  io.Writer
	clock func() time.Time
}

// New creates (or reuses) the log file inside logDir.
func New(logDir string, min Level) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	if _, ok := levelRank[min]; !ok {
		min = LevelInfo
	}
	path := filepath.Join(logDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{path: path, file: f, min: min, clock: time.Now}, nil
}

// SetEcho mirrors WARN and ERROR lines to w (typically stderr).
func (l *Logger) SetEcho(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.echo = w
	l.mu.Unlock()
}

// Path returns the file backing this logger.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}

// Append writes a single entry if level meets the minimum.
func (l *Logger) Append(level Level, message string) {
	if l == nil || levelRank[level] < levelRank[l.min] {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	line := fmt.Sprintf("[%s] %-5s %s\n",
		l.clock().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimRight(strings.TrimSpace(message), "\n"),
	)
	_, _ = l.file.WriteString(line)
	if l.echo != nil && levelRank[level] >= levelRank[LevelWarn] {
		_, _ = io.WriteString(l.echo, line)
	}
}

// Printf writes an informational line. It keeps the signature expected by
// components that only need a printf-style sink.
func (l *Logger) Printf(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Debug appends a debug entry.
func (l *Logger) Debug(format string, args ...any) {
	l.Append(LevelDebug, fmt.Sprintf(format, args...))
}

// Info appends an informational entry.
func (l *Logger) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logger) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logger) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// Tail returns up to maxLines of the most recent entries and the total
// number of lines in the file.
func (l *Logger) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}
