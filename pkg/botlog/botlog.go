// Package botlog writes the operator-facing log stream: timestamped lines on
// the console (colored by level) and, optionally, in an append-only file.
package botlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelSuccess
	levelWarn
	levelError
)

var markers = map[level]string{
	levelDebug:   "·",
	levelInfo:    "→",
	levelSuccess: "✓",
	levelWarn:    "⚠",
	levelError:   "✗",
}

var paint = map[level]func(a ...interface{}) string{
	levelDebug:   color.New(color.Faint).SprintFunc(),
	levelInfo:    fmt.Sprint,
	levelSuccess: color.New(color.FgGreen).SprintFunc(),
	levelWarn:    color.New(color.FgYellow).SprintFunc(),
	levelError:   color.New(color.FgRed, color.Bold).SprintFunc(),
}

// Logger is safe for concurrent use. A nil *Logger discards everything.
type Logger struct {
	console *log.Logger
	file    *log.Logger
	closer  io.Closer
	verbose bool
}

// Config configures a Logger.
type Config struct {
	Console io.Writer // Defaults to os.Stdout
	File    string    // Optional log file path
	Verbose bool      // Emit Debugf lines
}

// New creates a logger writing to the console and, if configured, a file.
func New(cfg Config) (*Logger, error) {
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	l := &Logger{
		console: log.New(console, "", log.LstdFlags),
		verbose: cfg.Verbose,
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = log.New(f, "", log.LstdFlags)
		l.closer = f
	}
	return l, nil
}

// NewWriter returns an uncolored logger writing to w. Useful in tests.
func NewWriter(w io.Writer, verbose bool) *Logger {
	return &Logger{console: log.New(w, "", log.LstdFlags), verbose: verbose}
}

// Discard returns a logger that drops all output.
func Discard() *Logger {
	return nil
}

func (l *Logger) Debugf(format string, args ...any)   { l.output(levelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)    { l.output(levelInfo, format, args...) }
func (l *Logger) Successf(format string, args ...any) { l.output(levelSuccess, format, args...) }
func (l *Logger) Warnf(format string, args ...any)    { l.output(levelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any)   { l.output(levelError, format, args...) }

// Separator logs a divider line, used before each newly found item.
func (l *Logger) Separator() {
	if l == nil {
		return
	}
	line := "=================================================="
	l.console.Print(line)
	if l.file != nil {
		l.file.Print(line)
	}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) output(lv level, format string, args ...any) {
	if l == nil {
		return
	}
	if lv == levelDebug && !l.verbose {
		return
	}
	msg := markers[lv] + " " + fmt.Sprintf(format, args...)
	l.console.Print(paint[lv](msg))
	if l.file != nil {
		l.file.Print(msg)
	}
}
