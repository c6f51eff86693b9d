// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package logger is the process-wide leveled logger: every line goes to
// stdout and, once Init has been called, to the archive's log file. The
// indexer and import pipeline log per-conversation skips here so a batch
// run leaves an auditable trail next to the archive itself.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger writes timestamped, level-prefixed lines to one or more sinks.
type Logger struct {
	mu   sync.Mutex
	out  *log.Logger
	file *os.File
}

var (
	defaultLogger *Logger
	defaultMu     sync.Mutex
)

// New creates a logger appending to logFile as well as stdout. An empty
// path means stdout only.
func New(logFile string) (*Logger, error) {
	if logFile == "" {
		return &Logger{out: log.New(os.Stdout, "", log.LstdFlags)}, nil
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logFile, err)
	}
	return &Logger{
		out:  log.New(io.MultiWriter(os.Stdout, file), "", log.LstdFlags),
		file: file,
	}, nil
}

// Init installs the default logger used by the package-level functions.
// Calling it again replaces the sink (the CLI does this when the active
// archive path, and with it the log file location, changes).
func Init(logFile string) (*Logger, error) {
	l, err := New(logFile)
	if err != nil {
		return nil, err
	}
	defaultMu.Lock()
	old := defaultLogger
	defaultLogger = l
	defaultMu.Unlock()
	if old != nil {
		old.Close()
	}
	return l, nil
}

func getDefault() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = &Logger{out: log.New(os.Stdout, "", log.LstdFlags)}
	}
	return defaultLogger
}

func (l *Logger) logf(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Printf("[%s] %s", level, fmt.Sprintf(format, v...))
}

// Printf logs at INFO level.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.logf("INFO", format, v...)
}

// Warnf logs at WARN level.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.logf("WARN", format, v...)
}

// Errorf logs at ERROR level.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.logf("ERROR", format, v...)
}

// Fatalf logs at FATAL level and exits.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.logf("FATAL", format, v...)
	os.Exit(1)
}

// Close closes the log file, if any. The logger keeps writing to stdout
// afterwards.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.out = log.New(os.Stdout, "", log.LstdFlags)
	return err
}

// Package-level convenience functions, writing through the default logger.

func Printf(format string, v ...interface{}) {
	getDefault().Printf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	getDefault().Warnf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	getDefault().Errorf(format, v...)
}

func Fatalf(format string, v ...interface{}) {
	getDefault().Fatalf(format, v...)
}
