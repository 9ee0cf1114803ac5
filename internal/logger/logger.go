// Package logger provides the process-wide structured logger.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	root hclog.Logger = hclog.New(&hclog.LoggerOptions{
		Name:   "nexa",
		Level:  hclog.Info,
		Output: os.Stderr,
	})
)

// Init replaces the root logger with one at the given level ("trace",
// "debug", "info", "warn", "error"). Called once from main after config load.
func Init(level string, jsonFormat bool) {
	mu.Lock()
	defer mu.Unlock()
	root = hclog.New(&hclog.LoggerOptions{
		Name:       "nexa",
		Level:      hclog.LevelFromString(level),
		Output:     os.Stderr,
		JSONFormat: jsonFormat,
	})
}

// Named returns a sub-logger for a component, e.g. logger.Named("scanner").
func Named(name string) hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(name)
}

// Info logs an informational message with optional key/value pairs.
func Info(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Error(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Debug(msg, args...)
}
