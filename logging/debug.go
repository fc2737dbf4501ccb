package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// DebugLogger provides verbose debug logging with per-component filtering.
// It writes to a dedicated debug.log file and is intended for
// troubleshooting wire-level issues with the historian and the sinks.
type DebugLogger struct {
	file    *os.File
	mu      sync.Mutex
	closed  bool
	filters map[string]bool // Component filters (empty = log all)
}

// Global debug logger instance
var globalDebugLogger *DebugLogger
var globalDebugMu sync.RWMutex

// Known component names for filtering
var knownComponents = []string{
	"piweb",
	"poller",
	"mqtt",
	"kafka",
	"valkey",
	"api",
	"debug",
}

// NewDebugLogger creates a debug logger that writes to the specified path.
// The file is created fresh (truncated if it exists) for each session.
func NewDebugLogger(path string) (*DebugLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log file: %w", err)
	}

	logger := &DebugLogger{
		file:    file,
		filters: make(map[string]bool),
	}

	logger.Log("debug", "Debug logging started - %s", time.Now().Format(time.RFC3339))
	return logger, nil
}

// KnownComponents returns the component names recognized by SetFilter.
func KnownComponents() []string {
	return append([]string(nil), knownComponents...)
}

// SetFilter restricts logging to a comma-separated list of components.
// Empty string means log all components. Matching is case-insensitive.
func (l *DebugLogger) SetFilter(filter string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.filters = make(map[string]bool)
	if filter == "" {
		return
	}

	for _, c := range strings.Split(filter, ",") {
		c = strings.TrimSpace(strings.ToLower(c))
		if c != "" {
			l.filters[c] = true
		}
	}
}

// shouldLog returns true if the component passes the current filter.
// Must be called with l.mu held.
func (l *DebugLogger) shouldLog(component string) bool {
	if len(l.filters) == 0 {
		return true
	}
	component = strings.ToLower(component)
	// Always allow debug messages (header/footer)
	return l.filters[component] || component == "debug"
}

// Log writes a formatted message with timestamp and component prefix.
func (l *DebugLogger) Log(component, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.shouldLog(component) {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.file, "%s [%s] %s\n", timestamp, component, fmt.Sprintf(format, args...))
}

// Close closes the debug log file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// SetGlobalDebugLogger sets the global debug logger instance.
func SetGlobalDebugLogger(logger *DebugLogger) {
	globalDebugMu.Lock()
	defer globalDebugMu.Unlock()
	globalDebugLogger = logger
}

// GetGlobalDebugLogger returns the global debug logger instance.
func GetGlobalDebugLogger() *DebugLogger {
	globalDebugMu.RLock()
	defer globalDebugMu.RUnlock()
	return globalDebugLogger
}

// DebugLog writes to the global debug logger if one is set.
func DebugLog(component, format string, args ...interface{}) {
	globalDebugMu.RLock()
	logger := globalDebugLogger
	globalDebugMu.RUnlock()
	logger.Log(component, format, args...)
}
