// Package logx provides component-scoped logging with context-aware debug logging.
package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

type contextKey string

const sessionIDKey contextKey = "session_id"

// Logger writes leveled lines prefixed with a component name.
type Logger struct {
	component string
}

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

// LogEntry is a structured log entry kept for the bridge's /logs endpoint.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
}

// RingBuffer stores the most recent log entries.
type RingBuffer struct {
	entries []LogEntry
	mu      sync.RWMutex
	maxSize int
}

//nolint:gochecknoglobals // process-wide logging configuration
var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	output   io.Writer = os.Stderr
	outputMu sync.Mutex

	recent = &RingBuffer{maxSize: 1000}
)

func init() { //nolint:gochecknoinits // env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = false
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	debugConfig.Domains = nil
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = parseDomains(strings.Split(domains, ","))
	}
}

func parseDomains(domains []string) map[string]bool {
	if len(domains) == 0 {
		return nil
	}
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			set[d] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// NewLogger returns a logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// SetOutput redirects all log lines. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
}

// SetDebug enables or disables debug logging and optionally restricts it to domains.
func SetDebug(enabled bool, domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Enabled = enabled
	debugConfig.Domains = parseDomains(domains)
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// WithSessionID stores a session ID in ctx for Debug.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFrom returns the session ID stored in ctx, or "unknown".
func SessionIDFrom(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(sessionIDKey).(string); ok && id != "" {
			return id
		}
	}
	return "unknown"
}

// Add appends an entry, dropping the oldest once full.
func (b *RingBuffer) Add(entry *LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, *entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// Entries returns a copy of the buffered entries, optionally filtered by level.
func (b *RingBuffer) Entries(level string) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]LogEntry, 0, len(b.entries))
	for i := range b.entries {
		if level != "" && !strings.EqualFold(b.entries[i].Level, level) {
			continue
		}
		out = append(out, b.entries[i])
	}
	return out
}

// RecentEntries returns recent log entries, optionally filtered by level.
func RecentEntries(level string) []LogEntry {
	return recent.Entries(level)
}

func write(component string, level Level, domain, message string) {
	timestamp := time.Now().UTC().Format(timestampLayout)
	line := fmt.Sprintf("[%s] [%s] %s: %s", timestamp, component, level, message)
	if domain != "" {
		line = fmt.Sprintf("[%s] [%s] %s: [%s] %s", timestamp, component, level, domain, message)
	}

	outputMu.Lock()
	log.New(output, "", 0).Println(line)
	outputMu.Unlock()

	recent.Add(&LogEntry{
		Timestamp: timestamp,
		Component: component,
		Level:     string(level),
		Message:   message,
		Domain:    domain,
	})
}

func (l *Logger) log(level Level, format string, args ...any) {
	write(l.component, level, "", fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugState logs a state machine step.
func (l *Logger) DebugState(action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	l.Debug("State %s: %s%s", action, state, extraInfo)
}

// Component returns the component name of this logger.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger for a sub-component, e.g. "panel/3f2a".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "/" + sub}
}

// Debug logs a debug message with context and domain filtering.
//
// Usage:
//
//	logx.Debug(ctx, "poller", "tick skipped: call in flight")
//
// Environment variable control:
//
//	DEBUG=1                          # all domains
//	DEBUG=1 DEBUG_DOMAINS=poller,panel
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	write(SessionIDFrom(ctx), LevelDebug, domain, fmt.Sprintf(format, args...))
}

// DebugFlow logs a workflow step with context and domain.
func DebugFlow(ctx context.Context, domain, step, status string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	Debug(ctx, domain, "Flow %s: %s%s", step, status, extraInfo)
}

var defaultLogger = NewLogger("system") //nolint:gochecknoglobals

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("bind %s: %w", addr, err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
