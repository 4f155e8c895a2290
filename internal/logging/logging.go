// Package logging provides structured run logging for sleepnote.
// Runs inside GitHub Actions emit line-delimited JSON so the workflow
// log stays machine-scrapable; local runs get plain timestamped text.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Entry represents one structured log record for a run.
type Entry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger is the interface the rest of the program logs through.
type Logger interface {
	Log(severity Severity, message string, fields map[string]interface{})
	Debug(message string)
	Info(message string)
	Warning(message string)
	Error(message string)
	Flush() error
	Close() error
}

// JSONLogger writes structured JSON entries, one per line. In GitHub
// Actions the workflow log collects these verbatim, which keeps runs
// greppable across scheduled executions.
type JSONLogger struct {
	writer io.Writer
	runID  string
	labels map[string]string
	debug  bool
	mu     sync.Mutex
	closed bool
}

// Option allows configuring a logger.
type Option func(*options)

type options struct {
	writer io.Writer
	labels map[string]string
	debug  bool
}

// WithWriter sets a custom writer for log output.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithLabels adds custom labels to all log entries.
func WithLabels(labels map[string]string) Option {
	return func(o *options) {
		for k, v := range labels {
			o.labels[k] = v
		}
	}
}

// WithDebug enables DEBUG level output.
func WithDebug(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}

func buildOptions(runID string, opts []Option) options {
	o := options{
		writer: os.Stderr,
		labels: map[string]string{
			"run_id":    runID,
			"component": "sleepnote",
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewJSONLogger creates a logger that writes line-delimited JSON entries.
func NewJSONLogger(runID string, opts ...Option) *JSONLogger {
	o := buildOptions(runID, opts)
	return &JSONLogger{
		writer: o.writer,
		runID:  runID,
		labels: o.labels,
		debug:  o.debug,
	}
}

// Log writes a structured log entry.
func (jl *JSONLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	if severity == SeverityDebug && !jl.debug {
		return
	}

	jl.mu.Lock()
	defer jl.mu.Unlock()

	if jl.closed {
		return
	}

	entry := Entry{
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RunID:     jl.runID,
		Labels:    jl.labels,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(jl.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(jl.writer, "%s\n", data)
}

// Debug writes a DEBUG level log entry.
func (jl *JSONLogger) Debug(message string) {
	jl.Log(SeverityDebug, message, nil)
}

// Info writes an INFO level log entry.
func (jl *JSONLogger) Info(message string) {
	jl.Log(SeverityInfo, message, nil)
}

// Warning writes a WARNING level log entry.
func (jl *JSONLogger) Warning(message string) {
	jl.Log(SeverityWarning, message, nil)
}

// Error writes an ERROR level log entry.
func (jl *JSONLogger) Error(message string) {
	jl.Log(SeverityError, message, nil)
}

// Flush ensures all buffered logs are written.
func (jl *JSONLogger) Flush() error {
	jl.mu.Lock()
	defer jl.mu.Unlock()

	if jl.closed {
		return nil
	}
	if syncer, ok := jl.writer.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}

// Close flushes remaining logs and marks the logger as closed.
func (jl *JSONLogger) Close() error {
	jl.mu.Lock()
	defer jl.mu.Unlock()
	jl.closed = true
	return nil
}

// TextLogger writes plain timestamped lines for local runs, matching
// the stdlib log format with a severity prefix for non-INFO levels.
type TextLogger struct {
	logger *log.Logger
	debug  bool
	mu     sync.Mutex
}

// NewTextLogger creates a logger that writes human-readable lines.
func NewTextLogger(runID string, opts ...Option) *TextLogger {
	o := buildOptions(runID, opts)
	return &TextLogger{
		logger: log.New(o.writer, "", log.LstdFlags),
		debug:  o.debug,
	}
}

// Log writes one text line with a severity prefix.
func (tl *TextLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	if severity == SeverityDebug && !tl.debug {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()

	switch severity {
	case SeverityInfo:
		tl.logger.Printf("%s", message)
	case SeverityWarning:
		tl.logger.Printf("Warning: %s", message)
	case SeverityError:
		tl.logger.Printf("Error: %s", message)
	default:
		tl.logger.Printf("%s: %s", severity, message)
	}
	for k, v := range fields {
		tl.logger.Printf("  %s=%v", k, v)
	}
}

// Debug writes a DEBUG level line.
func (tl *TextLogger) Debug(message string) {
	tl.Log(SeverityDebug, message, nil)
}

// Info writes an INFO level line.
func (tl *TextLogger) Info(message string) {
	tl.Log(SeverityInfo, message, nil)
}

// Warning writes a WARNING level line.
func (tl *TextLogger) Warning(message string) {
	tl.Log(SeverityWarning, message, nil)
}

// Error writes an ERROR level line.
func (tl *TextLogger) Error(message string) {
	tl.Log(SeverityError, message, nil)
}

// Flush is a no-op for the text logger (writes are synchronous).
func (tl *TextLogger) Flush() error {
	return nil
}

// Close is a no-op for the text logger.
func (tl *TextLogger) Close() error {
	return nil
}

// NewLogger creates the appropriate logger for the current environment.
// Inside GitHub Actions it emits structured JSON; elsewhere it falls
// back to plain text for local debugging.
func NewLogger(runID string, opts ...Option) Logger {
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		return NewJSONLogger(runID, opts...)
	}
	return NewTextLogger(runID, opts...)
}

// Ensure both loggers implement Logger
var (
	_ Logger = (*JSONLogger)(nil)
	_ Logger = (*TextLogger)(nil)
)

// SanitizeForLog removes potentially sensitive data from strings
// before logging. It redacts common credential patterns.
func SanitizeForLog(s string) string {
	// Redact GitHub tokens
	if strings.HasPrefix(s, "ghs_") || strings.HasPrefix(s, "ghp_") ||
		strings.HasPrefix(s, "gho_") || strings.HasPrefix(s, "github_pat_") {
		return "[REDACTED_GITHUB_TOKEN]"
	}
	// Redact Bearer tokens
	if strings.HasPrefix(s, "Bearer ") {
		return "Bearer [REDACTED]"
	}
	return s
}
