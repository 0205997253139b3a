package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// ParseLevel converts a level name to a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Service   string                 `json:"service"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Stack     string                 `json:"stack,omitempty"`
}

// Formatter interface for log formatting
type Formatter interface {
	Format(entry LogEntry) string
}

// JSONFormatter formats logs as JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Format(entry LogEntry) string {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":"ERROR","message":"log marshal failed: %s"}`, err)
	}
	return string(data)
}

// TextFormatter formats logs as human-readable text
type TextFormatter struct{}

func (f *TextFormatter) Format(entry LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s.%s", entry.Timestamp, entry.Level, entry.Service, entry.Logger)
	if entry.RequestID != "" {
		fmt.Fprintf(&b, " [%s]", entry.RequestID)
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)
	for k, v := range entry.Fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%q", entry.Error)
	}
	return b.String()
}

// Logger represents a named structured logger
type Logger struct {
	name string
}

type settings struct {
	mu        sync.Mutex
	service   string
	level     LogLevel
	formatter Formatter
	out       io.Writer
}

var global = &settings{
	service:   "blendar",
	level:     INFO,
	formatter: &TextFormatter{},
	out:       os.Stdout,
}

// Initialize sets the process-wide service name, level and format
func Initialize(service string, level LogLevel, jsonFormat bool) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if service != "" {
		global.service = service
	}
	global.level = level
	if jsonFormat {
		global.formatter = &JSONFormatter{}
	} else {
		global.formatter = &TextFormatter{}
	}
}

// SetOutput redirects all loggers to w
func SetOutput(w io.Writer) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.out = w
}

// GetLogger creates a new named logger
func GetLogger(name string) *Logger {
	return &Logger{name: name}
}

// Context key for request ID
type contextKey string

const RequestIDKey contextKey = "request_id"

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestIDFromContext extracts request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func (l *Logger) log(ctx context.Context, level LogLevel, message string, fields map[string]interface{}, err error) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if levelRank[level] < levelRank[global.level] {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Service:   global.service,
		Logger:    l.name,
		Message:   message,
		Fields:    fields,
		RequestID: GetRequestIDFromContext(ctx),
	}

	if err != nil {
		entry.Error = err.Error()
		if level == ERROR {
			entry.Stack = getStackTrace()
		}
	}

	fmt.Fprintln(global.out, global.formatter.Format(entry))
}

func getStackTrace() string {
	buf := make([]byte, 2048)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

func (l *Logger) Debug(message string) {
	l.log(nil, DEBUG, message, nil, nil)
}

func (l *Logger) DebugWithFieldsCtx(ctx context.Context, message string, fields map[string]interface{}) {
	l.log(ctx, DEBUG, message, fields, nil)
}

func (l *Logger) Info(message string) {
	l.log(nil, INFO, message, nil, nil)
}

func (l *Logger) InfoWithFields(message string, fields map[string]interface{}) {
	l.log(nil, INFO, message, fields, nil)
}

func (l *Logger) InfoWithFieldsCtx(ctx context.Context, message string, fields map[string]interface{}) {
	l.log(ctx, INFO, message, fields, nil)
}

func (l *Logger) Warn(message string) {
	l.log(nil, WARN, message, nil, nil)
}

func (l *Logger) WarnWithFields(message string, fields map[string]interface{}) {
	l.log(nil, WARN, message, fields, nil)
}

func (l *Logger) WarnWithFieldsCtx(ctx context.Context, message string, fields map[string]interface{}) {
	l.log(ctx, WARN, message, fields, nil)
}

func (l *Logger) Error(message string, err error) {
	l.log(nil, ERROR, message, nil, err)
}

func (l *Logger) ErrorWithFields(message string, fields map[string]interface{}, err error) {
	l.log(nil, ERROR, message, fields, err)
}

func (l *Logger) ErrorWithFieldsCtx(ctx context.Context, message string, fields map[string]interface{}, err error) {
	l.log(ctx, ERROR, message, fields, err)
}

// PerformanceLogger times a single operation
type PerformanceLogger struct {
	logger    *Logger
	operation string
	startTime time.Time
	threshold time.Duration
}

// StartOperation starts timing an operation. Completion is only logged when
// it takes longer than thresholdMs.
func (l *Logger) StartOperation(operation string, thresholdMs int) *PerformanceLogger {
	return &PerformanceLogger{
		logger:    l,
		operation: operation,
		startTime: time.Now(),
		threshold: time.Duration(thresholdMs) * time.Millisecond,
	}
}

// Complete logs the completion of an operation
func (p *PerformanceLogger) Complete(ctx context.Context) {
	duration := time.Since(p.startTime)
	if duration > p.threshold {
		p.logger.InfoWithFieldsCtx(ctx, fmt.Sprintf("Operation '%s' completed", p.operation), map[string]interface{}{
			"operation":   p.operation,
			"duration_ms": duration.Milliseconds(),
			"status":      "success",
		})
	}
}

// CompleteWithError logs the completion of an operation with an error
func (p *PerformanceLogger) CompleteWithError(ctx context.Context, err error) {
	duration := time.Since(p.startTime)
	p.logger.ErrorWithFieldsCtx(ctx, fmt.Sprintf("Operation '%s' failed", p.operation), map[string]interface{}{
		"operation":   p.operation,
		"duration_ms": duration.Milliseconds(),
		"status":      "error",
	}, err)
}

// RedirectStandardLog sends output of the standard library log package
// through the structured logger.
func RedirectStandardLog() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{logger: GetLogger("stdlib")})
}

type logWriter struct {
	logger *Logger
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// InitFromEnv configures logging from SERVICE_NAME, LOG_LEVEL and LOG_FORMAT
func InitFromEnv() {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "blendar"
	}

	Initialize(service, ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT") == "json")
	RedirectStandardLog()
}
