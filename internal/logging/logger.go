package logging

// Leveled logging for enipcore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// ParseLevel maps a flag value to a level.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "quiet":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q (silent, error, info, verbose, debug)", s)
	}
}

// Logger provides leveled logging to the console and an optional file.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	format   string
	logEvery int
	counter  int
	file     *os.File
	fileLog  *log.Logger
	stdout   *log.Logger
	stderr   *log.Logger
}

// NewLogger creates a text logger.
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(level, logFile, "text", 1)
}

// NewLoggerWithOptions creates a logger with an output format ("text" or
// "json") and console sampling: only every logEvery-th non-error console
// message is printed. The file, when set, receives every message.
func NewLoggerWithOptions(level LogLevel, logFile, format string, logEvery int) (*Logger, error) {
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	if logEvery < 1 {
		logEvery = 1
	}
	l := &Logger{
		level:    level,
		format:   format,
		logEvery: logEvery,
		stdout:   log.New(os.Stdout, "", 0),
		stderr:   log.New(os.Stderr, "", 0),
	}

	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		l.fileLog = log.New(file, "", 0)
	}

	return l, nil
}

// NewWriterLogger logs to w only, with no console output. Used by tests and
// by callers that already own an output stream.
func NewWriterLogger(level LogLevel, w io.Writer) *Logger {
	return &Logger{
		level:    level,
		format:   "text",
		logEvery: 1,
		fileLog:  log.New(w, "", 0),
		stdout:   log.New(io.Discard, "", 0),
		stderr:   log.New(io.Discard, "", 0),
	}
}

// NewFileLogger logs to file only and closes it on Close.
func NewFileLogger(level LogLevel, file *os.File) *Logger {
	l := NewWriterLogger(level, file)
	l.file = file
	return l
}

// Nop returns a logger that drops everything.
func Nop() *Logger {
	return NewWriterLogger(LogLevelSilent, io.Discard)
}

// Close closes the logger and flushes all data
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelError {
		l.write("ERROR", fmt.Sprintf(format, v...), true)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelInfo {
		l.write("INFO", fmt.Sprintf(format, v...), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelVerbose {
		l.write("VERBOSE", fmt.Sprintf(format, v...), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelDebug {
		l.write("DEBUG", fmt.Sprintf(format, v...), false)
	}
}

func levelLabel(isError bool) string {
	if isError {
		return "error"
	}
	return "info"
}

func (l *Logger) render(label, msg string, isError bool) string {
	if l.format != "json" {
		return label + ": " + msg
	}
	entry := map[string]string{
		"time":    time.Now().UTC().Format(time.RFC3339Nano),
		"level":   levelLabel(isError),
		"tag":     strings.ToLower(label),
		"message": msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return label + ": " + msg
	}
	return string(data)
}

func (l *Logger) write(label, msg string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.render(label, msg, isError)
	if l.fileLog != nil {
		l.fileLog.Println(line)
	}

	// Errors always reach stderr; everything else is console output only
	// at verbose and above, and is sampled.
	if isError {
		l.stderr.Println(line)
		return
	}
	l.counter++
	if l.level >= LogLevelVerbose && l.counter%l.logEvery == 0 {
		l.stdout.Println(line)
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogExchange logs the outcome of one request/reply exchange. Successes are
// verbose; failures are info.
func (l *Logger) LogExchange(operation, target, service string, success bool, rttMs float64, status uint8, err error) {
	result := "SUCCESS"
	if !success {
		result = "FAILED"
	}
	var errStr string
	if err != nil {
		errStr = fmt.Sprintf(" - error: %v", err)
	}
	msg := fmt.Sprintf("%s %s on %s (service: %s, status: 0x%02X, RTT: %.3fms)%s",
		result, operation, target, service, status, rttMs, errStr)
	if success {
		l.Verbose("%s", msg)
	} else {
		l.Info("%s", msg)
	}
}

// LogHex logs data as space-separated hex at debug level.
func (l *Logger) LogHex(label string, data []byte) {
	if l.GetLevel() < LogLevelDebug {
		return
	}
	encoded := hex.EncodeToString(data)
	var b strings.Builder
	for i := 0; i < len(encoded); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(encoded[i : i+2])
	}
	l.Debug("%s (%d bytes): %s", label, len(data), b.String())
}
