// Package logging provides leveled, key=value logging for the platform.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sync"
)

// VerboseEnv enables debug-level logging when set to "1" in the process
// environment.
const VerboseEnv = "LOG_VERBOSE"

// Logger wraps stdlib log with level support and an optional context
// prefix carried by the With* helpers.
type Logger struct {
	logger *log.Logger
	level  LogLevel
	ctx    string
	mu     *sync.Mutex
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration
type Config struct {
	Level  LogLevel
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration, honouring the
// LOG_VERBOSE environment variable.
func DefaultConfig() *Config {
	level := LevelInfo
	if os.Getenv(VerboseEnv) == "1" {
		level = LevelDebug
	}
	return &Config{
		Level:  level,
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		logger: log.New(output, "", log.LstdFlags),
		level:  config.Level,
		mu:     &sync.Mutex{},
	}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// WithWorker returns a logger whose every line carries the worker id.
func (l *Logger) WithWorker(id uint16) *Logger {
	return l.with(fmt.Sprintf("worker=0x%04x", id))
}

// WithTimer returns a logger whose every line carries the timer id.
func (l *Logger) WithTimer(id uint16) *Logger {
	return l.with(fmt.Sprintf("timer=0x%04x", id))
}

// WithNode returns a logger whose every line carries the node id.
func (l *Logger) WithNode(node uint16) *Logger {
	return l.with(fmt.Sprintf("node=%d", node))
}

// WithError returns a logger whose every line carries err.
func (l *Logger) WithError(err error) *Logger {
	return l.with(fmt.Sprintf("error=%v", err))
}

// with copies the logger, appending prefix to the inherited context so
// chained With* calls accumulate. The copies share one mutex and the
// underlying *log.Logger, so contexts are cheap to mint per call site.
func (l *Logger) with(prefix string) *Logger {
	ctx := l.ctx
	if ctx != "" {
		ctx += " "
	}
	return &Logger{logger: l.logger, level: l.level, ctx: ctx + prefix, mu: l.mu}
}

// formatArgs converts key-value pairs to a string
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx := l.ctx
	if ctx != "" {
		ctx = " " + ctx
	}
	l.logger.Printf("%s %s%s%s", prefix, msg, ctx, formatArgs(args))
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, "[INFO]", msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, "[WARN]", msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, "[ERROR]", msg, args...)
}

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf for compatibility
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// FatalBanner prints the fatal-exception banner naming the raising call
// site (skip stack frames up from the caller) and the user's message,
// followed by the full goroutine stack. It does not itself abort; the
// caller panics or exits after the banner is on record.
func FatalBanner(skip int, msg string) {
	file, line, fn := callerInfo(skip + 1)
	l := Default()
	l.Error(fmt.Sprintf("FATAL EXCEPTION RAISED from %s:%d %s", file, line, fn))
	l.Error(msg)
	buf := make([]byte, 64*1024)
	n := runtime.Stack(buf, false)
	l.Error(string(buf[:n]))
}

func callerInfo(skip int) (file string, line int, fn string) {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown", 0, "unknown"
	}
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
	}
	return file, line, fn
}
