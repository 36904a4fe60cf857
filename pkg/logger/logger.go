package logger

import (
	"fmt"
	"io"
	"maps"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	DEBUG = zerolog.DebugLevel
	INFO  = zerolog.InfoLevel
	WARN  = zerolog.WarnLevel
	ERROR = zerolog.ErrorLevel
	FATAL = zerolog.FatalLevel
)

type Logger struct {
	mu     sync.RWMutex
	zl     zerolog.Logger
	fields map[string]any
}

var std *Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.MessageFieldName = "message"
	std = New(INFO, os.Stdout)
}

func New(level Level, out io.Writer) *Logger {
	return &Logger{
		zl:     zerolog.New(out).Level(level).With().Timestamp().Logger(),
		fields: make(map[string]any),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), fields: make(map[string]any)}
}

// Default returns the process-wide logger.
func Default() *Logger {
	return std
}

func SetLevel(level Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.zl = std.zl.Level(level)
}

// SetOutput redirects the process-wide logger, keeping its level.
func SetOutput(out io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.zl = std.zl.Output(out)
}

func (l *Logger) WithField(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newLogger := &Logger{
		zl:     l.zl,
		fields: make(map[string]any, len(l.fields)+1),
	}
	maps.Copy(newLogger.fields, l.fields)
	newLogger.fields[key] = value
	return newLogger
}

func (l *Logger) log(level Level, depth int, msg string, fields map[string]any) {
	l.mu.RLock()
	zl := l.zl
	l.mu.RUnlock()

	e := zl.WithLevel(level)
	if e == nil {
		return
	}

	if len(l.fields) > 0 {
		e = e.Fields(l.fields)
	}
	if len(fields) > 0 {
		e = e.Fields(fields)
	}

	if level >= ERROR {
		if _, file, line, ok := runtime.Caller(depth); ok {
			e = e.Str("caller", fmt.Sprintf("%s:%d", file, line))
		}
	}

	e.Msg(msg)

	if level == FATAL {
		os.Exit(1)
	}
}

func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.log(DEBUG, 2, msg, mergeFields(fields...))
}

func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.log(INFO, 2, msg, mergeFields(fields...))
}

func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.log(WARN, 2, msg, mergeFields(fields...))
}

func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.log(ERROR, 2, msg, mergeFields(fields...))
}

func (l *Logger) Fatal(msg string, fields ...map[string]any) {
	l.log(FATAL, 2, msg, mergeFields(fields...))
}

func Debug(msg string, fields ...map[string]any) {
	std.log(DEBUG, 2, msg, mergeFields(fields...))
}

func Info(msg string, fields ...map[string]any) {
	std.log(INFO, 2, msg, mergeFields(fields...))
}

func Warn(msg string, fields ...map[string]any) {
	std.log(WARN, 2, msg, mergeFields(fields...))
}

func Error(msg string, fields ...map[string]any) {
	std.log(ERROR, 2, msg, mergeFields(fields...))
}

func Fatal(msg string, fields ...map[string]any) {
	std.log(FATAL, 2, msg, mergeFields(fields...))
}

func WithField(key string, value any) *Logger {
	return std.WithField(key, value)
}

func mergeFields(fields ...map[string]any) map[string]any {
	if len(fields) == 1 {
		return fields[0]
	}
	result := make(map[string]any)
	for _, f := range fields {
		maps.Copy(result, f)
	}
	return result
}

func ParseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}
