package logging

import (
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// Options configures the process-wide log backend
type Options struct {
	Level      LogLevel
	Format     string // "console" or "json"
	File       string // optional rotating log file, always JSON
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var base atomic.Pointer[zap.Logger]

// Initialize builds the shared zap core. Loggers created afterwards write through it.
func Initialize(opts Options) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(opts.Level))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	var consoleEncoder zapcore.Encoder
	if opts.Format == "json" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleConfig.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + name + "]")
		}
		consoleEncoder = zapcore.NewConsoleEncoder(consoleConfig)
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level)}

	if opts.File != "" {
		fileConfig := encoderConfig
		fileConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), fileWriter, level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
	base.Store(logger)
	return logger
}

// Sync flushes buffered log entries
func Sync() {
	if l := base.Load(); l != nil {
		_ = l.Sync()
	}
}

func parseLevel(level LogLevel) zapcore.Level {
	switch LogLevel(strings.ToUpper(string(level))) {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is a component-scoped logger
type Logger struct {
	component string
	zl        *zap.Logger
}

// NewLogger creates a new logger for a specific component
func NewLogger(component string) *Logger {
	zl := base.Load()
	if zl == nil {
		zl = Initialize(Options{Level: LogLevelInfo})
	}
	return &Logger{component: component, zl: zl.Named(component)}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{component: "nop", zl: zap.NewNop()}
}

// FromZap wraps an existing zap logger
func FromZap(component string, zl *zap.Logger) *Logger {
	return &Logger{component: component, zl: zl.Named(component)}
}

// fields converts a context map into zap fields in a stable order
func fields(context map[string]interface{}) []zap.Field {
	if len(context) == 0 {
		return nil
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, context[k]))
	}
	return out
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.zl.Debug(message)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(message string, context map[string]interface{}) {
	l.zl.Debug(message, fields(context)...)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.zl.Info(message)
}

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(message string, context map[string]interface{}) {
	l.zl.Info(message, fields(context)...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.zl.Warn(message)
}

// WarnWithContext logs a warning message with context
func (l *Logger) WarnWithContext(message string, context map[string]interface{}) {
	l.zl.Warn(message, fields(context)...)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.zl.Error(message, zap.Error(err))
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(message string, err error, context map[string]interface{}) {
	l.zl.Error(message, append(fields(context), zap.Error(err))...)
}

// WithContext returns a logger that includes context on every entry
func (l *Logger) WithContext(context map[string]interface{}) *Logger {
	return &Logger{component: l.component, zl: l.zl.With(fields(context)...)}
}
