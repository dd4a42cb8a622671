package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLogger atomic.Pointer[Logger]
	once          sync.Once
)

func init() {
	once.Do(func() {
		defaultLogger.Store(New(os.Stdout, LogLevelDebug))
	})
}

type LogLevel int32

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

func (level LogLevel) String() string {
	switch level {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	case LogLevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a log level string into a LogLevel.
// Valid log levels are: error, warn, info, debug, trace.
func ParseLogLevel(level string) (LogLevel, error) {
	switch level {
	case "error":
		return LogLevelError, nil
	case "warn":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	case "trace":
		return LogLevelTrace, nil
	default:
		return LogLevelError, fmt.Errorf("unknown log level: %s", level)
	}
}

// SetDefaultLogger replaces the logger used by the package-level functions.
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
}

func SetLevel(level LogLevel) {
	defaultLogger.Load().SetLevel(level)
	Info("Log level set to %s", level)
}

// Sync flushes any buffered entries of the default logger.
func Sync() {
	_ = defaultLogger.Load().Sync()
}

type Logger struct {
	sugar *zap.SugaredLogger
	level atomic.Int32
}

// New creates a logger writing one JSON object per line to out.
func New(out io.Writer, level LogLevel) *Logger {
	return newLogger(zapcore.AddSync(out), level)
}

// NewFile creates a logger writing to a size-rotated file.
func NewFile(path string, level LogLevel) *Logger {
	return newLogger(zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	}), level)
}

func newLogger(ws zapcore.WriteSyncer, level LogLevel) *Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	// level filtering happens in logf so trace can sit below zap's debug level
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zapcore.DebugLevel)
	l := &Logger{
		sugar: zap.New(core).Sugar(),
	}
	l.level.Store(int32(level))
	return l
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

func (l *Logger) Level() LogLevel {
	return LogLevel(l.level.Load())
}

func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	if level > l.Level() {
		return
	}
	switch level {
	case LogLevelError:
		l.sugar.Errorf(format, args...)
	case LogLevelWarn:
		l.sugar.Warnf(format, args...)
	case LogLevelInfo:
		l.sugar.Infof(format, args...)
	case LogLevelDebug:
		l.sugar.Debugf(format, args...)
	default:
		l.sugar.Debugw(fmt.Sprintf(format, args...), "trace", true)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(LogLevelError, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(LogLevelWarn, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(LogLevelInfo, format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(LogLevelDebug, format, args...)
}

func (l *Logger) Trace(format string, args ...interface{}) {
	l.logf(LogLevelTrace, format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Load().Info(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Load().Error(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Load().Warn(format, args...)
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Load().Debug(format, args...)
}

func Trace(format string, args ...interface{}) {
	defaultLogger.Load().Trace(format, args...)
}
