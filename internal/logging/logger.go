// Package logging provides a zap-backed structured logger for the control
// plane, keyed by component name so each subsystem (policy, ledger, audit,
// ingest, ...) gets its own named, independently levelled logger.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	componentField = "component"
	opField        = "op"
	defComponent   = "sys"
	defOp          = "unk"
)

// Logger wraps a zap.Logger with component/op tagging conventions used
// throughout the control plane.
type Logger struct {
	component string
	logger    *zap.Logger
	sugar     *zap.SugaredLogger
	level     zapcore.Level
	writer    io.Writer // custom output, used by viper debug dumps and tests
}

func newLogger(component string) *Logger {
	l := &Logger{component: component, level: zapcore.InfoLevel}
	l.rebuild()
	return l
}

func buildEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	if os.Getenv("LOG_FORMATTER") == "text" {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func (l *Logger) rebuild() {
	out := io.Writer(os.Stdout)
	if l.writer != nil {
		out = l.writer
	}

	core := zapcore.NewCore(buildEncoder(), zapcore.AddSync(out), l.level)

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if os.Getenv("LOG_REPORT_CALLER") != "" {
		opts = append(opts, zap.AddCaller())
	}

	l.logger = zap.New(core, opts...)
	l.sugar = l.logger.Sugar()
}

// IsDebugEnabled reports whether debug-level (or finer) logging is active,
// useful to guard expensive log-argument construction.
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= zapcore.DebugLevel
}

// SetLevel changes the minimum level this logger emits.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level = level
	l.rebuild()
}

// IsLevelEnabled reports whether the given level would be emitted.
func (l *Logger) IsLevelEnabled(level zapcore.Level) bool {
	return l.level <= level
}

// Out returns the current output writer. Used by config loading (viper debug
// dumps) and tests.
func (l *Logger) Out() io.Writer {
	if l.writer != nil {
		return l.writer
	}
	return os.Stdout
}

// SetOut redirects output, primarily for tests.
func (l *Logger) SetOut(w io.Writer) {
	l.writer = w
	l.rebuild()
}

func (l *Logger) with(actor, op string) *zap.SugaredLogger {
	return l.sugar.With(
		zap.String("actor", actor),
		zap.String(opField, op),
		zap.String(componentField, l.component),
	)
}

// Fatal logs at fatal level and terminates the process.
func (l *Logger) Fatal(actor, op string, args ...interface{}) { l.with(actor, op).Fatal(args...) }

// Fatalf logs a formatted fatal message and terminates the process.
func (l *Logger) Fatalf(actor, op, format string, args ...interface{}) {
	l.with(actor, op).Fatalf(format, args...)
}

// Error logs at error level.
func (l *Logger) Error(actor, op string, args ...interface{}) { l.with(actor, op).Error(args...) }

// Errorf logs a formatted error message.
func (l *Logger) Errorf(actor, op, format string, args ...interface{}) {
	l.with(actor, op).Errorf(format, args...)
}

// Warn logs at warning level.
func (l *Logger) Warn(actor, op string, args ...interface{}) { l.with(actor, op).Warn(args...) }

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(actor, op, format string, args ...interface{}) {
	l.with(actor, op).Warnf(format, args...)
}

// Info logs at info level.
func (l *Logger) Info(actor, op string, args ...interface{}) { l.with(actor, op).Info(args...) }

// Infof logs a formatted info message.
func (l *Logger) Infof(actor, op, format string, args ...interface{}) {
	l.with(actor, op).Infof(format, args...)
}

// Debug logs at debug level.
func (l *Logger) Debug(actor, op string, args ...interface{}) { l.with(actor, op).Debug(args...) }

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(actor, op, format string, args ...interface{}) {
	l.with(actor, op).Debugf(format, args...)
}

// SysInfo logs at info level with default actor/op tags.
func (l *Logger) SysInfo(args ...interface{}) { l.Info(defComponent, defOp, args...) }

// SysInfof logs a formatted info message with default actor/op tags.
func (l *Logger) SysInfof(format string, args ...interface{}) {
	l.Infof(defComponent, defOp, format, args...)
}

// SysError logs at error level with default actor/op tags.
func (l *Logger) SysError(args ...interface{}) { l.Error(defComponent, defOp, args...) }

// SysErrorf logs a formatted error message with default actor/op tags.
func (l *Logger) SysErrorf(format string, args ...interface{}) {
	l.Errorf(defComponent, defOp, format, args...)
}

// SysWarnf logs a formatted warning message with default actor/op tags.
func (l *Logger) SysWarnf(format string, args ...interface{}) {
	l.Warnf(defComponent, defOp, format, args...)
}

// SysDebugf logs a formatted debug message with default actor/op tags.
func (l *Logger) SysDebugf(format string, args ...interface{}) {
	l.Debugf(defComponent, defOp, format, args...)
}
