// Package logging wraps zap with an OpenTelemetry bridge so every structured
// log line is also available as a span event / log record for trace
// correlation, matching how the rest of the engine's telemetry is wired.
package logging

import (
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func zapCoreWriter() *os.File {
	return os.Stdout
}

// Logger is the structured logger interface passed down through the engine.
// Components depend on this interface, never on *zap.Logger directly, so
// tests can swap in a no-op or capturing implementation.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Fatal(msg string, fields ...any)
	With(fields ...any) Logger
}

// ZapLogger implements Logger over a *zap.SugaredLogger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a ZapLogger at the given level ("debug", "info", "warn",
// "error"), tee'ing every record to both a console encoder and an otelzap
// core so spans active at log time pick up the record.
func New(levelStr string) (*ZapLogger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(levelStr); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(zapCoreWriter())),
		level,
	)

	otelCore := otelzap.NewCore("mmb")

	core := zapcore.NewTee(consoleCore, otelCore)
	base := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &ZapLogger{sugar: base.Sugar()}, nil
}

func (z *ZapLogger) Debug(msg string, fields ...any) { z.sugar.Debugw(msg, fields...) }
func (z *ZapLogger) Info(msg string, fields ...any)  { z.sugar.Infow(msg, fields...) }
func (z *ZapLogger) Warn(msg string, fields ...any)  { z.sugar.Warnw(msg, fields...) }
func (z *ZapLogger) Error(msg string, fields ...any) { z.sugar.Errorw(msg, fields...) }
func (z *ZapLogger) Fatal(msg string, fields ...any) { z.sugar.Fatalw(msg, fields...) }

func (z *ZapLogger) With(fields ...any) Logger {
	return &ZapLogger{sugar: z.sugar.With(fields...)}
}

// Sync flushes any buffered log entries.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
