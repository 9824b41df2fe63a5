package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init поднимает JSON-логгер с нужным уровнем (debug|info|warn|error).
func Init(level string) error {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("logger.Init: %w", err)
	}
	InfoLogger = l
	FatalLogger = l
	return nil
}

// InitNop для тестов.
func InitNop() {
	InfoLogger = zap.NewNop()
	FatalLogger = zap.NewNop()
}

func Sync() {
	if InfoLogger != nil {
		_ = InfoLogger.Sync()
	}
}

func with() *zap.Logger {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}
	return InfoLogger.With(zap.String("service", serviceName))
}

func Debug(format string, args ...interface{}) {
	with().Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	with().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	with().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	with().Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	if FatalLogger == nil {
		panic("FatalLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	FatalLogger.With(
		zap.String("service", serviceName),
	).Fatal(msg)
}
