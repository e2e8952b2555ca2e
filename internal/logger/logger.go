// Package logger provides the process-wide logger for the connector service.
package logger

import (
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.Mutex
	log   *zap.SugaredLogger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize sets up the package-level logger. Output is structured JSON by
// default; set SLK_UNSTRUCTURED_LOGS=true for human-readable console output.
// Safe to call more than once; later calls replace the logger.
func Initialize() {
	mu.Lock()
	defer mu.Unlock()

	var cfg zap.Config
	if unstructuredLogs() {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = level

	// zap.Config.Build only fails on invalid sink/encoder names, which the
	// canned configs never produce.
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

// SetDebug toggles debug-level logging at runtime.
func SetDebug(enabled bool) {
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// SetLevel sets the logging level by name (debug, info, warn, error).
func SetLevel(name string) error {
	parsed, err := zapcore.ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}

// Sync flushes any buffered log entries.
func Sync() error {
	return ensure().Sync()
}

func unstructuredLogs() bool {
	v, err := strconv.ParseBool(os.Getenv("SLK_UNSTRUCTURED_LOGS"))
	if err != nil {
		return false
	}
	return v
}

// ensure returns the package logger, initializing it on first use so that
// early callers (for example flag parsing failures) still get output.
func ensure() *zap.SugaredLogger {
	mu.Lock()
	l := log
	mu.Unlock()
	if l == nil {
		Initialize()
		mu.Lock()
		l = log
		mu.Unlock()
	}
	return l
}

// Debug logs a message at debug level.
func Debug(args ...any) { ensure().Debug(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { ensure().Debugf(format, args...) }

// Info logs a message at info level.
func Info(args ...any) { ensure().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { ensure().Infof(format, args...) }

// Warn logs a message at warn level.
func Warn(args ...any) { ensure().Warn(args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { ensure().Warnf(format, args...) }

// Error logs a message at error level.
func Error(args ...any) { ensure().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { ensure().Errorf(format, args...) }

// Fatalf logs a formatted message and exits the process.
func Fatalf(format string, args ...any) { ensure().Fatalf(format, args...) }
