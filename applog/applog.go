package applog

import (
	"arena-harness/build"
	"fmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Logger = zap.Logger

func Info(msg string, fields ...zapcore.Field) {
	current().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Warn(msg string, fields ...zapcore.Field) {
	current().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Debug(msg string, fields ...zapcore.Field) {
	current().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func Error(msg string, fields ...zapcore.Field) {
	current().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

func Fatal(msg string, fields ...zapcore.Field) {
	current().WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...)
}

func LogStartupInfo(launchArgs interface{}) {
	buildInfo := build.GetBuildInfo()
	buildCommit := "unknown"
	if buildInfo != nil && buildInfo.CommitHash != "" {
		buildCommit = buildInfo.CommitHash
	}

	Info("Application started",
		zap.String("version", build.Version),
		zap.String("buildCommit", buildCommit),
		zap.Any("launchArgs", launchArgs),
	)
}

func GetLogger() *Logger {
	return current()
}

// Initialize replaces the console-only default logger with one that also writes
// JSON lines to <logDir>/arena_<runName>.log. An empty logDir means "<cwd>/logs".
func Initialize(runName string, rawLogLevel int, logDir string) error {
	if logDir == "" {
		workdir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current working directory: %w", err)
		}
		logDir = filepath.Join(workdir, "logs")
	}

	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFilename := filepath.Join(logDir, fmt.Sprintf("arena_%s.log", runName))
	f, err := os.OpenFile(logFilename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file '%s': %w", logFilename, err)
	}

	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	mu.Unlock()

	level := safeGetLogLevelOrDefault(rawLogLevel)
	l := newLogger(level, zapcore.AddSync(f), zap.AddCaller()).With(zap.String("run", runName))
	setLogger(l)
	return nil
}

func Shutdown() {
	_ = current().Sync()

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	globalLogger = newLogger(zapcore.InfoLevel, nil, zap.AddCaller())
	zap.ReplaceGlobals(globalLogger)
}

var (
	mu           sync.RWMutex
	globalLogger = newLogger(zapcore.InfoLevel, nil, zap.AddCaller())
	logFile      *os.File
)

func safeGetLogLevelOrDefault(raw int) zapcore.Level {
	level := zapcore.Level(raw)
	if level < zapcore.DebugLevel || level > zapcore.FatalLevel {
		return zapcore.InfoLevel
	}
	return level
}

func getEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339)) // Ensure UTC
	}
	return encoderConfig
}

func newLogger(level zapcore.Level, file zapcore.WriteSyncer, opts ...zap.Option) *Logger {
	jsonEncoder := zapcore.NewJSONEncoder(getEncoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(jsonEncoder, zapcore.Lock(os.Stderr), level),
	}
	if file != nil {
		cores = append(cores, zapcore.NewCore(jsonEncoder, file, level))
	}

	return zap.New(zapcore.NewTee(cores...), opts...)
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

func setLogger(l *Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
}
