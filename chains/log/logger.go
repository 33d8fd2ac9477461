package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogDir is where salvo keeps its log files and saved results.
const LogDir = "/tmp/salvo"

type loggerContextKey struct{}

var (
	logFile *lumberjack.Logger
	once    sync.Once
)

func ensureLogDirectory() error {
	//nolint:gosec // G301: valid perm
	if err := os.MkdirAll(LogDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	return nil
}

func getLogFile() (*lumberjack.Logger, error) {
	var err error
	once.Do(func() {
		if err = ensureLogDirectory(); err != nil {
			return
		}

		timestamp := time.Now().Format("2006-01-02-15-04-05")
		logFile = &lumberjack.Logger{
			Filename:   filepath.Join(LogDir, fmt.Sprintf("salvo-%s.log", timestamp)),
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     7, // days
		}
	})

	return logFile, err
}

func CloseLogFile() {
	if logFile != nil {
		_ = logFile.Close()
	}
}

func DefaultLogger(devLogging bool, options ...zap.Option) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	var logLevel zapcore.Level

	if devLogging {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
		logLevel = zap.DebugLevel
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
		logLevel = zap.InfoLevel
	}

	file, err := getLogFile()
	if err != nil {
		return zap.NewDevelopment(options...)
	}

	stdoutCore := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		logLevel,
	)

	fileCore := zapcore.NewCore(
		encoder,
		zapcore.AddSync(file),
		logLevel,
	)

	core := zapcore.NewTee(stdoutCore, fileCore)

	return zap.New(core, options...), nil
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	logger, ok := ctx.Value(loggerContextKey{}).(*zap.Logger)
	if ok {
		return logger
	}

	logger, err := DefaultLogger(false)
	if err != nil {
		return zap.NewNop()
	}

	return logger
}
