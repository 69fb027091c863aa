// Package observability holds the process-wide logger and the keep-alive metrics.
package observability

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/xkilldash9x/nbwarden/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
	ansiReset  = "\x1b[0m"
)

var (
	logger   atomic.Pointer[zap.Logger]
	initOnce sync.Once
)

// ansiColors maps the color names accepted in logger.colors to escape codes.
var ansiColors = map[string]string{
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// Initialize builds the global logger from cfg the first time it is called;
// later calls are no-ops. Console output goes to console. When cfg.LogFile is
// set, every entry is also written as JSON to a size-rotated file.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	initOnce.Do(func() {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}

		core := zapcore.NewCore(newEncoder(cfg), console, level)
		if cfg.LogFile != "" {
			core = zapcore.NewTee(core, zapcore.NewCore(jsonEncoder(), rotatingFile(cfg), level))
		}

		opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}

		l := zap.New(core, opts...).Named(cfg.ServiceName)
		logger.Store(l)
		zap.ReplaceGlobals(l)
		zap.RedirectStdLog(l)
	})
}

// InitializeLogger initializes the global logger on a locked Stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest clears the global logger so the next Initialize takes effect.
// Tests only.
func ResetForTest() {
	logger.Store(nil)
	initOnce = sync.Once{}
}

// GetLogger returns the global logger, or a development logger named
// "fallback" when Initialize has not run yet.
func GetLogger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l = l.Named("fallback")
	l.Warn("Logger used before initialization.")
	return l
}

// Sync flushes buffered entries. Terminals and pipes reject fsync on some
// platforms; those errors are dropped.
func Sync() {
	l := logger.Load()
	if l == nil {
		return
	}
	err := l.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.ENOTSUP) {
		return
	}
	fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
}

func rotatingFile(cfg config.LoggerConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
}

func baseEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return ec
}

func jsonEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(baseEncoderConfig())
}

// newEncoder returns a single-line colorized console encoder for the
// "console" format and a JSON encoder otherwise.
func newEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	if cfg.Format != "console" {
		return jsonEncoder()
	}
	ec := baseEncoderConfig()
	ec.EncodeLevel = levelColorEncoder(cfg.Colors)
	// "nbwarden.monitor." keeps the name visually apart from the message.
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// levelColorEncoder wraps each level in the configured color. Unknown or
// empty color names leave the level plain.
func levelColorEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	byLevel := map[zapcore.Level]string{
		zapcore.DebugLevel: ansiColors[colors.Debug],
		zapcore.InfoLevel:  ansiColors[colors.Info],
		zapcore.WarnLevel:  ansiColors[colors.Warn],
	}
	errColor := ansiColors[colors.Error]

	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		color, ok := byLevel[level]
		if !ok {
			color = errColor
		}
		if color == "" {
			enc.AppendString(level.CapitalString())
			return
		}
		enc.AppendString(color + level.CapitalString() + ansiReset)
	}
}
