package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures the optional rotating file sink.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the root logger. format is "json" or "console"; an unknown
// level falls back to info.
func New(level, format string, file *FileConfig) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	sink := zapcore.Lock(os.Stdout)
	core := zapcore.NewCore(enc, sink, lvl)

	if file != nil {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileSink, lvl)
		core = zapcore.NewTee(core, fileCore)
	}

	return zap.New(core, zap.AddCaller())
}

// Nop returns a no-op logger for tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
