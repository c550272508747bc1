// Package logging builds the structured loggers used across every
// Sentinel service. It mirrors the key-value call-site shape the rest of
// the codebase expects (Info/Error/Warn/Debugw), backed by zap in
// production JSON mode with optional file rotation via lumberjack.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured, key-value logging capability injected into
// every component. No package carries a package-level logger.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// Config controls log level and optional file rotation.
type Config struct {
	Level      string // debug|info|warn|error
	FilePath   string // empty means stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a Logger for the given service name.
func New(service string, cfg Config) (Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var writer zapcore.WriteSyncer
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    nonZero(cfg.MaxSizeMB, 100),
			MaxBackups: nonZero(cfg.MaxBackups, 7),
			MaxAge:     nonZero(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		writer = zapcore.AddSync(rotator)
	} else {
		writer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, writer, level)
	base := zap.New(core, zap.AddCaller()).Named(service)
	return &zapLogger{s: base.Sugar()}, nil
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})    { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})    { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{})   { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Sync() error                          { return l.s.Sync() }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

// NewNop returns a Logger that discards everything; handy for tests.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}
