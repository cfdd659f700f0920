package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileRotation configures the rotating log file a long-lived worker writes
// to. Workers run unsupervised for days at a time, so the log file must not
// grow without bound.
type FileRotation struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ZapLogger adapts *zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a ZapLogger writing JSON lines to stderr, and
// additionally to a rotating file when rotation.Path is non-empty.
func NewZapLogger(debug bool, rotation *FileRotation) (*ZapLogger, error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level),
	}

	if rotation != nil && rotation.Path != "" {
		rot := &lumberjack.Logger{
			Filename:   rotation.Path,
			MaxSize:    orDefault(rotation.MaxSizeMB, 100),
			MaxBackups: orDefault(rotation.MaxBackups, 5),
			MaxAge:     orDefault(rotation.MaxAgeDays, 14),
			Compress:   rotation.Compress,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rot), level))
	}

	core := zapcore.NewTee(cores...)
	base := zap.New(core, zap.AddCaller())
	return &ZapLogger{sugar: base.Sugar()}, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...interface{})  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...interface{})  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...interface{}) { z.sugar.Errorw(msg, args...) }

// With returns a derived logger that always attaches the given fields
// (for example job_id or pid).
func (z *ZapLogger) With(args ...interface{}) *ZapLogger {
	return &ZapLogger{sugar: z.sugar.With(args...)}
}

func (z *ZapLogger) Sync() error { return z.sugar.Sync() }
