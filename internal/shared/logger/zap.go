package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements Logger on top of a zap SugaredLogger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a zap-backed logger. Production encoding is JSON; development encoding is console.
func NewZapLogger(level string, jsonOutput bool) Logger {
	var cfg zap.Config
	if jsonOutput {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.MessageKey = "message"
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(timestampFormat)

	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil || level == "" {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	return &ZapLogger{sugar: base.Sugar()}
}

func (z *ZapLogger) Debug(args ...interface{}) { z.sugar.Debug(args...) }
func (z *ZapLogger) Info(args ...interface{})  { z.sugar.Info(args...) }
func (z *ZapLogger) Warn(args ...interface{})  { z.sugar.Warn(args...) }
func (z *ZapLogger) Error(args ...interface{}) { z.sugar.Error(args...) }

func (z *ZapLogger) Debugf(format string, args ...interface{}) { z.sugar.Debugf(format, args...) }
func (z *ZapLogger) Infof(format string, args ...interface{})  { z.sugar.Infof(format, args...) }
func (z *ZapLogger) Warnf(format string, args ...interface{})  { z.sugar.Warnf(format, args...) }
func (z *ZapLogger) Errorf(format string, args ...interface{}) { z.sugar.Errorf(format, args...) }
func (z *ZapLogger) Fatalf(format string, args ...interface{}) { z.sugar.Fatalf(format, args...) }

func (z *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &ZapLogger{sugar: z.sugar.With(kv...)}
}

func (z *ZapLogger) WithContext(ctx context.Context) Logger {
	return z.WithFields(contextFields(ctx))
}

func (z *ZapLogger) WithComponent(component string) Logger {
	return &ZapLogger{sugar: z.sugar.With(zap.String("component", component))}
}
