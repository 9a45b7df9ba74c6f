package logger

import (
	"context"
	"os"
	"strings"

	"keepsake/internal/shared/contextkeys"

	"github.com/sirupsen/logrus"
)

const (
	logFormatJSON = "json"

	backendZap = "zap"

	envProduction = "production"
	envProd       = "prod"

	timestampFormat = "2006-01-02T15:04:05.000Z07:00"
	textTimestamp   = "2006-01-02 15:04:05"
)

// Logger defines the interface for structured logging operations
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger
}

// LogrusLogger implements the Logger interface using logrus
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger configured from the environment.
// LOG_BACKEND=zap selects the zap implementation; anything else uses logrus.
func NewLogger() Logger {
	if strings.EqualFold(os.Getenv("LOG_BACKEND"), backendZap) {
		return NewZapLogger(os.Getenv("LOG_LEVEL"), isJSONFormat())
	}

	logger := logrus.New()
	logger.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	logger.SetFormatter(getLogFormatter())
	logger.SetOutput(os.Stdout)

	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

// NewLoggerWithConfig creates a logrus logger with an explicit level and format.
func NewLoggerWithConfig(level string, format string) Logger {
	logger := logrus.New()
	logger.SetLevel(parseLevel(level))

	if format == logFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}
	logger.SetOutput(os.Stdout)

	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

func (l *LogrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *LogrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *LogrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *LogrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *LogrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

// WithFields adds structured fields to the logger
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithContext adds request-scoped values found in ctx to the logger
func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(contextFields(ctx)))}
}

// WithComponent adds component name to the logger
func (l *LogrusLogger) WithComponent(component string) Logger {
	return &LogrusLogger{entry: l.entry.WithField("component", component)}
}

// contextFields extracts the known context keys into a field map.
func contextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if ctx == nil {
		return fields
	}
	keys := map[interface{}]string{
		contextkeys.RequestIDKey:  "request_id",
		contextkeys.CollectionKey: "collection",
		contextkeys.ComponentKey:  "component",
	}
	for key, name := range keys {
		if val, ok := ctx.Value(key).(string); ok && val != "" {
			fields[name] = val
		}
	}
	return fields
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func isJSONFormat() bool {
	env := os.Getenv("ENVIRONMENT")
	return os.Getenv("LOG_FORMAT") == logFormatJSON || env == envProduction || env == envProd
}

// getLogFormatter determines the log formatter from environment
func getLogFormatter() logrus.Formatter {
	if isJSONFormat() {
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		}
	}

	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: textTimestamp,
		ForceColors:     true,
	}
}

var defaultLogger = NewLogger()

// WithComponent creates a logger with component information
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(args ...interface{})                        {}
func (nopLogger) Info(args ...interface{})                         {}
func (nopLogger) Warn(args ...interface{})                         {}
func (nopLogger) Error(args ...interface{})                        {}
func (nopLogger) Debugf(format string, args ...interface{})        {}
func (nopLogger) Infof(format string, args ...interface{})         {}
func (nopLogger) Warnf(format string, args ...interface{})         {}
func (nopLogger) Errorf(format string, args ...interface{})        {}
func (nopLogger) Fatalf(format string, args ...interface{})        {}
func (n nopLogger) WithFields(fields map[string]interface{}) Logger { return n }
func (n nopLogger) WithContext(ctx context.Context) Logger          { return n }
func (n nopLogger) WithComponent(component string) Logger           { return n }
