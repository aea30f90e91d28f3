package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap's SugaredLogger with the level/file knobs Config.Load
// reads from LOG_LEVEL and LOG_FILE.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

type options struct {
	level string
	file  string
}

// Option configures a Logger beyond its base dev/prod mode.
type Option func(*options)

// WithLevel parses a zap level name (debug, info, warn, error, ...);
// an empty or unrecognized name keeps the mode's default (debug).
func WithLevel(level string) Option {
	return func(o *options) { o.level = level }
}

// WithFile tees output to path in addition to the mode's default sink.
// An empty path is a no-op.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// New builds a Logger for mode ("production"/"prod" selects the JSON
// encoder used in deployed environments; anything else is the
// human-readable development encoder).
func New(mode string, opts ...Option) (*Logger, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	level := zapcore.DebugLevel
	if o.level != "" {
		if parsed, err := zapcore.ParseLevel(o.level); err == nil {
			level = parsed
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if o.file != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, o.file)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, o.file)
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	sugar := zapLogger.Sugar()
	return &Logger{SugaredLogger: sugar}, nil
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, keysAndValues...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	newSugared := l.SugaredLogger.With(keysAndValues...)
	return &Logger{SugaredLogger: newSugared}
}
