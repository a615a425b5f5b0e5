package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a thin wrapper around zap.SugaredLogger that provides the
// three log levels we need throughout the codebase.
type Logger interface {
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field and its constructors are re-exported so callers only import this
// package.
type Field = zap.Field

var (
	String   = zap.String
	Strings  = zap.Strings
	Float64  = zap.Float64
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Time     = zap.Time
	Duration = zap.Duration
	Any      = zap.Any
	Err      = zap.Error
)

// Options controls the production logger.
type Options struct {
	Level      string // debug | info | warn | error
	File       string // optional rotating file, empty = stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Static fields attached to every entry (run id, service name).
	Fields []Field
}

// zapLogger implements Logger using a SugaredLogger internally.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapLogger) Info(msg string, fields ...Field) {
	l.sugar.Infow(msg, sugarArgs(fields)...)
}
func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.sugar.Warnw(msg, sugarArgs(fields)...)
}
func (l *zapLogger) Error(msg string, fields ...Field) {
	l.sugar.Errorw(msg, sugarArgs(fields)...)
}

// Sync flushes buffered entries.
func (l *zapLogger) Sync() error { return l.sugar.Sync() }

// NewZapLogger creates a production‑ready logger (JSON encoding, level INFO).
func NewZapLogger() (Logger, error) {
	return New(Options{})
}

// New builds a JSON logger writing to stdout and, when opts.File is set, to
// a size-rotated file.
func New(opts Options) (Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)}
	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rot), level))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	if len(opts.Fields) > 0 {
		z = z.With(opts.Fields...)
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() Logger { return &zapLogger{sugar: zap.NewNop().Sugar()} }

// Sync flushes l if it buffers.
func Sync(l Logger) error {
	if s, ok := l.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// sugarArgs passes typed fields through the sugared API unchanged.
func sugarArgs(fields []Field) []interface{} {
	out := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		out = append(out, f)
	}
	return out
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Since is a small helper for latency fields.
func Since(start time.Time) Field { return Duration("elapsed", time.Since(start)) }
