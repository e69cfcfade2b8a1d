package logger

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	TypeAccessLog = "access_log"
	TypeSys       = "sys"
)

type Zap struct {
	writer *zap.Logger
}

var _ Logger = (*Zap)(nil)

func NewZap(zapLogger *zap.Logger) *Zap {
	return &Zap{writer: zapLogger}
}

// NewZapJSON builds a JSON logger writing to every w at or above level ("debug", "info", ...).
// Unknown level falls back to info.
func NewZapJSON(level string, w ...io.Writer) *Zap {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(w))
	for _, writer := range w {
		syncers = append(syncers, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "ts",
			MessageKey:     "msg",
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			LineEnding:     zapcore.DefaultLineEnding,
			LevelKey:       "level",
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
		}),
		zapcore.NewMultiWriteSyncer(syncers...),
		lvl,
	)

	return NewZap(zap.New(core))
}

func (z *Zap) Debug(ctx context.Context, msg string, fields ...KeyValue) {
	z.writer.Debug(msg, zapFields(ctx, TypeSys, fields)...)
}

func (z *Zap) Info(ctx context.Context, msg string, fields ...KeyValue) {
	z.writer.Info(msg, zapFields(ctx, TypeSys, fields)...)
}

func (z *Zap) Warn(ctx context.Context, msg string, fields ...KeyValue) {
	z.writer.Warn(msg, zapFields(ctx, TypeSys, fields)...)
}

func (z *Zap) Error(ctx context.Context, msg string, fields ...KeyValue) {
	z.writer.Error(msg, zapFields(ctx, TypeSys, fields)...)
}

func (z *Zap) Access(ctx context.Context, data AccessLogData) {
	z.writer.Info(TypeAccessLog, zapFields(ctx, TypeAccessLog, []KeyValue{KV("data", data)})...)
}

// Sync flushes buffered entries.
func (z *Zap) Sync() error {
	return z.writer.Sync()
}

func zapFields(ctx context.Context, tag string, fields []KeyValue) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	out = append(out, zap.String("tag", tag))

	if tracer, ok := Extract(ctx); ok {
		out = append(out, zap.Any("tracer", tracer))
	}

	for _, field := range fields {
		if err, ok := field.Value.(error); ok {
			out = append(out, zap.NamedError(field.Key, err))
			continue
		}

		out = append(out, zap.Any(field.Key, field.Value))
	}

	return out
}
