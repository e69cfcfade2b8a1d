package logger

import (
	"context"
	"sync"
)

var (
	globalMu     sync.RWMutex
	globalLogger Logger = Noop{}
)

// SetGlobalLogger replaces the logger used by the package level functions.
func SetGlobalLogger(l Logger) {
	if l == nil {
		return
	}

	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

func get() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func Debug(ctx context.Context, msg string, fields ...KeyValue) {
	get().Debug(ctx, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...KeyValue) {
	get().Info(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...KeyValue) {
	get().Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...KeyValue) {
	get().Error(ctx, msg, fields...)
}

func Access(ctx context.Context, data AccessLogData) {
	get().Access(ctx, data)
}

type Noop struct{}

var _ Logger = Noop{}

func (Noop) Debug(context.Context, string, ...KeyValue) {}
func (Noop) Info(context.Context, string, ...KeyValue)  {}
func (Noop) Warn(context.Context, string, ...KeyValue)  {}
func (Noop) Error(context.Context, string, ...KeyValue) {}
func (Noop) Access(context.Context, AccessLogData)      {}
