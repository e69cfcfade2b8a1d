package multidb

import (
	"context"

	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
)

type QueryLogger struct{}

var _ sqldblogger.Logger = (*QueryLogger)(nil)

func (q *QueryLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	fields := []logger.KeyValue{logger.KV("sql", data)}
	if level == sqldblogger.LevelError {
		logger.Error(ctx, msg, fields...)
		return
	}

	logger.Debug(ctx, msg, fields...)
}
