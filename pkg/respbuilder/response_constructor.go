package respbuilder

import (
	"context"

	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
)

func Error(ctx context.Context, reasonKind ErrKind, err error) HTTPError {
	tracer := logger.MustExtract(ctx)

	reason, ok := ReasonMap[reasonKind]
	if !ok {
		return HTTPError{
			Err: ErrorEntity{
				Code:    "XX",
				Message: "unknown error kind",
				Debug:   "", // don't show message if unknown type, to prevent security breach
				TraceID: tracer.AppTraceID,
			},
			status: ReasonMap[ErrUnhandled].HTTPStatus,
		}
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	return HTTPError{
		Err: ErrorEntity{
			Code:    reason.Code,
			Message: reason.Message,
			Debug:   errMsg,
			TraceID: tracer.AppTraceID,
			Fields:  validator.FieldErrors(err),
		},
		status: reason.HTTPStatus,
	}
}

func Success(ctx context.Context, data interface{}) HTTPSuccess {
	tracer := logger.MustExtract(ctx)

	return HTTPSuccess{
		TraceID: tracer.AppTraceID,
		Data:    data,
	}
}
