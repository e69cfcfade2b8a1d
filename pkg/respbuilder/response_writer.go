package respbuilder

import (
	"net/http"

	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
)

func WriteJSON(httpStatus int, rw http.ResponseWriter, r *http.Request, data interface{}) {
	tracer := logger.MustExtract(r.Context())

	payload, err := json.Marshal(data)
	if err != nil {
		reason := ReasonMap[ErrUnhandled]
		httpStatus = reason.HTTPStatus
		payload, _ = json.Marshal(HTTPError{
			Err: ErrorEntity{
				Code:    reason.Code,
				Message: reason.Message,
				Debug:   err.Error(),
				TraceID: tracer.AppTraceID,
			},
		})
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Tracer-ID", tracer.AppTraceID)
	rw.WriteHeader(httpStatus)

	_, _ = rw.Write(append(payload, '\n'))
}

// WriteError writes e with the status of its kind.
func WriteError(rw http.ResponseWriter, r *http.Request, e HTTPError) {
	WriteJSON(e.StatusCode(), rw, r, e)
}
