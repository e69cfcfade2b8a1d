package respbuilder

import (
	"net/http"

	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
)

type ErrKind int64

const (
	ErrUnhandled ErrKind = iota + 1
	ErrValidation
	ErrDuplicateEntries
	ErrResourceNotFound
	ErrUnauthorized
	ErrInvalidQuota
	ErrUnknownKey
	ErrConflict
)

type Reason struct {
	Code       string
	Message    string
	HTTPStatus int
}

var ReasonMap = map[ErrKind]Reason{
	ErrUnhandled:        {Code: "01", Message: "unhandled error", HTTPStatus: http.StatusInternalServerError},
	ErrValidation:       {Code: "02", Message: "error validation", HTTPStatus: http.StatusBadRequest},
	ErrDuplicateEntries: {Code: "03", Message: "duplicate entries", HTTPStatus: http.StatusConflict},
	ErrResourceNotFound: {Code: "04", Message: "resource not found", HTTPStatus: http.StatusNotFound},
	ErrUnauthorized:     {Code: "05", Message: "unauthorized", HTTPStatus: http.StatusUnauthorized},
	ErrInvalidQuota:     {Code: "06", Message: "invalid recipients per sender", HTTPStatus: http.StatusBadRequest},
	ErrUnknownKey:       {Code: "07", Message: "unknown sender and recipient pair", HTTPStatus: http.StatusNotFound},
	ErrConflict:         {Code: "08", Message: "delivery still in progress", HTTPStatus: http.StatusConflict},
}

// ErrorEntity contain code, message, debug (*if applicable) and trace id.
type ErrorEntity struct {
	Code    string                 `json:"error_code"`        // to handle by FE
	Message string                 `json:"error_description"` // to handle by FE (string version of the error code)
	Debug   string                 `json:"debug,omitempty"`   // technical error
	TraceID string                 `json:"trace_id"`
	Fields  []validator.FieldError `json:"fields,omitempty"`
}

// HTTPError follow Facebook error response object:
// https://developers.facebook.com/docs/graph-api/using-graph-api/error-handling/
type HTTPError struct {
	Err ErrorEntity `json:"error"`

	status int
}

func (e HTTPError) Error() string {
	return e.Err.Message + ": " + e.Err.Debug
}

// StatusCode returns the http status matching the error kind.
func (e HTTPError) StatusCode() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}

	return e.status
}

// HTTPSuccess success response always wrap in data key.
type HTTPSuccess struct {
	TraceID string      `json:"trace_id"`
	Data    interface{} `json:"data"`
}
