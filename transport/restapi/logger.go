package restapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/satori/uuid"
	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"go.uber.org/multierr"
)

// maxLoggedBody caps request and response bodies kept for the access log.
const maxLoggedBody = 64 << 10

func isJSON(h http.Header) bool {
	return strings.HasPrefix(strings.ToLower(h.Get("Content-Type")), "application/json")
}

// bodyObject returns b as decoded JSON, or as string when it is not JSON.
func bodyObject(b []byte) (interface{}, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var obj interface{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return string(b), err
	}

	return obj, nil
}

func requestLogger(skipFunc func(r *http.Request) bool, timeout time.Duration, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if skipFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		var globalErr error
		t1 := time.Now().UTC()
		ctx := r.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		// websocket connections live longer than any request
		if timeout > 0 && !websocket.IsWebSocketUpgrade(r) {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		traceID := r.Header.Get("X-Request-ID")
		if traceID == "" {
			traceID = uuid.NewV4().String()
		}

		ctx = logger.Inject(ctx, logger.Tracer{
			RemoteAddr: r.RemoteAddr,
			AppTraceID: traceID,
		})
		r = r.WithContext(ctx)

		// multipart uploads carry credentials, only JSON bodies are logged
		var reqBody []byte
		if r.Body != nil && isJSON(r.Header) {
			var err error
			reqBody, err = io.ReadAll(r.Body)
			if err != nil {
				globalErr = multierr.Append(globalErr, fmt.Errorf("error read request body: %w", err))
			}

			if _err := r.Body.Close(); _err != nil {
				globalErr = multierr.Append(globalErr, fmt.Errorf("cannot close request body: %w", _err))
			}

			r.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		respBody := &limitedBuffer{max: maxLoggedBody}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(respBody)

		next.ServeHTTP(ww, r)

		reqObj, _ := bodyObject(reqBody)

		var respObj interface{}
		if isJSON(ww.Header()) {
			var err error
			respObj, err = bodyObject(respBody.Bytes())
			if err != nil && !respBody.truncated {
				globalErr = multierr.Append(globalErr, fmt.Errorf("error unmarshal response body: %w", err))
			}
		}

		errStr := ""
		if globalErr != nil {
			errStr = globalErr.Error()
		}

		logger.Access(ctx, logger.AccessLogData{
			Method:      r.Method,
			Path:        r.RequestURI,
			Status:      ww.Status(),
			ReqBody:     reqObj,
			RespBody:    respObj,
			Error:       errStr,
			ElapsedTime: time.Since(t1).Milliseconds(),
		})
	}
}

// limitedBuffer keeps at most max bytes and silently drops the rest.
type limitedBuffer struct {
	bytes.Buffer
	max       int
	truncated bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	room := l.max - l.Len()
	if room <= 0 {
		l.truncated = l.truncated || len(p) > 0
		return len(p), nil
	}

	if len(p) > room {
		l.truncated = true
		_, _ = l.Buffer.Write(p[:room])
		return len(p), nil
	}

	return l.Buffer.Write(p)
}
